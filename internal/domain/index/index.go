// Package index orders frame identifiers by the integer that ends their stem.
//
// Identifiers such as "run2_frame12.tiff" carry their time order in the last
// run of digits before the type suffix. Ordering is numeric, so "f2" sorts
// before "f12".
package index

import (
	"cmp"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/okian/frameevents/internal/domain/model"
)

// Result is the outcome of indexing a collection of identifiers.
type Result struct {
	// Frames is ordered by OrderKey; Frames[i].Position == i.
	Frames []model.FrameRef
	// Issues lists identifiers that were skipped, malformed ones first in
	// input order, then duplicates in key order.
	Issues []*IssueError
}

// Err joins all issues, or returns nil when every identifier was indexed.
func (r Result) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	errs := make([]error, len(r.Issues))
	for i, issue := range r.Issues {
		errs[i] = issue
	}
	return errors.Join(errs...)
}

// Identifiers returns the ordered identifiers.
func (r Result) Identifiers() []string {
	ids := make([]string, len(r.Frames))
	for i, f := range r.Frames {
		ids[i] = f.Identifier
	}
	return ids
}

// Index parses and orders identifiers. Problems are collected per identifier
// and never stop indexing of the rest. When several identifiers share an
// order key the lexicographically smallest keeps it and the others are
// reported as ErrDuplicateOrderKey, so the outcome does not depend on input
// order. An empty input yields an empty Result.
func Index(identifiers []string) Result {
	var res Result

	type keyed struct {
		id  string
		key int
	}
	items := make([]keyed, 0, len(identifiers))
	for _, id := range identifiers {
		key, err := OrderKey(id)
		if err != nil {
			var issue *IssueError
			if !errors.As(err, &issue) {
				issue = &IssueError{Identifier: id, Kind: ErrMalformedIdentifier, Err: err}
			}
			res.Issues = append(res.Issues, issue)
			continue
		}
		items = append(items, keyed{id: id, key: key})
	}

	slices.SortFunc(items, func(a, b keyed) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	res.Frames = make([]model.FrameRef, 0, len(items))
	for _, it := range items {
		if n := len(res.Frames); n > 0 && res.Frames[n-1].OrderKey == it.key {
			res.Issues = append(res.Issues, &IssueError{
				Identifier: it.id,
				Conflict:   res.Frames[n-1].Identifier,
				OrderKey:   it.key,
				Kind:       ErrDuplicateOrderKey,
			})
			continue
		}
		res.Frames = append(res.Frames, model.FrameRef{
			Identifier: it.id,
			OrderKey:   it.key,
			Position:   len(res.Frames),
		})
	}
	return res
}

// OrderKey extracts the run of decimal digits that terminates the stem of
// identifier. Digits elsewhere in the name are ignored.
func OrderKey(identifier string) (int, error) {
	stem := Stem(identifier)
	i := len(stem)
	for i > 0 && isDigit(stem[i-1]) {
		i--
	}
	digits := stem[i:]
	if digits == "" {
		return 0, &IssueError{Identifier: identifier, Kind: ErrMalformedIdentifier}
	}
	key, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &IssueError{Identifier: identifier, Kind: ErrMalformedIdentifier, Err: err}
	}
	return key, nil
}

// Stem strips type suffixes from identifier. A suffix is a trailing ".xyz"
// that is not purely numeric, so "a_7.ome.tif" becomes "a_7" while
// "frame.0042" keeps its numeric tail.
func Stem(identifier string) string {
	s := identifier
	for {
		dot := strings.LastIndexByte(s, '.')
		if dot < 0 {
			return s
		}
		ext := s[dot+1:]
		if ext != "" && allDigits(ext) {
			return s
		}
		s = s[:dot]
	}
}

// OutputName names the artifact persisted for w: the stem of its first
// frame's identifier and the order key of its last frame, joined by "-".
func OutputName(w model.EventWindow, ext string) string {
	return Stem(w.StartIdentifier) + "-" + strconv.Itoa(w.EndOrderKey) + ext
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
