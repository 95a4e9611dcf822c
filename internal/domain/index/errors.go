package index

import (
	"errors"
	"fmt"
)

// Sentinel kinds for indexing issues. These allow errors.Is from callers.
var (
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrDuplicateOrderKey   = errors.New("duplicate order key")
)

// IssueError reports a single identifier that was left out of the index.
type IssueError struct {
	Identifier string
	// Conflict names the identifier that kept OrderKey when Kind is
	// ErrDuplicateOrderKey.
	Conflict string
	OrderKey int
	Kind     error
	Err      error
}

func (e *IssueError) Error() string {
	switch {
	case e.Kind == ErrDuplicateOrderKey:
		return fmt.Sprintf("%s: %q has order key %d already held by %q", e.Kind, e.Identifier, e.OrderKey, e.Conflict)
	case e.Err != nil:
		return fmt.Sprintf("%s: %q: %v", e.Kind, e.Identifier, e.Err)
	default:
		return fmt.Sprintf("%s: %q", e.Kind, e.Identifier)
	}
}

func (e *IssueError) Unwrap() error { return e.Kind }
