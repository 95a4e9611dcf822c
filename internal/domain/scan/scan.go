// Package scan walks an ordered frame sequence once and emits padded windows
// around frames whose brightest pixel reaches a threshold.
package scan

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/okian/frameevents/internal/domain/model"
	"github.com/okian/frameevents/pkg/metrics"
)

// Accessor produces pixel data for a position of an indexed sequence.
// Implementations own any decoder or engine handle they need.
type Accessor interface {
	Fetch(ctx context.Context, position int) (model.Frame, error)
}

// Sequence is an ordered list of frames plus the means to read them.
type Sequence struct {
	Frames []model.FrameRef
	Data   Accessor
}

// Params configures triggering and padding.
type Params struct {
	// Threshold triggers a window when a frame's maximum is >= Threshold.
	Threshold float64
	// Before and After are the frames of padding around the trigger.
	Before int
	After  int
}

// Validate checks params once at the boundary.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0):
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidParams)
	case p.Before < 0:
		return fmt.Errorf("%w: before must be >= 0, got %d", ErrInvalidParams, p.Before)
	case p.After < 0:
		return fmt.Errorf("%w: after must be >= 0, got %d", ErrInvalidParams, p.After)
	}
	return nil
}

// Scanner holds validated params. It keeps no state between scans.
type Scanner struct {
	params        Params
	progressEvery int
	progress      ProgressFunc
}

// New validates p and builds a Scanner.
func New(p Params, opts ...Option) (*Scanner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{params: p}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Params returns the scanner's params.
func (s *Scanner) Params() Params { return s.params }

// Scan returns the windows of seq in ascending, non-overlapping order.
//
// The cursor starts at 0. A frame below the threshold moves it by one. A
// trigger at i emits [max(i-Before, 0), min(i+After, N-1)] and moves the
// cursor past the end of that window, so frames inside it are never checked
// again. Pre-padding never reaches back into the previous window. Only
// frames the cursor lands on are fetched.
//
// The sequence is lazy: nothing is fetched until iteration starts and
// stopping the loop stops the scan. A fetch failure or context cancellation
// is yielded once as a non-nil error and ends the sequence; windows yielded
// before it stay valid.
func (s *Scanner) Scan(ctx context.Context, seq Sequence) iter.Seq2[model.EventWindow, error] {
	return func(yield func(model.EventWindow, error) bool) {
		n := len(seq.Frames)
		nextReport := s.progressEvery
		floor := 0
		for i := 0; i < n; {
			if err := ctx.Err(); err != nil {
				yield(model.EventWindow{}, err)
				return
			}

			peak, err := s.peak(ctx, seq, i)
			if err != nil {
				yield(model.EventWindow{}, err)
				return
			}

			if peak < s.params.Threshold {
				i++
			} else {
				metrics.RecordTrigger()
				w := window(seq.Frames, i, floor, s.params.Before, s.params.After)
				metrics.RecordWindowEmitted(w.Len())
				if !yield(w, nil) {
					return
				}
				i = w.EndPosition + 1
				floor = i
			}

			if s.progress != nil && (i >= nextReport || i >= n) {
				s.progress(ctx, min(i, n), n)
				for nextReport <= i {
					nextReport += s.progressEvery
				}
			}
		}
	}
}

func (s *Scanner) peak(ctx context.Context, seq Sequence, i int) (float64, error) {
	start := time.Now()
	frame, err := seq.Data.Fetch(ctx, i)
	metrics.RecordFetchLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordFetchError()
		return 0, &FetchError{Position: i, Identifier: seq.Frames[i].Identifier, Err: err}
	}
	metrics.RecordFrameScanned()
	return frame.Max(), nil
}

// window clamps the padded range around trigger to [floor, len(frames)-1].
func window(frames []model.FrameRef, trigger, floor, before, after int) model.EventWindow {
	last := len(frames) - 1
	start := trigger - min(before, trigger-floor)
	end := trigger + min(after, last-trigger)
	return model.EventWindow{
		StartPosition:   start,
		EndPosition:     end,
		StartIdentifier: frames[start].Identifier,
		EndOrderKey:     frames[end].OrderKey,
	}
}

// Scan is a convenience for New(p).Scan(ctx, seq). Invalid params are
// yielded as the only element.
func Scan(ctx context.Context, seq Sequence, p Params) iter.Seq2[model.EventWindow, error] {
	s, err := New(p)
	if err != nil {
		return func(yield func(model.EventWindow, error) bool) {
			yield(model.EventWindow{}, err)
		}
	}
	return s.Scan(ctx, seq)
}

// Collect drains windows, stopping at the first error. Windows gathered
// before the error are returned with it.
func Collect(windows iter.Seq2[model.EventWindow, error]) ([]model.EventWindow, error) {
	var out []model.EventWindow
	for w, err := range windows {
		if err != nil {
			return out, err
		}
		out = append(out, w)
	}
	return out, nil
}
