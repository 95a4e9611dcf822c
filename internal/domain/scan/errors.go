package scan

import (
	"errors"
	"fmt"
)

// Sentinel kinds for scan errors.
var (
	ErrEmptySequence = errors.New("empty frame sequence")
	ErrFrameFetch    = errors.New("frame fetch failed")
	ErrInvalidParams = errors.New("invalid scan params")
)

// FetchError reports the position whose data could not be produced. It
// aborts the scan that hit it.
type FetchError struct {
	Position   int
	Identifier string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s at position %d (%s): %v", ErrFrameFetch, e.Position, e.Identifier, e.Err)
}

func (e *FetchError) Is(target error) bool { return target == ErrFrameFetch }

func (e *FetchError) Unwrap() error { return e.Err }
