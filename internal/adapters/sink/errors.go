package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrOutputNotEmpty = errors.New("output is not empty")
	ErrPut            = errors.New("put failed")
)
