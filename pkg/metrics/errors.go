package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrRegistryMismatch = errors.New("metrics registry is not gatherable")
	ErrInvalidOption    = errors.New("invalid metrics option")
)
