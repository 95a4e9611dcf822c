package codec

import "errors"

// Sentinel kinds for codec errors.
var (
	ErrEmptyStack     = errors.New("empty frame stack")
	ErrShapeMismatch  = errors.New("frame shape mismatch")
	ErrEmptyFrame     = errors.New("frame has no pixels")
	ErrStackTooLarge  = errors.New("stack exceeds 4 GiB tiff limit")
	ErrTooManyPages   = errors.New("stack exceeds 65535 tiff pages")
	ErrUnsupportedImg = errors.New("unsupported image")
)
