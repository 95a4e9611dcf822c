// Package model contains domain models passed between layers.
package model

// FrameRef identifies one frame of an ordered recording.
type FrameRef struct {
	Identifier string // external name, e.g. "frame_0012.tiff"
	OrderKey   int    // trailing integer parsed from Identifier
	Position   int    // 0-based rank after sorting by OrderKey
}

// Frame is a single grayscale image. Pix holds Width*Height samples in
// row-major order. BitDepth records the sample depth of the source (8 or 16)
// so frames can be written back without widening.
type Frame struct {
	Width    int
	Height   int
	BitDepth int
	Pix      []uint16
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height, bitDepth int) Frame {
	return Frame{
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Pix:      make([]uint16, width*height),
	}
}

// At returns the sample at (x, y).
func (f Frame) At(x, y int) uint16 { return f.Pix[y*f.Width+x] }

// Set stores v at (x, y).
func (f Frame) Set(x, y int, v uint16) { f.Pix[y*f.Width+x] = v }

// Max returns the brightest sample of the frame, or 0 for an empty frame.
func (f Frame) Max() float64 {
	var m uint16
	for _, v := range f.Pix {
		if v > m {
			m = v
		}
	}
	return float64(m)
}

// EventWindow is one padded range of frames captured around a trigger.
// StartPosition and EndPosition are inclusive.
type EventWindow struct {
	StartPosition   int
	EndPosition     int
	StartIdentifier string
	EndOrderKey     int
}

// Len returns the number of frames covered by the window.
func (w EventWindow) Len() int { return w.EndPosition - w.StartPosition + 1 }
