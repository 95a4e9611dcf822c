// Package codec converts between image files and model.Frame.
//
// Single frames are decoded from TIFF, PNG or BMP. Event stacks are written
// as uncompressed multi-page grayscale TIFF, one page per frame, keeping the
// source bit depth so no sample is rescaled.
package codec

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png" // register decoder
	"io"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder

	"github.com/okian/frameevents/internal/domain/model"
)

// Codec is the image engine handle shared by the frame source and the event
// writers. It is safe for concurrent use.
type Codec struct{}

// New returns a Codec.
func New() *Codec { return &Codec{} }

// Ext is the file suffix of encoded stacks.
func (c *Codec) Ext() string { return ".tiff" }

// ContentType is the media type of encoded stacks.
func (c *Codec) ContentType() string { return "image/tiff" }

// Decode reads one image and converts it to a grayscale frame.
func (c *Codec) Decode(r io.Reader) (model.Frame, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %w", ErrUnsupportedImg, err)
	}
	f := FromImage(img)
	if len(f.Pix) == 0 {
		return model.Frame{}, fmt.Errorf("%w: %s image is %dx%d", ErrEmptyFrame, format, f.Width, f.Height)
	}
	return f, nil
}

// EncodeStack writes frames as one multi-page TIFF.
func (c *Codec) EncodeStack(w io.Writer, frames []model.Frame) error {
	return writeStack(w, frames)
}

// FromImage converts img to a frame. Gray and Gray16 images keep their
// samples and depth; any other model is reduced to 16-bit luminance.
func FromImage(img image.Image) model.Frame {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.Gray16:
		f := model.NewFrame(b.Dx(), b.Dy(), 16)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				f.Set(x, y, m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return f
	case *image.Gray:
		f := model.NewFrame(b.Dx(), b.Dy(), 8)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				f.Set(x, y, uint16(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return f
	default:
		f := model.NewFrame(b.Dx(), b.Dy(), 16)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				f.Set(x, y, color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y)
			}
		}
		return f
	}
}

// ToImage converts a frame back to *image.Gray (8-bit) or *image.Gray16.
func ToImage(f model.Frame) image.Image {
	r := image.Rect(0, 0, f.Width, f.Height)
	if f.BitDepth == 8 {
		img := image.NewGray(r)
		for i, v := range f.Pix {
			img.Pix[i] = uint8(v)
		}
		return img
	}
	img := image.NewGray16(r)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: f.At(x, y)})
		}
	}
	return img
}
