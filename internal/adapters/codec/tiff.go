package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/okian/frameevents/internal/domain/model"
)

// TIFF tag ids and field types used by the stack writer.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPageNumber      = 297

	typeShort = 3
	typeLong  = 4

	headerSize   = 8
	ifdEntries   = 11
	ifdEntrySize = 12
	ifdSize      = 2 + ifdEntries*ifdEntrySize + 4
)

// stackDepth picks 8 bits only when every frame is 8-bit and fits in it.
func stackDepth(frames []model.Frame) int {
	for _, f := range frames {
		if f.BitDepth != 8 {
			return 16
		}
		for _, v := range f.Pix {
			if v > math.MaxUint8 {
				return 16
			}
		}
	}
	return 8
}

type page struct {
	dataOffset uint32
	dataSize   uint32
	ifdOffset  uint32
}

// layout places each page's pixel data followed by its IFD.
func layout(frames []model.Frame, depth int) ([]page, error) {
	pages := make([]page, len(frames))
	off := uint64(headerSize)
	for i, f := range frames {
		size := uint64(f.Width) * uint64(f.Height) * uint64(depth/8)
		pages[i].dataOffset = uint32(off)
		pages[i].dataSize = uint32(size)
		off += size
		if off%2 == 1 {
			off++
		}
		pages[i].ifdOffset = uint32(off)
		off += ifdSize
		if off > math.MaxUint32 {
			return nil, ErrStackTooLarge
		}
	}
	return pages, nil
}

func writeStack(w io.Writer, frames []model.Frame) error {
	if len(frames) == 0 {
		return ErrEmptyStack
	}
	// PageNumber stores the page index and count as SHORTs.
	if len(frames) > math.MaxUint16 {
		return fmt.Errorf("%w: %d frames", ErrTooManyPages, len(frames))
	}
	width, height := frames[0].Width, frames[0].Height
	for i, f := range frames {
		if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height {
			return fmt.Errorf("%w: frame %d", ErrEmptyFrame, i)
		}
		if f.Width != width || f.Height != height {
			return fmt.Errorf("%w: frame %d is %dx%d, want %dx%d", ErrShapeMismatch, i, f.Width, f.Height, width, height)
		}
	}

	depth := stackDepth(frames)
	pages, err := layout(frames, depth)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	hdr := make([]byte, 0, headerSize)
	hdr = append(hdr, 'I', 'I')
	hdr = le.AppendUint16(hdr, 42)
	hdr = le.AppendUint32(hdr, pages[0].ifdOffset)
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	// entry appends a single-valued field; SHORT values sit in the low bytes.
	entry := func(b []byte, tag, typ uint16, value uint32) []byte {
		b = le.AppendUint16(b, tag)
		b = le.AppendUint16(b, typ)
		b = le.AppendUint32(b, 1)
		return le.AppendUint32(b, value)
	}

	buf := make([]byte, 0, ifdSize)
	for i, f := range frames {
		buf = buf[:0]
		if depth == 8 {
			for _, v := range f.Pix {
				buf = append(buf, uint8(v))
			}
		} else {
			for _, v := range f.Pix {
				buf = le.AppendUint16(buf, v)
			}
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}

		var next uint32
		if i+1 < len(pages) {
			next = pages[i+1].ifdOffset
		}
		p := pages[i]

		buf = buf[:0]
		buf = le.AppendUint16(buf, ifdEntries)
		buf = entry(buf, tagImageWidth, typeLong, uint32(width))
		buf = entry(buf, tagImageLength, typeLong, uint32(height))
		buf = entry(buf, tagBitsPerSample, typeShort, uint32(depth))
		buf = entry(buf, tagCompression, typeShort, 1)
		buf = entry(buf, tagPhotometric, typeShort, 1) // black is zero
		buf = entry(buf, tagStripOffsets, typeLong, p.dataOffset)
		buf = entry(buf, tagSamplesPerPixel, typeShort, 1)
		buf = entry(buf, tagRowsPerStrip, typeLong, uint32(height))
		buf = entry(buf, tagStripByteCounts, typeLong, p.dataSize)
		buf = entry(buf, tagPlanarConfig, typeShort, 1)
		// PageNumber holds two SHORTs: page index and page count.
		buf = le.AppendUint16(buf, tagPageNumber)
		buf = le.AppendUint16(buf, typeShort)
		buf = le.AppendUint32(buf, 2)
		buf = le.AppendUint16(buf, uint16(i))
		buf = le.AppendUint16(buf, uint16(len(frames)))
		buf = le.AppendUint32(buf, next)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
