package imaging

import (
	"fmt"
	"strings"
)

// PixelFormat is the memory layout of a frame's pixels.
type PixelFormat int

// Supported pixel formats.
const (
	// Gray8 is one luma byte per pixel.
	Gray8 PixelFormat = iota
	// BGRA8 is four bytes per pixel in B, G, R, A order.
	BGRA8
	// RGBA8 is four bytes per pixel in R, G, B, A order.
	RGBA8
	// NV12 is a full-resolution Y plane followed by an interleaved,
	// half-resolution UV plane.
	NV12
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case Gray8:
		return "Gray8"
	case BGRA8:
		return "BGRA8"
	case RGBA8:
		return "RGBA8"
	case NV12:
		return "NV12"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// ParsePixelFormat parses a format name, case-insensitively.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for _, f := range []PixelFormat{Gray8, BGRA8, RGBA8, NV12} {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

// BufferSize returns the number of bytes a tightly packed w×h frame needs.
func (f PixelFormat) BufferSize(w, h int) int {
	switch f {
	case Gray8:
		return w * h
	case BGRA8, RGBA8:
		return 4 * w * h
	case NV12:
		return w*h + chromaStride(w)*((h+1)/2)
	default:
		return 0
	}
}

// chromaStride is the byte width of one NV12 UV row.
func chromaStride(w int) int {
	return 2 * ((w + 1) / 2)
}

// bytesPerPixel returns the packed pixel size; NV12 is planar and returns 0.
func (f PixelFormat) bytesPerPixel() int {
	switch f {
	case Gray8:
		return 1
	case BGRA8, RGBA8:
		return 4
	default:
		return 0
	}
}
