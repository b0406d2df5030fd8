package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrInvalidFrame is returned for nil, empty or otherwise unusable frames.
var ErrInvalidFrame = errors.New("invalid frame")

// Surface is a GPU-resident frame that must be downloaded before any CPU work.
type Surface interface {
	Width() int
	Height() int
	Format() PixelFormat
	Download(ctx context.Context) (*Frame, error)
}

// Frame is a video frame or still image. It carries either a CPU pixel
// buffer (Pix) or a GPU Surface. Pix is tightly packed in Format's layout.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Pix       []byte
	Surface   Surface
	Timestamp time.Time
}

// NewFrame allocates a zeroed CPU frame.
func NewFrame(w, h int, format PixelFormat) *Frame {
	return &Frame{
		Width:  w,
		Height: h,
		Format: format,
		Pix:    make([]byte, format.BufferSize(w, h)),
	}
}

// IsCPU reports whether the frame has a CPU-addressable pixel buffer.
func (f *Frame) IsCPU() bool {
	return f != nil && f.Pix != nil
}

// Bounds returns the frame rectangle with origin at (0, 0).
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Validate checks that the frame is usable: non-nil, non-empty, and backed
// by either a correctly sized pixel buffer or a surface.
func (f *Frame) Validate() error {
	switch {
	case f == nil:
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	case f.Width <= 0 || f.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	case f.Format < Gray8 || f.Format > NV12:
		return fmt.Errorf("%w: unknown format %s", ErrInvalidFrame, f.Format)
	case f.Pix == nil && f.Surface == nil:
		return fmt.Errorf("%w: neither bitmap nor surface", ErrInvalidFrame)
	case f.Pix != nil && len(f.Pix) < f.Format.BufferSize(f.Width, f.Height):
		return fmt.Errorf("%w: buffer has %d bytes, %s %dx%d needs %d",
			ErrInvalidFrame, len(f.Pix), f.Format, f.Width, f.Height, f.Format.BufferSize(f.Width, f.Height))
	}
	return nil
}

// EnsureCPU returns a frame with a CPU pixel buffer, downloading the
// surface when the frame is GPU-backed. CPU frames are returned as is.
func (f *Frame) EnsureCPU(ctx context.Context) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.IsCPU() {
		return f, nil
	}
	cpu, err := f.Surface.Download(ctx)
	if err != nil {
		return nil, fmt.Errorf("download surface: %w", err)
	}
	if err := cpu.Validate(); err != nil {
		return nil, fmt.Errorf("downloaded surface: %w", err)
	}
	if !cpu.IsCPU() {
		return nil, fmt.Errorf("%w: surface download returned no bitmap", ErrInvalidFrame)
	}
	if cpu.Timestamp.IsZero() {
		cpu.Timestamp = f.Timestamp
	}
	return cpu, nil
}

// Clone returns a deep copy of a CPU frame.
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Pix != nil {
		c.Pix = append([]byte(nil), f.Pix...)
	}
	return &c
}
