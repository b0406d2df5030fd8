package imaging

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// packed returns f, or a BGRA8 copy when f is planar.
func (f *Frame) packed() (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !f.IsCPU() {
		return nil, fmt.Errorf("%w: needs a CPU frame", ErrInvalidFrame)
	}
	if f.Format == NV12 {
		return f.Convert(BGRA8)
	}
	return f, nil
}

// Crop copies the part of the frame inside rect, which is first clipped to
// the frame bounds. NV12 frames are cropped as BGRA8.
func (f *Frame) Crop(rect image.Rectangle) (*Frame, error) {
	src, err := f.packed()
	if err != nil {
		return nil, err
	}
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: crop %v outside %v", ErrInvalidFrame, rect, src.Bounds())
	}

	bpp := src.Format.bytesPerPixel()
	out := NewFrame(rect.Dx(), rect.Dy(), src.Format)
	out.Timestamp = f.Timestamp
	rowLen := rect.Dx() * bpp
	for y := 0; y < rect.Dy(); y++ {
		s := ((rect.Min.Y+y)*src.Width + rect.Min.X) * bpp
		copy(out.Pix[y*rowLen:(y+1)*rowLen], src.Pix[s:s+rowLen])
	}
	return out, nil
}

// Resize scales the frame to w×h with bilinear filtering. NV12 frames are
// resized as BGRA8.
func (f *Frame) Resize(w, h int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: resize to %dx%d", ErrInvalidFrame, w, h)
	}
	src, err := f.packed()
	if err != nil {
		return nil, err
	}
	if src.Width == w && src.Height == h {
		return src.Clone(), nil
	}

	out := NewFrame(w, h, src.Format)
	out.Timestamp = f.Timestamp
	// Interpolation is per channel, so four-byte formats can be scaled as
	// RGBA regardless of channel order.
	var dst xdraw.Image
	var s image.Image
	if src.Format == Gray8 {
		dst = &image.Gray{Pix: out.Pix, Stride: w, Rect: out.Bounds()}
		s = &image.Gray{Pix: src.Pix, Stride: src.Width, Rect: src.Bounds()}
	} else {
		dst = &image.RGBA{Pix: out.Pix, Stride: 4 * w, Rect: out.Bounds()}
		s = &image.RGBA{Pix: src.Pix, Stride: 4 * src.Width, Rect: src.Bounds()}
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), s, s.Bounds(), xdraw.Src, nil)
	return out, nil
}
