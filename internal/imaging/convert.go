package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/born-ml/vision/internal/parallel"
)

// rgba reads pixel (x, y) of a CPU frame as straight RGBA.
func (f *Frame) rgba(x, y int) (r, g, b, a uint8) {
	switch f.Format {
	case Gray8:
		v := f.Pix[y*f.Width+x]
		return v, v, v, 255
	case BGRA8:
		i := 4 * (y*f.Width + x)
		return f.Pix[i+2], f.Pix[i+1], f.Pix[i], f.Pix[i+3]
	case RGBA8:
		i := 4 * (y*f.Width + x)
		return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
	case NV12:
		yy := f.Pix[y*f.Width+x]
		uv := f.Width*f.Height + (y/2)*chromaStride(f.Width) + (x/2)*2
		r, g, b = yuvToRGB(yy, f.Pix[uv], f.Pix[uv+1])
		return r, g, b, 255
	}
	return 0, 0, 0, 0
}

// Luma returns the BT.601 luma of pixel (x, y) of a CPU frame.
func (f *Frame) Luma(x, y int) uint8 {
	switch f.Format {
	case Gray8, NV12:
		return f.Pix[y*f.Width+x]
	default:
		r, g, b, _ := f.rgba(x, y)
		return luma(r, g, b)
	}
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

func clamp8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// yuvToRGB converts BT.601 limited-range YUV.
func yuvToRGB(y, u, v uint8) (r, g, b uint8) {
	c := int(y) - 16
	d := int(u) - 128
	e := int(v) - 128
	r = clamp8((298*c + 409*e + 128) >> 8)
	g = clamp8((298*c - 100*d - 208*e + 128) >> 8)
	b = clamp8((298*c + 516*d + 128) >> 8)
	return r, g, b
}

func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	ri, gi, bi := int(r), int(g), int(b)
	y = clamp8(((66*ri + 129*gi + 25*bi + 128) >> 8) + 16)
	u = clamp8(((-38*ri - 74*gi + 112*bi + 128) >> 8) + 128)
	v = clamp8(((112*ri - 94*gi - 18*bi + 128) >> 8) + 128)
	return y, u, v
}

// Convert returns a CPU copy of the frame in the requested pixel format.
// Converting to the frame's own format returns a clone.
func (f *Frame) Convert(format PixelFormat) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !f.IsCPU() {
		return nil, fmt.Errorf("%w: convert needs a CPU frame", ErrInvalidFrame)
	}
	if f.Format == format {
		return f.Clone(), nil
	}

	out := NewFrame(f.Width, f.Height, format)
	out.Timestamp = f.Timestamp
	w := f.Width

	if format == NV12 {
		f.toNV12(out)
		return out, nil
	}

	bpp := format.bytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported target format %s", format)
	}
	parallel.Rows(f.Height, parallel.DefaultConfig(), func(start, end int) {
		for y := start; y < end; y++ {
			row := out.Pix[y*w*bpp : (y+1)*w*bpp]
			for x := 0; x < w; x++ {
				r, g, b, a := f.rgba(x, y)
				switch format {
				case Gray8:
					row[x] = luma(r, g, b)
				case BGRA8:
					row[4*x], row[4*x+1], row[4*x+2], row[4*x+3] = b, g, r, a
				case RGBA8:
					row[4*x], row[4*x+1], row[4*x+2], row[4*x+3] = r, g, b, a
				}
			}
		}
	})
	return out, nil
}

// toNV12 writes f into out, averaging chroma over each 2×2 block.
func (f *Frame) toNV12(out *Frame) {
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := f.rgba(x, y)
			out.Pix[y*w+x], _, _ = rgbToYUV(r, g, b)
		}
	}
	cs := chromaStride(w)
	for cy := 0; cy < (h+1)/2; cy++ {
		for cx := 0; cx < (w+1)/2; cx++ {
			var su, sv, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := 2*cx+dx, 2*cy+dy
					if x >= w || y >= h {
						continue
					}
					r, g, b, _ := f.rgba(x, y)
					_, u, v := rgbToYUV(r, g, b)
					su += int(u)
					sv += int(v)
					n++
				}
			}
			i := w*h + cy*cs + 2*cx
			out.Pix[i] = uint8(su / n)
			out.Pix[i+1] = uint8(sv / n)
		}
	}
}

// FromImage copies any image.Image into a BGRA8 frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	out := NewFrame(b.Dx(), b.Dy(), BGRA8)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := 4 * (y*out.Width + x)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.B, c.G, c.R, c.A
		}
	}
	return out
}

// ToImage renders a CPU frame as an image.Image: *image.Gray for Gray8,
// *image.NRGBA otherwise.
func (f *Frame) ToImage() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !f.IsCPU() {
		return nil, fmt.Errorf("%w: ToImage needs a CPU frame", ErrInvalidFrame)
	}
	if f.Format == Gray8 {
		g := image.NewGray(f.Bounds())
		copy(g.Pix, f.Pix)
		return g, nil
	}
	img := image.NewNRGBA(f.Bounds())
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b, a := f.rgba(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: a})
		}
	}
	return img, nil
}

// Fill paints rect with a solid color.
func (f *Frame) Fill(rect image.Rectangle, c color.Color) error {
	img, err := f.ToImage()
	if err != nil {
		return err
	}
	dst, ok := img.(draw.Image)
	if !ok {
		return fmt.Errorf("frame image is not drawable")
	}
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
	painted := FromImage(dst)
	if f.Format != BGRA8 {
		if painted, err = painted.Convert(f.Format); err != nil {
			return err
		}
	}
	copy(f.Pix, painted.Pix)
	return nil
}
