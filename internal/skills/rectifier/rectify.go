package rectifier

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/parallel"
)

// Interpolation selects how source pixels are sampled.
type Interpolation int

// Interpolation kinds.
const (
	Bilinear Interpolation = iota
	Nearest
)

func (i Interpolation) String() string {
	if i == Nearest {
		return "nearest"
	}
	return "bilinear"
}

// ParseInterpolation parses "bilinear" or "nearest"; empty means bilinear.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

// OutputSize returns the rectified size of quad (TL, TR, BR, BL, at pixel
// centers): the pixels spanned by the longer of each pair of opposite edges.
func OutputSize(quad [4]Point) (int, int) {
	dist := func(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }
	w := math.Max(dist(quad[0], quad[1]), dist(quad[3], quad[2]))
	h := math.Max(dist(quad[0], quad[3]), dist(quad[1], quad[2]))
	return int(math.Round(w)) + 1, int(math.Round(h)) + 1
}

// Rectify warps the region of frame inside quad (TL, TR, BR, BL, in pixels)
// to an upright BGRA8 frame of width x height. Samples outside the frame are
// transparent black.
func Rectify(frame *imaging.Frame, quad [4]Point, width, height int, interp Interpolation, cfg parallel.Config) (*imaging.Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("output size %dx%d", width, height)
	}
	src := frame
	if frame.Format != imaging.BGRA8 {
		var err error
		if src, err = frame.Convert(imaging.BGRA8); err != nil {
			return nil, err
		}
	} else if err := frame.Validate(); err != nil {
		return nil, err
	}
	if !src.IsCPU() {
		return nil, fmt.Errorf("%w: rectify needs a CPU frame", imaging.ErrInvalidFrame)
	}

	cw, ch := float64(max(width-1, 1)), float64(max(height-1, 1))
	corners := [4]Point{{0, 0}, {cw, 0}, {cw, ch}, {0, ch}}
	h, err := SolveHomography(corners, quad)
	if err != nil {
		return nil, err
	}

	out := imaging.NewFrame(width, height, imaging.BGRA8)
	out.Timestamp = frame.Timestamp
	parallel.Rows(height, cfg, func(start, end int) {
		for y := start; y < end; y++ {
			for x := range width {
				p := h.Apply(Point{float64(x), float64(y)})
				i := 4 * (y*width + x)
				if interp == Nearest {
					sampleNearest(src, p, out.Pix[i:i+4])
				} else {
					sampleBilinear(src, p, out.Pix[i:i+4])
				}
			}
		}
	})
	return out, nil
}

func pixel(f *imaging.Frame, x, y int) []byte {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return nil
	}
	i := 4 * (y*f.Width + x)
	return f.Pix[i : i+4]
}

func sampleNearest(f *imaging.Frame, p Point, dst []byte) {
	if math.IsInf(p.X, 0) || math.IsNaN(p.X) {
		return
	}
	if px := pixel(f, int(math.Round(p.X)), int(math.Round(p.Y))); px != nil {
		copy(dst, px)
	}
}

func sampleBilinear(f *imaging.Frame, p Point, dst []byte) {
	if math.IsInf(p.X, 0) || math.IsNaN(p.X) {
		return
	}
	x0, y0 := int(math.Floor(p.X)), int(math.Floor(p.Y))
	fx, fy := p.X-float64(x0), p.Y-float64(y0)

	var acc [4]float64
	var weight float64
	for _, s := range [4]struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		px := pixel(f, x0+s.dx, y0+s.dy)
		if px == nil || s.w == 0 {
			continue
		}
		for c := range 4 {
			acc[c] += s.w * float64(px[c])
		}
		weight += s.w
	}
	if weight < 0.5 {
		return
	}
	for c := range 4 {
		dst[c] = uint8(math.Round(acc[c] / weight))
	}
}
