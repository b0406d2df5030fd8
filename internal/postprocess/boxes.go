package postprocess

import (
	"image"
	"sort"
)

// EnlargeAndClamp grows box by factor around its center and clamps it to
// bounds. Each side moves out by int(size*(factor-1)); the origin is then
// clamped to bounds.Min and the size capped so the box ends inside bounds.
//
// For box (10,10,20,20) in a 100×100 frame and factor 1.5 the offset is 10
// and the result is (0,0,40,40).
func EnlargeAndClamp(box image.Rectangle, factor float64, bounds image.Rectangle) image.Rectangle {
	w, h := box.Dx(), box.Dy()
	offX := int(float64(w) * (factor - 1))
	offY := int(float64(h) * (factor - 1))

	x := max(bounds.Min.X, box.Min.X-offX)
	y := max(bounds.Min.Y, box.Min.Y-offY)
	nw := max(0, min(w+2*offX, bounds.Max.X-x))
	nh := max(0, min(h+2*offY, bounds.Max.Y-y))
	return image.Rect(x, y, x+nw, y+nh)
}

// IoU returns the intersection-over-union of two rectangles.
func IoU(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// NMS performs greedy non-maximum suppression and returns the indices of the
// kept boxes in descending score order. Equal scores keep input order.
func NMS(boxes []image.Rectangle, scores []float32, iouThreshold float32) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	suppressed := make([]bool, len(boxes))
	keep := make([]int, 0, len(boxes))
	for i, idx := range order {
		if suppressed[idx] {
			continue
		}
		keep = append(keep, idx)
		for _, other := range order[i+1:] {
			if !suppressed[other] && IoU(boxes[idx], boxes[other]) > iouThreshold {
				suppressed[other] = true
			}
		}
	}
	return keep
}

// NormalizedRect is a rectangle in [0, 1] coordinates relative to a frame.
type NormalizedRect struct {
	Left, Top, Width, Height float32
}

// Normalize expresses rect relative to bounds.
func Normalize(rect, bounds image.Rectangle) NormalizedRect {
	bw, bh := float32(bounds.Dx()), float32(bounds.Dy())
	if bw <= 0 || bh <= 0 {
		return NormalizedRect{}
	}
	return NormalizedRect{
		Left:   float32(rect.Min.X-bounds.Min.X) / bw,
		Top:    float32(rect.Min.Y-bounds.Min.Y) / bh,
		Width:  float32(rect.Dx()) / bw,
		Height: float32(rect.Dy()) / bh,
	}
}

// Denormalize maps r back to pixel coordinates within bounds, rounding to
// the nearest pixel and clipping to bounds.
func (r NormalizedRect) Denormalize(bounds image.Rectangle) image.Rectangle {
	bw, bh := float32(bounds.Dx()), float32(bounds.Dy())
	x0 := bounds.Min.X + round(r.Left*bw)
	y0 := bounds.Min.Y + round(r.Top*bh)
	x1 := bounds.Min.X + round((r.Left+r.Width)*bw)
	y1 := bounds.Min.Y + round((r.Top+r.Height)*bh)
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}

// Slice returns [left, top, width, height].
func (r NormalizedRect) Slice() []float32 {
	return []float32{r.Left, r.Top, r.Width, r.Height}
}

// RectFromSlice reads [left, top, width, height] from v, which must have at least 4 elements.
func RectFromSlice(v []float32) NormalizedRect {
	return NormalizedRect{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}
}

func round(v float32) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
