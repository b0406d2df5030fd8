package objecttracker

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/parallel"
)

// Tracker follows one target across frames.
type Tracker interface {
	Init(frame *imaging.Frame, rect image.Rectangle) error
	Update(ctx context.Context, frame *imaging.Frame) (Result, error)
}

// TemplateTracker locates a grayscale template by normalized cross
// correlation within a search window around the last position. The window
// is SearchScale times the target size, clamped to the frame.
type TemplateTracker struct {
	Threshold   float64
	SearchScale float64
	Parallel    parallel.Config

	template []float64 // zero-mean
	norm     float64
	rect     image.Rectangle
}

// NewTemplateTracker returns a tracker with a 0.5 correlation threshold and
// a search window twice the target size.
func NewTemplateTracker() *TemplateTracker {
	return &TemplateTracker{Threshold: 0.5, SearchScale: 2, Parallel: parallel.DefaultConfig()}
}

// Init captures the template under rect.
func (t *TemplateTracker) Init(frame *imaging.Frame, rect image.Rectangle) error {
	if !frame.IsCPU() {
		return fmt.Errorf("%w: tracking needs a CPU frame", imaging.ErrInvalidFrame)
	}
	rect = rect.Intersect(frame.Bounds())
	if rect.Dx() < 2 || rect.Dy() < 2 {
		return fmt.Errorf("target %v is too small", rect)
	}

	patch := make([]float64, 0, rect.Dx()*rect.Dy())
	var mean float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := float64(frame.Luma(x, y))
			patch = append(patch, v)
			mean += v
		}
	}
	mean /= float64(len(patch))
	var ss float64
	for i := range patch {
		patch[i] -= mean
		ss += patch[i] * patch[i]
	}

	t.template, t.norm, t.rect = patch, math.Sqrt(ss), rect
	return nil
}

// Update searches frame for the template. On failure the last position is
// reported with Succeeded false.
func (t *TemplateTracker) Update(ctx context.Context, frame *imaging.Frame) (Result, error) {
	if t.template == nil {
		return Result{}, fmt.Errorf("tracker is not initialized")
	}
	if !frame.IsCPU() {
		return Result{}, fmt.Errorf("%w: tracking needs a CPU frame", imaging.ErrInvalidFrame)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tw, th := t.rect.Dx(), t.rect.Dy()
	window := t.searchWindow(frame.Bounds())
	if window.Dx() < tw || window.Dy() < th {
		return Result{Rect: t.rect}, nil
	}

	ww, wh := window.Dx(), window.Dy()
	gray := make([]float64, ww*wh)
	for y := range wh {
		for x := range ww {
			gray[y*ww+x] = float64(frame.Luma(window.Min.X+x, window.Min.Y+y))
		}
	}

	type match struct {
		score float64
		x, y  int
	}
	rows := wh - th + 1
	best := make([]match, rows)
	parallel.Rows(rows, t.Parallel, func(start, end int) {
		for oy := start; oy < end; oy++ {
			m := match{score: math.Inf(-1)}
			for ox := 0; ox+tw <= ww; ox++ {
				if s := t.correlate(gray, ww, ox, oy); s > m.score {
					m = match{score: s, x: ox, y: oy}
				}
			}
			best[oy] = m
		}
	})

	top := match{score: math.Inf(-1)}
	for _, m := range best {
		if m.score > top.score {
			top = m
		}
	}
	if top.score < t.Threshold {
		return Result{Rect: t.rect}, nil
	}
	at := image.Pt(window.Min.X+top.x, window.Min.Y+top.y)
	t.rect = image.Rectangle{Min: at, Max: at.Add(t.rect.Size())}
	return Result{Rect: t.rect, Succeeded: true}, nil
}

func (t *TemplateTracker) searchWindow(bounds image.Rectangle) image.Rectangle {
	scale := max(1, t.SearchScale)
	w := int(float64(t.rect.Dx()) * scale)
	h := int(float64(t.rect.Dy()) * scale)
	c := t.rect.Min.Add(t.rect.Max).Div(2)
	return image.Rect(c.X-w/2, c.Y-h/2, c.X-w/2+w, c.Y-h/2+h).Intersect(bounds)
}

// correlate returns the NCC of the template with the window patch at (ox, oy).
// A flat patch or template scores 0.
func (t *TemplateTracker) correlate(gray []float64, stride, ox, oy int) float64 {
	tw, th := t.rect.Dx(), t.rect.Dy()
	n := float64(tw * th)
	var sum, sumSq, cross float64
	for y := range th {
		row := gray[(oy+y)*stride+ox:]
		tmpl := t.template[y*tw:]
		for x := range tw {
			v := row[x]
			sum += v
			sumSq += v * v
			cross += v * tmpl[x]
		}
	}
	variance := sumSq - sum*sum/n
	if variance <= 1e-9 || t.norm <= 1e-9 {
		return 0
	}
	return cross / (math.Sqrt(variance) * t.norm)
}

// Rect returns the last known target position.
func (t *TemplateTracker) Rect() image.Rectangle { return t.rect }

var _ Tracker = (*TemplateTracker)(nil)

