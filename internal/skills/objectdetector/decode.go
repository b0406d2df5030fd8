package objectdetector

import (
	"fmt"
	"image"
	"sort"

	"github.com/born-ml/vision/internal/postprocess"
	"github.com/born-ml/vision/internal/tensor"
)

// Detection is one decoded object.
type Detection struct {
	Class int
	Score float32
	Box   postprocess.NormalizedRect
}

// DecodeOptions controls Decode.
type DecodeOptions struct {
	InputWidth     int
	InputHeight    int
	ScoreThreshold float32
	IoUThreshold   float32
	MaxDetections  int
	// Classes keeps only the listed class indices when non-empty.
	Classes []int64
}

// Decode reads a YOLO-style [1, 4+C, N] output where each column holds
// cx, cy, w, h in input pixels followed by C class scores. Each candidate
// takes its best class; candidates at or below the score threshold are
// dropped and the rest are suppressed per class. The result is sorted by
// descending score.
func Decode(out *tensor.Tensor, opts DecodeOptions) ([]Detection, error) {
	shape := out.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] <= 4 {
		return nil, fmt.Errorf("detector output has shape %v, want [1, 4+C, N]", shape)
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, fmt.Errorf("input size %dx%d", opts.InputWidth, opts.InputHeight)
	}
	classes, n := shape[1]-4, shape[2]
	data := out.Float32()
	at := func(row, col int) float32 { return data[row*n+col] }

	allowed := make(map[int]bool, len(opts.Classes))
	for _, c := range opts.Classes {
		allowed[int(c)] = true
	}

	byClass := make(map[int][]Detection)
	for i := range n {
		best, score := postprocess.ArgMax(columnScores(at, classes, i))
		if score <= opts.ScoreThreshold {
			continue
		}
		if len(allowed) > 0 && !allowed[best] {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		iw, ih := float32(opts.InputWidth), float32(opts.InputHeight)
		x0, y0 := clamp01((cx-w/2)/iw), clamp01((cy-h/2)/ih)
		x1, y1 := clamp01((cx+w/2)/iw), clamp01((cy+h/2)/ih)
		box := postprocess.NormalizedRect{Left: x0, Top: y0, Width: x1 - x0, Height: y1 - y0}
		byClass[best] = append(byClass[best], Detection{Class: best, Score: score, Box: box})
	}

	// NMS works on integer rectangles; a fixed grid keeps enough precision.
	grid := image.Rect(0, 0, 1<<14, 1<<14)
	var result []Detection
	for _, dets := range byClass {
		rects := make([]image.Rectangle, len(dets))
		scores := make([]float32, len(dets))
		for i, d := range dets {
			rects[i] = d.Box.Denormalize(grid)
			scores[i] = d.Score
		}
		for _, k := range postprocess.NMS(rects, scores, opts.IoUThreshold) {
			result = append(result, dets[k])
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Class < result[j].Class
	})
	if opts.MaxDetections > 0 && len(result) > opts.MaxDetections {
		result = result[:opts.MaxDetections]
	}
	return result, nil
}

func columnScores(at func(row, col int) float32, classes, col int) []float32 {
	s := make([]float32, classes)
	for c := range s {
		s[c] = at(4+c, col)
	}
	return s
}

func clamp01(v float32) float32 {
	return max(0, min(1, v))
}
