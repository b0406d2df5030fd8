// Package postprocess turns raw model outputs into skill results: score
// normalization, class selection and box geometry.
package postprocess

import (
	"fmt"
	"math"
)

// Softmax converts logits to probabilities: exp(x_i) / Σ exp(x_j).
// The maximum is subtracted first for numerical stability. When the sum is
// exactly zero (every logit is -Inf) it is clamped to 1 and the result is all zeros.
func Softmax(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	if len(logits) == 0 {
		return probs
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := float32(0)
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			probs[i] = 0
			continue
		}
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}

	if sum == 0 {
		sum = 1
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// SoftmaxRegions applies Softmax independently to consecutive groups of
// classes logits (one group per detected region) and concatenates the
// results in region order.
func SoftmaxRegions(logits []float32, classes int) ([]float32, error) {
	if classes <= 0 {
		return nil, fmt.Errorf("classes must be positive, got %d", classes)
	}
	if len(logits)%classes != 0 {
		return nil, fmt.Errorf("%d logits are not a multiple of %d classes", len(logits), classes)
	}
	out := make([]float32, 0, len(logits))
	for start := 0; start < len(logits); start += classes {
		out = append(out, Softmax(logits[start:start+classes])...)
	}
	return out, nil
}

// ArgMax returns the index and value of the largest score. Only strictly
// greater values replace the running best, so ties resolve to the first
// index. Returns -1 for an empty slice.
func ArgMax(scores []float32) (int, float32) {
	if len(scores) == 0 {
		return -1, 0
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, v := range scores[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx, maxVal
}
