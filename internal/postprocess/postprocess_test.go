package postprocess

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	return s
}

func TestSoftmaxSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(16)
		logits := make([]float32, n)
		for i := range logits {
			logits[i] = float32(rng.NormFloat64() * 20)
		}
		probs := Softmax(logits)
		require.Len(t, probs, n)
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, float32(0))
		}
		assert.InDelta(t, 1.0, sum(probs), 1e-5)
	}
}

func TestSoftmaxDegenerateCases(t *testing.T) {
	probs := Softmax([]float32{0, 0, 0, 0})
	assert.InDeltaSlice(t, []float32{0.25, 0.25, 0.25, 0.25}, probs, 1e-7)

	negInf := float32(math.Inf(-1))
	assert.Equal(t, []float32{0, 0, 0}, Softmax([]float32{negInf, negInf, negInf}))

	assert.Empty(t, Softmax(nil))
}

func TestSoftmaxLargeLogits(t *testing.T) {
	probs := Softmax([]float32{1000, 1000})
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, probs, 1e-7)
}

func TestSoftmaxRegions(t *testing.T) {
	out, err := SoftmaxRegions([]float32{0, 0, 1, 1, 5, 5}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, out, 1e-7)

	_, err = SoftmaxRegions([]float32{1, 2, 3}, 2)
	assert.Error(t, err)
	_, err = SoftmaxRegions([]float32{1}, 0)
	assert.Error(t, err)
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		wantIdx int
		wantVal float32
	}{
		{"tie goes to first", []float32{0.1, 0.7, 0.7, 0.1}, 1, 0.7},
		{"single", []float32{3}, 0, 3},
		{"last", []float32{1, 2, 3}, 2, 3},
		{"empty", nil, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, val := ArgMax(tt.scores)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantVal, val)
		})
	}
}

func TestEnlargeAndClamp(t *testing.T) {
	frame := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name string
		box  image.Rectangle
		want image.Rectangle
	}{
		{"clamped at top-left", image.Rect(10, 10, 30, 30), image.Rect(0, 0, 40, 40)},
		{"interior", image.Rect(40, 40, 60, 60), image.Rect(30, 30, 70, 70)},
		{"clamped at bottom-right", image.Rect(80, 80, 100, 100), image.Rect(70, 70, 100, 100)},
		{"whole frame", frame, frame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnlargeAndClamp(tt.box, 1.5, frame)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.In(frame))
		})
	}
}

func TestEnlargeAndClampDeterministic(t *testing.T) {
	box := image.Rect(13, 27, 61, 88)
	bounds := image.Rect(0, 0, 640, 480)
	first := EnlargeAndClamp(box, 1.5, bounds)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, EnlargeAndClamp(box, 1.5, bounds))
	}
}

func TestIoUAndNMS(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	b := image.Rect(5, 0, 15, 10)
	c := image.Rect(50, 50, 60, 60)

	assert.InDelta(t, 50.0/150.0, IoU(a, b), 1e-6)
	assert.Equal(t, float32(0), IoU(a, c))
	assert.Equal(t, float32(1), IoU(a, a))

	keep := NMS([]image.Rectangle{a, b, c, a}, []float32{0.6, 0.9, 0.5, 0.6}, 0.3)
	assert.Equal(t, []int{1, 2}, keep)

	keep = NMS([]image.Rectangle{a, b}, []float32{0.6, 0.9}, 0.5)
	assert.Equal(t, []int{1, 0}, keep)
}

func TestNormalizeRoundTrip(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	rect := image.Rect(20, 10, 120, 60)

	n := Normalize(rect, bounds)
	assert.Equal(t, NormalizedRect{Left: 0.1, Top: 0.1, Width: 0.5, Height: 0.5}, n)
	assert.Equal(t, rect, n.Denormalize(bounds))
	assert.Equal(t, []float32{0.1, 0.1, 0.5, 0.5}, n.Slice())
	assert.Equal(t, n, RectFromSlice(n.Slice()))

	assert.Equal(t, NormalizedRect{}, Normalize(rect, image.Rectangle{}))
}
