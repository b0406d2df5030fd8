package skeletal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/tensor"
)

// heatmaps puts a peak of value v at (x, y) in every joint channel of a 4x8 map.
func heatmaps(t *testing.T, x, y int, v float32) *tensor.Tensor {
	t.Helper()
	const h, w = 8, 4
	data := make([]float32, int(JointCount)*h*w)
	for j := range int(JointCount) {
		data[j*h*w+y*w+x] = v
	}
	out, err := tensor.FromFloat32(data, tensor.Shape{1, int(JointCount), h, w})
	require.NoError(t, err)
	return out
}

func TestDecodeHeatmaps(t *testing.T) {
	kps, err := DecodeHeatmaps(heatmaps(t, 1, 2, 0.8))
	require.NoError(t, err)
	require.Len(t, kps, int(JointCount))
	assert.Equal(t, LeftWrist, kps[9].Joint)
	assert.InDelta(t, 1.5/4, kps[0].X, 1e-6)
	assert.InDelta(t, 2.5/8, kps[0].Y, 1e-6)
	assert.InDelta(t, 0.8, kps[16].Score, 1e-6)
}

func TestDecodeHeatmapsFirstPeakWins(t *testing.T) {
	hm := heatmaps(t, 3, 0, 0.5)
	hm.Float32()[7] = 0.5 // (3, 1) in joint 0, same score, later in scan order
	kps, err := DecodeHeatmaps(hm)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/8, kps[0].Y, 1e-6)
}

func TestDecodeHeatmapsShape(t *testing.T) {
	_, err := DecodeHeatmaps(tensor.Zeros(tensor.Shape{1, 5, 4, 4}, tensor.Float32))
	assert.Error(t, err)
}

func TestLimbs(t *testing.T) {
	ls := Limbs()
	assert.Len(t, ls, 19)
	for _, l := range ls {
		assert.Less(t, int(l.From), int(JointCount))
		assert.Less(t, int(l.To), int(JointCount))
	}
	ls[0].From = Nose
	assert.Equal(t, LeftAnkle, Limbs()[0].From, "callers get a copy")
	assert.Equal(t, "right_ankle", RightAnkle.String())
}

type fakeSession struct{ out *tensor.Tensor }

func (s *fakeSession) Run(_ context.Context, in map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	if in["input"] == nil {
		return nil, assert.AnError
	}
	return map[string]*tensor.Tensor{"output": s.out}, nil
}

func (s *fakeSession) Close() error { return nil }

func evaluate(t *testing.T, peak float32) *Binding {
	t.Helper()
	desc, err := NewDescriptor(nil)
	require.NoError(t, err)
	s, err := New(desc, device.CPU(), &fakeSession{out: heatmaps(t, 1, 2, peak)}, DefaultConfig())
	require.NoError(t, err)
	b, err := s.CreateBinding()
	require.NoError(t, err)
	require.NoError(t, b.SetInputImage(imaging.NewFrame(40, 80, imaging.BGRA8)))
	require.NoError(t, s.Evaluate(context.Background(), b))
	return b
}

func TestEvaluateFindsBody(t *testing.T) {
	b := evaluate(t, 0.9)
	bodies := b.Bodies()
	require.Len(t, bodies, 1)
	assert.InDelta(t, 0.375, bodies[0][Nose].X, 1e-6)
	assert.InDelta(t, 0.9, bodies[0][RightAnkle].Score, 1e-6)
}

func TestEvaluateBelowThreshold(t *testing.T) {
	b := evaluate(t, 0.1)
	assert.Nil(t, b.Bodies())
	assert.Equal(t, make([]float32, int(JointCount)*3), b.Floats(Joints))
	assert.Equal(t, []int64{0}, b.Ints(BodyCount))
}

func TestEvaluateForeignBinding(t *testing.T) {
	desc, _ := NewDescriptor(nil)
	a, _ := New(desc, device.CPU(), &fakeSession{}, DefaultConfig())
	other, _ := New(desc, device.CPU(), &fakeSession{}, DefaultConfig())
	b, _ := other.CreateBinding()
	assert.ErrorIs(t, a.Evaluate(context.Background(), b), skill.ErrInvalidArgument)
}
