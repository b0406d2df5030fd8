package objecttracker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(20)
	for i := range 25 {
		h.Push(Result{Rect: image.Rect(i, 0, i+1, 1), Succeeded: i%2 == 0})
	}

	got := h.Results()
	require.Len(t, got, 20)
	for i, r := range got {
		assert.Equal(t, i+5, r.Rect.Min.X, "entry %d", i)
	}
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 24, last.Rect.Min.X)
	assert.Equal(t, 20, h.Len())
	assert.Equal(t, 20, h.Cap())

	h.Clear()
	_, ok = h.Last()
	assert.False(t, ok)
	assert.Empty(t, h.Results())
}

func TestHistoryPartial(t *testing.T) {
	h := NewHistory(3)
	h.Push(Result{Rect: image.Rect(1, 1, 2, 2)})
	h.Push(Result{Rect: image.Rect(2, 2, 3, 3)})
	got := h.Results()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Rect.Min.X)
}

// targetFrame draws a textured square with its top-left corner at p.
func targetFrame(t *testing.T, p image.Point) *imaging.Frame {
	t.Helper()
	f := imaging.NewFrame(64, 64, imaging.BGRA8)
	require.NoError(t, f.Fill(f.Bounds(), color.NRGBA{A: 255}))
	require.NoError(t, f.Fill(image.Rect(0, 0, 8, 8).Add(p), color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	require.NoError(t, f.Fill(image.Rect(2, 2, 5, 5).Add(p), color.NRGBA{R: 90, G: 90, B: 90, A: 255}))
	return f
}

func TestTemplateTrackerFollowsTarget(t *testing.T) {
	tr := NewTemplateTracker()
	seed := image.Rect(8, 8, 20, 20)
	require.NoError(t, tr.Init(targetFrame(t, image.Pt(10, 10)), seed))

	res, err := tr.Update(context.Background(), targetFrame(t, image.Pt(14, 12)))
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, seed.Add(image.Pt(4, 2)), res.Rect)
	assert.Equal(t, res.Rect, tr.Rect())
}

func TestTemplateTrackerLosesTarget(t *testing.T) {
	tr := NewTemplateTracker()
	seed := image.Rect(8, 8, 20, 20)
	require.NoError(t, tr.Init(targetFrame(t, image.Pt(10, 10)), seed))

	blank := imaging.NewFrame(64, 64, imaging.BGRA8)
	res, err := tr.Update(context.Background(), blank)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, seed, res.Rect)
}

func TestTemplateTrackerErrors(t *testing.T) {
	tr := NewTemplateTracker()
	_, err := tr.Update(context.Background(), imaging.NewFrame(8, 8, imaging.Gray8))
	assert.Error(t, err)
	assert.Error(t, tr.Init(imaging.NewFrame(8, 8, imaging.Gray8), image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, tr.Init(&imaging.Frame{Width: 8, Height: 8}, image.Rect(0, 0, 4, 4)), imaging.ErrInvalidFrame)
}

type fakeTracker struct {
	inits   []image.Rectangle
	results []Result
	calls   int
	err     error
}

func (f *fakeTracker) Init(_ *imaging.Frame, r image.Rectangle) error {
	f.inits = append(f.inits, r)
	return nil
}

func (f *fakeTracker) Update(context.Context, *imaging.Frame) (Result, error) {
	if f.err != nil {
		return Result{}, f.err
	}
	r := f.results[f.calls%len(f.results)]
	f.calls++
	return r, nil
}

func rects(n int) []image.Rectangle {
	out := make([]image.Rectangle, n)
	for i := range out {
		out[i] = image.Rect(i, i, i+4, i+4)
	}
	return out
}

func TestTrackerSetCapsTrackers(t *testing.T) {
	var made []*fakeTracker
	set, err := NewTrackerSet(SetConfig{MaxTrackers: 3, MaxHistory: 5}, func() Tracker {
		ft := &fakeTracker{results: []Result{{Succeeded: true}}}
		made = append(made, ft)
		return ft
	})
	require.NoError(t, err)
	frame := imaging.NewFrame(16, 16, imaging.Gray8)

	n, err := set.AddTargets(context.Background(), frame, rects(2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = set.AddTargets(context.Background(), frame, rects(4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, image.Rect(0, 0, 4, 4), made[2].inits[0], "first seed of the batch wins")

	set.Reset()
	assert.Equal(t, 0, set.Len())
}

func TestTrackerSetHistoryAndReinit(t *testing.T) {
	ft := &fakeTracker{results: []Result{
		{Rect: image.Rect(1, 1, 5, 5), Succeeded: true},
		{Rect: image.Rect(2, 2, 6, 6), Succeeded: false},
	}}
	set, err := NewTrackerSet(SetConfig{MaxTrackers: 1, MaxHistory: 3, ReinitializePeriod: 2}, func() Tracker { return ft })
	require.NoError(t, err)
	frame := imaging.NewFrame(16, 16, imaging.Gray8)
	_, err = set.AddTargets(context.Background(), frame, rects(1))
	require.NoError(t, err)

	for range 4 {
		_, err := set.Update(context.Background(), frame)
		require.NoError(t, err)
	}
	// Every second update fails, so the periodic re-init never fires.
	assert.Len(t, ft.inits, 1)
	h := set.Histories()
	require.Len(t, h, 1)
	require.Len(t, h[0], 3)
	assert.False(t, h[0][2].Succeeded)

	ft.results = []Result{{Rect: image.Rect(3, 3, 7, 7), Succeeded: true}}
	ft.calls = 0
	for range 2 {
		_, err := set.Update(context.Background(), frame)
		require.NoError(t, err)
	}
	require.Len(t, ft.inits, 2)
	assert.Equal(t, image.Rect(3, 3, 7, 7), ft.inits[1])
}

func TestTrackerSetUpdateError(t *testing.T) {
	healthy := &fakeTracker{results: []Result{{Rect: image.Rect(0, 0, 2, 2), Succeeded: true}}}
	lost := &fakeTracker{err: errors.New("lost")}
	made := []*fakeTracker{healthy, lost}
	set, err := NewTrackerSet(SetConfig{MaxTrackers: 2, MaxHistory: 5, ReinitializePeriod: 1}, func() Tracker {
		ft := made[0]
		made = made[1:]
		return ft
	})
	require.NoError(t, err)
	frame := imaging.NewFrame(4, 4, imaging.Gray8)
	_, err = set.AddTargets(context.Background(), frame, rects(2))
	require.NoError(t, err)

	_, err = set.Update(context.Background(), frame)
	assert.ErrorContains(t, err, "update tracker 1: lost")

	hist := set.Histories()
	require.Len(t, hist, 2)
	assert.Len(t, hist[0], 1, "a failed update leaves every history untouched")
	assert.Len(t, hist[1], 1)
	assert.Len(t, healthy.inits, 1, "no re-initialization after a failed update")

	_, err = NewTrackerSet(SetConfig{}, func() Tracker { return lost })
	assert.Error(t, err)
}

func TestSkillEvaluate(t *testing.T) {
	desc, err := NewDescriptor(nil)
	require.NoError(t, err)
	s, err := New(desc, device.CPU(), DefaultSetConfig())
	require.NoError(t, err)

	b, err := s.CreateBinding()
	require.NoError(t, err)
	require.NoError(t, b.SetInputImage(targetFrame(t, image.Pt(10, 10))))
	require.NoError(t, s.Evaluate(context.Background(), b))
	assert.Equal(t, []bool{false}, b.Succeeded(), "no tracker yields the zero output")
	assert.Equal(t, make([]float32, 4), b.Floats(BoundingRects))

	n, err := s.AddTargets(context.Background(), targetFrame(t, image.Pt(10, 10)), []image.Rectangle{image.Rect(8, 8, 20, 20)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, b.SetInputImage(targetFrame(t, image.Pt(12, 10))))
	require.NoError(t, s.Evaluate(context.Background(), b))
	assert.Equal(t, []bool{true}, b.Succeeded())
	r := b.Rects()
	require.Len(t, r, 1)
	assert.InDelta(t, 10.0/64, r[0].Left, 1e-6)

	assert.Len(t, s.Histories()[0], 2)
	s.Reset()
	assert.Empty(t, s.Histories())
}

func TestSkillIsCPUOnly(t *testing.T) {
	desc, err := NewDescriptor(nil)
	require.NoError(t, err)
	_, err = New(desc, device.GPU("gpu", device.Level12_0), DefaultSetConfig())
	assert.ErrorIs(t, err, skill.ErrUnsupportedDevice)
}
