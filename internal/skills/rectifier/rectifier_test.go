package rectifier

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/skill"
)

func TestSolveHomography(t *testing.T) {
	src := [4]Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	dst := [4]Point{{10, 20}, {30, 20}, {40, 60}, {5, 50}}
	h, err := SolveHomography(src, dst)
	require.NoError(t, err)
	for i := range src {
		p := h.Apply(src[i])
		assert.InDelta(t, dst[i].X, p.X, 1e-9)
		assert.InDelta(t, dst[i].Y, p.Y, 1e-9)
	}

	_, err = SolveHomography(src, [4]Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
	assert.Error(t, err)
}

func TestOutputSize(t *testing.T) {
	w, h := OutputSize([4]Point{{0, 0}, {9, 0}, {9, 4}, {0, 4}})
	assert.Equal(t, 10, w)
	assert.Equal(t, 5, h)

	w, h = OutputSize([4]Point{{0, 0}, {6, 0}, {9, 4}, {0, 4}})
	assert.Equal(t, 10, w, "longer of the two horizontal edges")
	assert.Equal(t, 6, h)
}

func TestParseInterpolation(t *testing.T) {
	i, err := ParseInterpolation("")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, i)
	i, err = ParseInterpolation("nearest")
	require.NoError(t, err)
	assert.Equal(t, Nearest, i)
	_, err = ParseInterpolation("cubic")
	assert.Error(t, err)
}

func pattern(t *testing.T) *imaging.Frame {
	t.Helper()
	f := imaging.NewFrame(8, 8, imaging.BGRA8)
	for y := range 8 {
		for x := range 8 {
			require.NoError(t, f.Fill(image.Rect(x, y, x+1, y+1), color.NRGBA{R: uint8(x * 30), G: uint8(y * 30), B: 7, A: 255}))
		}
	}
	return f
}

func TestRectifyAxisAlignedIsCrop(t *testing.T) {
	f := pattern(t)
	quad := [4]Point{{2, 3}, {5, 3}, {5, 6}, {2, 6}}
	w, h := OutputSize(quad)
	require.Equal(t, 4, w)

	for _, interp := range []Interpolation{Nearest, Bilinear} {
		out, err := Rectify(f, quad, w, h, interp, parallel.Config{})
		require.NoError(t, err)
		crop, err := f.Crop(image.Rect(2, 3, 6, 7))
		require.NoError(t, err)
		for i := range crop.Pix {
			assert.InDelta(t, crop.Pix[i], out.Pix[i], 1, "%s byte %d", interp, i)
		}
	}
}

func TestRectifyOutsideIsTransparent(t *testing.T) {
	f := pattern(t)
	out, err := Rectify(f, [4]Point{{-10, -10}, {-5, -10}, {-5, -5}, {-10, -5}}, 3, 3, Bilinear, parallel.Config{})
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 3*3*4), out.Pix)
}

func TestRectifyConvertsFormats(t *testing.T) {
	f := imaging.NewFrame(4, 4, imaging.Gray8)
	out, err := Rectify(f, [4]Point{{0, 0}, {3, 0}, {3, 3}, {0, 3}}, 4, 4, Nearest, parallel.Config{})
	require.NoError(t, err)
	assert.Equal(t, imaging.BGRA8, out.Format)

	_, err = Rectify(f, [4]Point{{0, 0}, {3, 0}, {3, 3}, {0, 3}}, 0, 4, Nearest, parallel.Config{})
	assert.Error(t, err)
}

func newSkill(t *testing.T) *Skill {
	t.Helper()
	desc, err := NewDescriptor(nil)
	require.NoError(t, err)
	s, err := New(desc, device.CPU())
	require.NoError(t, err)
	return s
}

func TestEvaluateWholeFrame(t *testing.T) {
	s := newSkill(t)
	b, err := s.CreateBinding()
	require.NoError(t, err)
	f := pattern(t)
	require.NoError(t, b.SetInputImage(f))
	require.NoError(t, b.SetInterpolation(Nearest))

	require.NoError(t, s.Evaluate(context.Background(), b))
	out := b.OutputImage()
	require.NotNil(t, out)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 8, out.Height)
	assert.Equal(t, f.Pix, out.Pix)
}

func TestEvaluateQuad(t *testing.T) {
	s := newSkill(t)
	b, _ := s.CreateBinding()
	require.NoError(t, b.SetInputImage(pattern(t)))
	require.NoError(t, b.SetQuad([4]Point{{0, 0}, {0.5, 0}, {0.5, 0.5}, {0, 0.5}}))

	require.NoError(t, s.Evaluate(context.Background(), b))
	out := b.OutputImage()
	assert.Equal(t, 5, out.Width, "3.5 pixels spanned rounds to 4, plus one")
}

func TestEvaluateRejectsBadInterpolation(t *testing.T) {
	s := newSkill(t)
	b, _ := s.CreateBinding()
	require.NoError(t, b.SetInputImage(pattern(t)))
	v, err := skill.StringValue([]string{"cubic"})
	require.NoError(t, err)
	require.NoError(t, b.Set(InterpolationKind, v))
	assert.ErrorIs(t, s.Evaluate(context.Background(), b), skill.ErrInvalidArgument)
}

func TestCPUOnly(t *testing.T) {
	desc, err := NewDescriptor(nil)
	require.NoError(t, err)
	_, err = New(desc, device.GPU("gpu", device.Level12_1))
	assert.ErrorIs(t, err, skill.ErrUnsupportedDevice)
}
