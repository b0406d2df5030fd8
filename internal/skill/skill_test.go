package skill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
)

func testDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(Descriptor{
		Name:    "test skill",
		Version: "1.0",
		Kind:    FaceSentiment,
		Inputs: []FeatureDescriptor{
			{Name: "InputImage", Kind: KindImage, Required: true, PixelFormat: imaging.BGRA8},
			{Name: "Threshold", Kind: KindTensorFloat, Shape: []int64{1}},
		},
		Outputs: []FeatureDescriptor{
			{Name: "Boxes", Kind: KindTensorFloat, Shape: []int64{-1, 4}},
			{Name: "Scores", Kind: KindTensorFloat, Shape: []int64{-1, 8}},
			{Name: "Found", Kind: KindTensorBool, Shape: []int64{1}},
		},
	})
	require.NoError(t, err)
	return d
}

type typedBinding struct{ *Binding }

func (b *typedBinding) Base() *Binding {
	if b == nil {
		return nil
	}
	return b.Binding
}

func TestNewDescriptor(t *testing.T) {
	d := testDescriptor(t)
	assert.Equal(t, "1.0.0", d.Version)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, d.ID, testDescriptor(t).ID, "derived IDs are stable")

	fd, ok := d.Input("InputImage")
	assert.True(t, ok)
	assert.Equal(t, KindImage, fd.Kind)
	_, ok = d.Output("InputImage")
	assert.False(t, ok)

	tests := []struct {
		name string
		d    Descriptor
	}{
		{"empty name", Descriptor{Version: "1.0.0", Inputs: d.Inputs, Outputs: d.Outputs}},
		{"bad version", Descriptor{Name: "x", Version: "one", Inputs: d.Inputs, Outputs: d.Outputs}},
		{"no outputs", Descriptor{Name: "x", Version: "1.0.0", Inputs: d.Inputs}},
		{"duplicate", Descriptor{Name: "x", Version: "1.0.0", Inputs: d.Inputs, Outputs: []FeatureDescriptor{{Name: "InputImage"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDescriptor(tt.d)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestKindParsing(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("painting")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSupportedDevices(t *testing.T) {
	enum := device.EnumeratorFunc(func(context.Context) ([]device.Adapter, error) {
		return []device.Adapter{
			{Name: "old", Kind: device.KindGPU, FeatureLevel: device.Level11_0},
			{Name: "new", Kind: device.KindGPU, FeatureLevel: device.Level12_1},
		}, nil
	})
	d := testDescriptor(t)

	devices, err := d.SupportedDevices(context.Background(), enum, device.Level12_0)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, device.KindCPU, devices[0].Kind)
	assert.Equal(t, "new", devices[1].Name)

	d.DeviceKinds = []device.Kind{device.KindAccelerator}
	_, err = d.SupportedDevices(context.Background(), enum, device.Level12_0)
	assert.ErrorIs(t, err, ErrNoDevices)
	assert.ErrorIs(t, d.CheckDevice(device.CPU()), ErrUnsupportedDevice)
}

func TestShapeCompatible(t *testing.T) {
	assert.True(t, ShapeCompatible([]int64{-1, 4}, []int64{3, 4}))
	assert.True(t, ShapeCompatible([]int64{-1, 4}, []int64{0, 4}))
	assert.False(t, ShapeCompatible([]int64{-1, 4}, []int64{3, 5}))
	assert.False(t, ShapeCompatible([]int64{-1, 4}, []int64{12}))
	assert.True(t, ShapeCompatible(nil, []int64{7}))
}

func TestZeroValueMatchesDeclaredShape(t *testing.T) {
	d := testDescriptor(t)

	boxes, err := ZeroValue(d.Outputs[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, boxes.Shape())
	assert.Equal(t, []float32{0, 0, 0, 0}, boxes.Floats())

	scores, err := ZeroValue(d.Outputs[1])
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), scores.Floats())

	found, err := ZeroValue(d.Outputs[2])
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, found.Bools())

	_, err = ZeroValue(d.Inputs[0])
	assert.ErrorIs(t, err, ErrFeatureKind)
}

func TestFeatureValueConstructors(t *testing.T) {
	v, err := FloatValue([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, KindTensorFloat, v.Kind())
	assert.Equal(t, 6, v.Len())
	tt, err := v.Tensor()
	require.NoError(t, err)
	assert.Equal(t, "float32[2 3]", tt.String())

	back, err := ValueFromTensor(tt)
	require.NoError(t, err)
	assert.Equal(t, v.Shape(), back.Shape())

	_, err = IntValue([]int64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrFeatureShape)

	s, err := StringValue([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, s.Shape())

	_, err = ImageValue(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestBindingSet(t *testing.T) {
	b := NewBinding(testDescriptor(t), "owner")

	require.NoError(t, b.SetImage("InputImage", imaging.NewFrame(4, 4, imaging.BGRA8)))
	assert.NotNil(t, b.Image("InputImage"))

	wrongKind, _ := IntValue([]int64{1})
	assert.ErrorIs(t, b.Set("Threshold", wrongKind), ErrFeatureKind)

	wrongShape, _ := FloatValue([]float32{1, 2})
	assert.ErrorIs(t, b.Set("Threshold", wrongShape), ErrFeatureShape)

	ok, _ := FloatValue([]float32{0.5})
	assert.ErrorIs(t, b.Set("Nope", ok), ErrUnknownFeature)
	assert.ErrorIs(t, b.Set("Found", ok), ErrInvalidArgument)
	require.NoError(t, b.Set("Threshold", ok))

	assert.Equal(t, []string{"InputImage", "Threshold"}, b.Names())
	assert.Equal(t, 2, b.Len())
}

func TestBindingValidateAggregates(t *testing.T) {
	d, err := NewDescriptor(Descriptor{
		Name:    "two inputs",
		Version: "1.0.0",
		Inputs: []FeatureDescriptor{
			{Name: "A", Kind: KindImage, Required: true},
			{Name: "B", Kind: KindTensorFloat, Required: true},
			{Name: "C", Kind: KindTensorFloat},
		},
		Outputs: []FeatureDescriptor{{Name: "Out", Kind: KindTensorBool, Shape: []int64{1}}},
	})
	require.NoError(t, err)
	b := NewBinding(d, nil)

	err = b.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFeature)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
	assert.NotContains(t, err.Error(), ": C")
}

func TestBindingCommitAllOrNothing(t *testing.T) {
	b := NewBinding(testDescriptor(t), "owner")

	boxes, _ := FloatValue([]float32{0.1, 0.1, 0.5, 0.5}, 1, 4)
	badScores, _ := FloatValue([]float32{1, 2, 3}, 1, 3)
	found, _ := BoolValue([]bool{true})

	err := b.Commit(map[string]FeatureValue{"Boxes": boxes, "Scores": badScores, "Found": found})
	assert.ErrorIs(t, err, ErrFeatureShape)
	assert.Equal(t, 0, b.Len(), "nothing is written on failure")

	err = b.Commit(map[string]FeatureValue{"Boxes": boxes, "Found": found})
	assert.ErrorIs(t, err, ErrMissingFeature)
	assert.Equal(t, 0, b.Len())

	require.NoError(t, b.CommitZero(map[string]FeatureValue{"Found": found}))
	assert.Equal(t, make([]float32, 4), b.Floats("Boxes"))
	assert.Equal(t, make([]float32, 8), b.Floats("Scores"))
	assert.Equal(t, []bool{true}, b.Bools("Found"))

	b.ResetOutputs()
	assert.Equal(t, 0, b.Len())
}

func TestCheckBinding(t *testing.T) {
	owner := &struct{ name string }{"a"}
	other := &struct{ name string }{"b"}
	d := testDescriptor(t)

	assert.NoError(t, CheckBinding(owner, &typedBinding{NewBinding(d, owner)}))
	assert.ErrorIs(t, CheckBinding(owner, &typedBinding{NewBinding(d, other)}), ErrInvalidArgument)
	assert.ErrorIs(t, CheckBinding(owner, nil), ErrInvalidArgument)
	var typedNil *typedBinding
	assert.ErrorIs(t, CheckBinding(owner, typedNil), ErrInvalidArgument)
}

type gpuSurface struct{ frame *imaging.Frame }

func (s gpuSurface) Width() int                  { return s.frame.Width }
func (s gpuSurface) Height() int                 { return s.frame.Height }
func (s gpuSurface) Format() imaging.PixelFormat { return s.frame.Format }

func (s gpuSurface) Download(context.Context) (*imaging.Frame, error) {
	return s.frame, nil
}

func TestPrepareImage(t *testing.T) {
	owner := &struct{}{}
	b := &typedBinding{NewBinding(testDescriptor(t), owner)}

	_, err := PrepareImage(context.Background(), owner, b, "InputImage")
	assert.ErrorIs(t, err, ErrMissingFeature)

	cpu := imaging.NewFrame(2, 2, imaging.NV12)
	gpu := &imaging.Frame{Width: 2, Height: 2, Format: imaging.NV12, Surface: gpuSurface{cpu}}
	require.NoError(t, b.SetImage("InputImage", gpu))

	frame, err := PrepareImage(context.Background(), owner, b, "InputImage")
	require.NoError(t, err)
	assert.True(t, frame.IsCPU())
}

func TestManifest(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "emotion")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	id := uuid.New()
	yml := "kind: facesentiment\n" +
		"name: Emotions\n" +
		"id: " + id.String() + "\n" +
		"version: 2.1.0\n" +
		"model: ferplus.onnx\n" +
		"labels: [a, b]\n" +
		"inputs:\n  InputImage: Input3\n" +
		"thresholds:\n  face: 0.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(yml), 0o600))

	found, err := DiscoverManifests(filepath.Join(root, "missing"), root)
	require.NoError(t, err)
	m, ok := found[FaceSentiment]
	require.True(t, ok)

	assert.Equal(t, filepath.Join(dir, "ferplus.onnx"), m.ModelPath())
	assert.Equal(t, "", m.DetectorPath())
	assert.Equal(t, "Input3", m.InputName("InputImage", "data"))
	assert.Equal(t, "out", m.OutputName("Scores", "out"))
	assert.Equal(t, 0.5, m.Threshold("face", 0.7))
	assert.Equal(t, 0.7, m.Threshold("other", 0.7))
	assert.Equal(t, []string{"a", "b"}, m.Labels)

	d := m.Apply(Descriptor{Name: "default", Version: "1.0.0"})
	assert.Equal(t, "Emotions", d.Name)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "2.1.0", d.Version)

	_, err = ParseManifest([]byte("kind: painting\n"))
	assert.Error(t, err)
	_, err = ParseManifest([]byte("id: not-a-uuid\n"))
	assert.Error(t, err)
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{ErrInvalidArgument, ErrInvalidFrame, ErrUnsupportedDevice, ErrNoDevices,
		ErrUnknownFeature, ErrFeatureKind, ErrFeatureShape, ErrMissingFeature, ErrCanceled}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v is %v", a, b)
			}
		}
	}
}
