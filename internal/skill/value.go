package skill

import (
	"fmt"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/tensor"
)

// FeatureValue is a tagged union over an image frame and flat float, int,
// bool or string tensors. Exactly one payload matches Kind.
type FeatureValue struct {
	kind   FeatureKind
	shape  []int64
	frame  *imaging.Frame
	floats []float32
	ints   []int64
	bools  []bool
	strs   []string
}

// ImageValue wraps a frame. The frame is validated but not copied.
func ImageValue(f *imaging.Frame) (FeatureValue, error) {
	if err := f.Validate(); err != nil {
		return FeatureValue{}, err
	}
	return FeatureValue{kind: KindImage, frame: f}, nil
}

func shapeFor(n int, shape []int64) ([]int64, error) {
	if len(shape) == 0 {
		return []int64{int64(n)}, nil
	}
	want := int64(1)
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrFeatureShape, shape)
		}
		want *= d
	}
	if want != int64(n) {
		return nil, fmt.Errorf("%w: %d elements do not fill shape %v", ErrFeatureShape, n, shape)
	}
	return append([]int64(nil), shape...), nil
}

// FloatValue wraps data as a float tensor. An omitted shape means [len(data)].
func FloatValue(data []float32, shape ...int64) (FeatureValue, error) {
	s, err := shapeFor(len(data), shape)
	if err != nil {
		return FeatureValue{}, err
	}
	return FeatureValue{kind: KindTensorFloat, shape: s, floats: data}, nil
}

// IntValue wraps data as an int tensor. An omitted shape means [len(data)].
func IntValue(data []int64, shape ...int64) (FeatureValue, error) {
	s, err := shapeFor(len(data), shape)
	if err != nil {
		return FeatureValue{}, err
	}
	return FeatureValue{kind: KindTensorInt, shape: s, ints: data}, nil
}

// BoolValue wraps data as a bool tensor. An omitted shape means [len(data)].
func BoolValue(data []bool, shape ...int64) (FeatureValue, error) {
	s, err := shapeFor(len(data), shape)
	if err != nil {
		return FeatureValue{}, err
	}
	return FeatureValue{kind: KindTensorBool, shape: s, bools: data}, nil
}

// StringValue wraps data as a string tensor. An omitted shape means [len(data)].
func StringValue(data []string, shape ...int64) (FeatureValue, error) {
	s, err := shapeFor(len(data), shape)
	if err != nil {
		return FeatureValue{}, err
	}
	return FeatureValue{kind: KindTensorString, shape: s, strs: data}, nil
}

// ValueFromTensor wraps a tensor's backing data without copying.
func ValueFromTensor(t *tensor.Tensor) (FeatureValue, error) {
	shape := t.Shape().Int64s()
	switch t.DType() {
	case tensor.Float32:
		return FloatValue(t.Float32(), shape...)
	case tensor.Int64:
		return IntValue(t.Int64(), shape...)
	case tensor.Bool:
		return BoolValue(t.Bool(), shape...)
	case tensor.String:
		return StringValue(t.Strings(), shape...)
	default:
		return FeatureValue{}, fmt.Errorf("%w: no feature kind for %s tensors", ErrFeatureKind, t.DType())
	}
}

// Kind returns the value kind.
func (v FeatureValue) Kind() FeatureKind { return v.kind }

// Shape returns the tensor shape; nil for images.
func (v FeatureValue) Shape() []int64 { return v.shape }

// IsSet reports whether v holds a value.
func (v FeatureValue) IsSet() bool {
	return v.frame != nil || v.shape != nil
}

// Frame returns the image payload, or nil.
func (v FeatureValue) Frame() *imaging.Frame { return v.frame }

// Floats returns the float payload, or nil.
func (v FeatureValue) Floats() []float32 { return v.floats }

// Ints returns the int payload, or nil.
func (v FeatureValue) Ints() []int64 { return v.ints }

// Bools returns the bool payload, or nil.
func (v FeatureValue) Bools() []bool { return v.bools }

// Strings returns the string payload, or nil.
func (v FeatureValue) Strings() []string { return v.strs }

// Len returns the number of tensor elements; 1 for an image.
func (v FeatureValue) Len() int {
	switch v.kind {
	case KindImage:
		if v.frame == nil {
			return 0
		}
		return 1
	case KindTensorFloat:
		return len(v.floats)
	case KindTensorInt:
		return len(v.ints)
	case KindTensorBool:
		return len(v.bools)
	default:
		return len(v.strs)
	}
}

// Tensor converts a tensor value into a tensor sharing its data.
func (v FeatureValue) Tensor() (*tensor.Tensor, error) {
	shape := make(tensor.Shape, len(v.shape))
	for i, d := range v.shape {
		shape[i] = int(d)
	}
	switch v.kind {
	case KindTensorFloat:
		return tensor.FromFloat32(v.floats, shape)
	case KindTensorInt:
		return tensor.FromInt64(v.ints, shape)
	case KindTensorBool:
		return tensor.FromBool(v.bools, shape)
	case KindTensorString:
		return tensor.FromString(v.strs, shape)
	default:
		return nil, fmt.Errorf("%w: %s value is not a tensor", ErrFeatureKind, v.kind)
	}
}

// String renders a short description such as "tensor<float>[1 8]".
func (v FeatureValue) String() string {
	if v.kind == KindImage && v.frame != nil {
		return fmt.Sprintf("image[%dx%d %s]", v.frame.Width, v.frame.Height, v.frame.Format)
	}
	return fmt.Sprintf("%s%v", v.kind, v.shape)
}
