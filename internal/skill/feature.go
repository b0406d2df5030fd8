package skill

import (
	"fmt"

	"github.com/born-ml/vision/internal/imaging"
)

// FeatureKind is the value kind of a feature slot.
type FeatureKind int

// Feature kinds.
const (
	KindImage FeatureKind = iota
	KindTensorFloat
	KindTensorInt
	KindTensorBool
	KindTensorString
)

// String returns the kind name.
func (k FeatureKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindTensorFloat:
		return "tensor<float>"
	case KindTensorInt:
		return "tensor<int>"
	case KindTensorBool:
		return "tensor<bool>"
	case KindTensorString:
		return "tensor<string>"
	default:
		return fmt.Sprintf("FeatureKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FeatureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// FeatureDescriptor describes one named input or output slot.
// A -1 dimension in Shape is variable.
type FeatureDescriptor struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        FeatureKind         `json:"kind" yaml:"kind"`
	Shape       []int64             `json:"shape,omitempty" yaml:"shape,omitempty"`
	Required    bool                `json:"required" yaml:"required"`
	PixelFormat imaging.PixelFormat `json:"-" yaml:"-"`
	Width       int                 `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int                 `json:"height,omitempty" yaml:"height,omitempty"`
}

// ShapeCompatible reports whether actual satisfies declared: same rank and
// every fixed dimension equal. An empty declared shape accepts anything.
func ShapeCompatible(declared, actual []int64) bool {
	if len(declared) == 0 {
		return true
	}
	if len(declared) != len(actual) {
		return false
	}
	for i, d := range declared {
		if d >= 0 && d != actual[i] {
			return false
		}
	}
	return true
}

// ZeroShape is the declared shape with every variable dimension set to 1.
func ZeroShape(declared []int64) []int64 {
	out := make([]int64, len(declared))
	for i, d := range declared {
		if d < 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// ZeroValue returns the all-zero value of a tensor feature: its declared
// shape with variable dimensions set to 1. Image features have no zero value.
func ZeroValue(fd FeatureDescriptor) (FeatureValue, error) {
	shape := ZeroShape(fd.Shape)
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	switch fd.Kind {
	case KindTensorFloat:
		return FloatValue(make([]float32, n), shape...)
	case KindTensorInt:
		return IntValue(make([]int64, n), shape...)
	case KindTensorBool:
		return BoolValue(make([]bool, n), shape...)
	case KindTensorString:
		return StringValue(make([]string, n), shape...)
	default:
		return FeatureValue{}, fmt.Errorf("%w: %s has no zero value", ErrFeatureKind, fd.Kind)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FeatureKind) UnmarshalText(text []byte) error {
	for _, c := range []FeatureKind{KindImage, KindTensorFloat, KindTensorInt, KindTensorBool, KindTensorString} {
		if string(text) == c.String() {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown feature kind %q", text)
}
