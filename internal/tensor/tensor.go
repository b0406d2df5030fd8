package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense, row-major tensor holding exactly one typed backing slice.
// Views returned by Reshape share that slice with the original.
type Tensor struct {
	shape Shape
	dtype DataType

	f32 []float32
	i64 []int64
	b   []bool
	s   []string
	u8  []uint8
}

// New creates a zero-initialized tensor with the given shape and type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	t := &Tensor{shape: shape.Clone(), dtype: dtype}
	n := shape.NumElements()
	switch dtype {
	case Float32:
		t.f32 = make([]float32, n)
	case Int64:
		t.i64 = make([]int64, n)
	case Bool:
		t.b = make([]bool, n)
	case String:
		t.s = make([]string, n)
	case Uint8:
		t.u8 = make([]uint8, n)
	default:
		return nil, fmt.Errorf("unsupported data type: %d", dtype)
	}
	return t, nil
}

// Zeros is New for callers that know the shape is valid.
func Zeros(shape Shape, dtype DataType) *Tensor {
	t, err := New(shape, dtype)
	if err != nil {
		panic(err)
	}
	return t
}

func checkLen(n int, shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	if n != shape.NumElements() {
		return fmt.Errorf("data length %d does not match shape %v (%d elements)", n, shape, shape.NumElements())
	}
	return nil
}

// FromFloat32 wraps data (without copying) as a float32 tensor.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Float32, f32: data}, nil
}

// FromInt64 wraps data (without copying) as an int64 tensor.
func FromInt64(data []int64, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Int64, i64: data}, nil
}

// FromBool wraps data (without copying) as a bool tensor.
func FromBool(data []bool, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Bool, b: data}, nil
}

// FromString wraps data (without copying) as a string tensor.
func FromString(data []string, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: String, s: data}, nil
}

// FromUint8 wraps data (without copying) as a uint8 tensor.
func FromUint8(data []uint8, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Uint8, u8: data}, nil
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the element type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

func (t *Tensor) mustBe(dt DataType) {
	if t.dtype != dt {
		panic(fmt.Sprintf("tensor is %s, not %s", t.dtype, dt))
	}
}

// Float32 returns the backing slice of a float32 tensor.
// Panics if the tensor has a different type.
func (t *Tensor) Float32() []float32 {
	t.mustBe(Float32)
	return t.f32
}

// Int64 returns the backing slice of an int64 tensor.
func (t *Tensor) Int64() []int64 {
	t.mustBe(Int64)
	return t.i64
}

// Bool returns the backing slice of a bool tensor.
func (t *Tensor) Bool() []bool {
	t.mustBe(Bool)
	return t.b
}

// Strings returns the backing slice of a string tensor.
func (t *Tensor) Strings() []string {
	t.mustBe(String)
	return t.s
}

// Uint8 returns the backing slice of a uint8 tensor.
func (t *Tensor) Uint8() []uint8 {
	t.mustBe(Uint8)
	return t.u8
}

// Reshape returns a view with a new shape over the same data.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			t.shape, t.NumElements(), shape, shape.NumElements())
	}
	view := *t
	view.shape = shape.Clone()
	return &view, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{shape: t.shape.Clone(), dtype: t.dtype}
	switch t.dtype {
	case Float32:
		c.f32 = append([]float32(nil), t.f32...)
	case Int64:
		c.i64 = append([]int64(nil), t.i64...)
	case Bool:
		c.b = append([]bool(nil), t.b...)
	case String:
		c.s = append([]string(nil), t.s...)
	case Uint8:
		c.u8 = append([]uint8(nil), t.u8...)
	}
	return c
}

// String renders a short description, e.g. "float32[1 8]".
func (t *Tensor) String() string {
	dims := make([]string, len(t.shape))
	for i, d := range t.shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s[%s]", t.dtype, strings.Join(dims, " "))
}
