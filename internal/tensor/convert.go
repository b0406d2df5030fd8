package tensor

import "fmt"

// Float64At reads element i of a numeric or bool tensor as float64.
func (t *Tensor) Float64At(i int) float64 {
	switch t.dtype {
	case Float32:
		return float64(t.f32[i])
	case Int64:
		return float64(t.i64[i])
	case Uint8:
		return float64(t.u8[i])
	case Bool:
		if t.b[i] {
			return 1
		}
		return 0
	default:
		panic(fmt.Sprintf("Float64At: unsupported type %s", t.dtype))
	}
}

// Cast converts a tensor to another element type. Strings cannot be cast.
func (t *Tensor) Cast(dtype DataType) (*Tensor, error) {
	if t.dtype == dtype {
		return t.Clone(), nil
	}
	if t.dtype == String || dtype == String {
		return nil, fmt.Errorf("cannot cast %s to %s", t.dtype, dtype)
	}

	out, err := New(t.shape, dtype)
	if err != nil {
		return nil, err
	}
	n := t.NumElements()
	for i := 0; i < n; i++ {
		v := t.Float64At(i)
		switch dtype {
		case Float32:
			out.f32[i] = float32(v)
		case Int64:
			out.i64[i] = int64(v)
		case Uint8:
			out.u8[i] = uint8(v)
		case Bool:
			out.b[i] = v != 0
		}
	}
	return out, nil
}

// AsInt64s returns the elements of an integer or float tensor as int64.
// Used for shape-carrying inputs such as Reshape's target shape.
func (t *Tensor) AsInt64s() []int64 {
	if t.dtype == Int64 {
		return t.i64
	}
	out := make([]int64, t.NumElements())
	for i := range out {
		out[i] = int64(t.Float64At(i))
	}
	return out
}

// Offset returns the flat row-major index of the given coordinates.
// Panics when the coordinate count does not match the rank or a coordinate is out of range.
func (t *Tensor) Offset(idx ...int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor has rank %d, got %d indices", len(t.shape), len(idx)))
	}
	off, stride := 0, 1
	for i := len(idx) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of range for dimension %d (size %d)", idx[i], i, t.shape[i]))
		}
		off += idx[i] * stride
		stride *= t.shape[i]
	}
	return off
}

// At reads the element at the given coordinates as float64.
func (t *Tensor) At(idx ...int) float64 {
	return t.Float64At(t.Offset(idx...))
}
