package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZeroInitialized(t *testing.T) {
	for _, dt := range []DataType{Float32, Int64, Bool, String, Uint8} {
		x, err := New(Shape{2, 3}, dt)
		require.NoError(t, err, dt.String())
		assert.Equal(t, 6, x.NumElements())
		assert.Equal(t, dt, x.DType())
	}
	assert.Equal(t, make([]float32, 6), Zeros(Shape{2, 3}, Float32).Float32())
}

func TestNewRejectsNegativeDims(t *testing.T) {
	_, err := New(Shape{2, -1}, Float32)
	assert.Error(t, err)
}

func TestFromSliceLengthMismatch(t *testing.T) {
	_, err := FromFloat32([]float32{1, 2, 3}, Shape{2, 2})
	assert.Error(t, err)

	x, err := FromFloat32([]float32{1, 2, 3, 4}, Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, "float32[2 2]", x.String())
}

func TestEmptyTensor(t *testing.T) {
	x, err := FromFloat32(nil, Shape{0, 4})
	require.NoError(t, err)
	assert.Equal(t, 0, x.NumElements())
}

func TestAccessorPanicsOnWrongType(t *testing.T) {
	x := Zeros(Shape{1}, Int64)
	assert.Panics(t, func() { x.Float32() })
}

func TestReshapeSharesData(t *testing.T) {
	x, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)

	y, err := x.Reshape(Shape{3, 2})
	require.NoError(t, err)
	y.Float32()[0] = 42
	assert.Equal(t, float32(42), x.Float32()[0])

	_, err = x.Reshape(Shape{4})
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	x, err := FromString([]string{"a", "b"}, Shape{2})
	require.NoError(t, err)
	c := x.Clone()
	c.Strings()[0] = "z"
	assert.Equal(t, "a", x.Strings()[0])
}

func TestCast(t *testing.T) {
	x, err := FromFloat32([]float32{0, 1.7, -2.2}, Shape{3})
	require.NoError(t, err)

	i, err := x.Cast(Int64)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, -2}, i.Int64())

	b, err := x.Cast(Bool)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, b.Bool())

	s := Zeros(Shape{1}, String)
	_, err = s.Cast(Float32)
	assert.Error(t, err)
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b    Shape
		want    Shape
		wantErr bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, false},
		{Shape{5}, Shape{2, 5}, Shape{2, 5}, false},
		{Shape{1, 3, 1, 1}, Shape{1, 3, 4, 4}, Shape{1, 3, 4, 4}, false},
		{Shape{3, 4}, Shape{3, 5}, nil, true},
	}
	for _, tt := range tests {
		got, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBroadcastIndex(t *testing.T) {
	out := Shape{2, 3}
	// Row vector broadcast over rows.
	assert.Equal(t, 2, BroadcastIndex(5, out, Shape{3}))
	// Column vector broadcast over columns.
	assert.Equal(t, 1, BroadcastIndex(4, out, Shape{2, 1}))
	// Scalar.
	assert.Equal(t, 0, BroadcastIndex(4, out, Shape{}))
}

func TestComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int64{2, 3, 4}, Shape{2, 3, 4}.Int64s())
}

func TestAt(t *testing.T) {
	x, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)

	assert.Equal(t, 1.0, x.At(0, 0))
	assert.Equal(t, 6.0, x.At(1, 2))
	assert.Equal(t, 4, x.Offset(1, 1))
	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}
