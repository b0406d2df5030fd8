// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/tensor"
)

func TestConstructors(t *testing.T) {
	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	assert.True(t, x.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Float32, x.DType())

	y, err := x.Reshape(tensor.Shape{3, 2})
	require.NoError(t, err)
	y.Float32()[0] = 9
	assert.Equal(t, float32(9), x.Float32()[0], "reshape shares data")

	_, err = tensor.FromInt64([]int64{1, 2}, tensor.Shape{3})
	assert.Error(t, err)

	b, err := tensor.FromBool([]bool{true}, tensor.Shape{1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, b.DType())

	s, err := tensor.FromString([]string{"a", "b"}, tensor.Shape{2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Strings())

	u, err := tensor.FromUint8(make([]uint8, 12), tensor.Shape{1, 3, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 4, u.Rank())
}

func TestZeros(t *testing.T) {
	z := tensor.Zeros(tensor.Shape{1, 8}, tensor.Float32)
	assert.Equal(t, make([]float32, 8), z.Float32())

	_, err := tensor.New(tensor.Shape{2, -1}, tensor.Int64)
	assert.Error(t, err)
	assert.Panics(t, func() { tensor.Zeros(tensor.Shape{-1}, tensor.Float32) })
}
