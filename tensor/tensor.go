// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/vision/internal/tensor"
)

// Tensor is a dense, row-major tensor with exactly one typed backing slice.
type Tensor = tensor.Tensor

// Shape is a tensor shape; a dimension of -1 is never valid in a Tensor.
type Shape = tensor.Shape

// DataType identifies the element type of a Tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Int64   = tensor.Int64
	Bool    = tensor.Bool
	String  = tensor.String
	Uint8   = tensor.Uint8
)

// New allocates a zero-filled tensor, validating the shape.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.New(shape, dtype)
}

// Zeros allocates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape, dtype DataType) *Tensor {
	return tensor.Zeros(shape, dtype)
}

// FromFloat32 wraps data without copying.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromInt64 wraps data without copying.
func FromInt64(data []int64, shape Shape) (*Tensor, error) {
	return tensor.FromInt64(data, shape)
}

// FromBool wraps data without copying.
func FromBool(data []bool, shape Shape) (*Tensor, error) {
	return tensor.FromBool(data, shape)
}

// FromString wraps data without copying.
func FromString(data []string, shape Shape) (*Tensor, error) {
	return tensor.FromString(data, shape)
}

// FromUint8 wraps data without copying.
func FromUint8(data []uint8, shape Shape) (*Tensor, error) {
	return tensor.FromUint8(data, shape)
}
