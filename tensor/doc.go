// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensors exchanged with ONNX models and stored
// in skill bindings.
//
// Tensors are dense and row-major, with one typed backing slice selected by
// the DataType:
//   - Float32: model inputs, scores and boxes
//   - Int64: class indices and counts
//   - Bool: detection flags
//   - String: labels and enum-valued features
//   - Uint8: raw pixel planes
//
// # Basic Usage
//
//	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(x.Shape(), x.DType()) // [2 3] float32
//
//	y, _ := x.Reshape(tensor.Shape{3, 2}) // shares x's data
//	z := tensor.Zeros(tensor.Shape{1, 8}, tensor.Float32)
//
// Reshape returns a view; use Clone for an independent copy.
package tensor
