// Package onnx loads ONNX (Open Neural Network Exchange) models and runs
// them on the CPU.
//
// The loader parses the protobuf format directly, so no cgo runtime is
// needed. It covers the operators used by common vision models: face
// detectors, emotion classifiers, YOLO-style object detectors and
// heatmap pose estimators.
//
// # Supported Features
//
//   - ONNX format parsing (protobuf-based)
//   - Float32, int64, bool, string and uint8 tensors
//   - Named inputs and outputs with dynamic dimensions
//   - Parallel convolution and pooling kernels
//
// # Example Usage
//
//	model, err := onnx.Load("emotion-ferplus-8.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	input := tensor.Zeros(tensor.Shape{1, 1, 64, 64}, tensor.Float32)
//	outputs, err := model.Run(ctx, map[string]*tensor.Tensor{"Input3": input})
//
// # Supported Operators
//
//   - Arithmetic: Add, Sub, Mul, Div, Neg, Abs, Sqrt, Exp
//   - Activation: Relu, LeakyRelu, Sigmoid, Tanh, Softmax, Clip
//   - Matrix: MatMul, Gemm
//   - Shape: Reshape, Transpose, Squeeze, Unsqueeze, Concat, Flatten, Shape
//   - Pooling: MaxPool, AveragePool, GlobalAveragePool
//   - Convolution: Conv (2D), BatchNormalization
//   - Other: Constant, Identity, Dropout, Cast
//
// Use [ListSupportedOps] to get the complete list of supported operators.
package onnx

import (
	internalonnx "github.com/born-ml/vision/internal/onnx"
)

// LoadOptions configures ONNX model loading behavior.
type LoadOptions = internalonnx.LoadOptions

// DefaultLoadOptions returns the default options for loading ONNX models.
//
// Default configuration:
//   - Device: the CPU
//   - Strict mode: enabled (fails on unsupported operators at load time)
//   - Parallel kernels: one worker per logical CPU
func DefaultLoadOptions() LoadOptions {
	return internalonnx.DefaultLoadOptions()
}

// Load loads an ONNX model from a file path.
//
// For custom loading options, pass LoadOptions:
//
//	opts := onnx.DefaultLoadOptions()
//	opts.StrictMode = false // fail at Run instead of at load
//	model, err := onnx.Load("model.onnx", opts)
func Load(path string, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFromBytes loads an ONNX model from raw bytes, e.g. one embedded in
// the binary.
func LoadFromBytes(data []byte, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.LoadFromBytes(data, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ModelInfo contains metadata about an ONNX model without loading weights.
type ModelInfo = internalonnx.ModelInfo

// GetModelInfo extracts metadata from an ONNX file without compiling it.
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Inputs: %v\n", info.InputNames)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// ListSupportedOps returns the sorted names of all supported operators.
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
