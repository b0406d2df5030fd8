package onnx

import (
	"context"

	internalonnx "github.com/born-ml/vision/internal/onnx"
	"github.com/born-ml/vision/tensor"
)

// Model represents a loaded ONNX model ready for inference.
//
// The interface hides the internal graph executor so that callers can
// substitute fakes in tests. A Model is safe for concurrent Run calls.
type Model interface {
	// Run executes the graph with named inputs and returns every declared
	// output by name. Inputs are checked against the declared element
	// type and shape; dynamic dimensions accept any size.
	//
	// Example:
	//
	//	outputs, err := model.Run(ctx, map[string]*tensor.Tensor{"Input3": face})
	//	if err != nil {
	//	    return err
	//	}
	//	logits := outputs["Plus692_Output_0"]
	Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

	// Inputs describes the feed inputs (graph inputs minus initializers).
	Inputs() []ValueInfo

	// Outputs describes the graph outputs.
	Outputs() []ValueInfo

	// InputNames returns the names of model inputs.
	InputNames() []string

	// OutputNames returns the names of model outputs.
	OutputNames() []string

	// OpsetVersion returns the ONNX opset version used by the model.
	OpsetVersion() int64

	// Metadata returns the model's metadata_props.
	Metadata() map[string]string

	// Close releases the model's weights. Run fails afterwards.
	Close() error
}

// ValueInfo describes a model input or output. Dynamic dimensions are -1.
type ValueInfo = internalonnx.ValueInfo

var _ Model = (*internalonnx.Model)(nil)
