package operators

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// ONNX element types accepted by Cast's "to" attribute.
const (
	onnxFloat  = 1
	onnxUint8  = 2
	onnxInt32  = 6
	onnxInt64  = 7
	onnxString = 8
	onnxBool   = 9
	onnxDouble = 11
)

// registerUtilityOps adds pass-through and constant operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleDropout)
	r.Register("Constant", handleConstant)
	r.Register("Cast", handleCast)
}

func handleIdentity(_ *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("identity", inputs, 1, 1); err != nil {
		return nil, err
	}
	return one(inputs[0]), nil
}

// handleDropout is inference-mode dropout: output = input, mask = all true.
func handleDropout(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("dropout", inputs, 1, 3); err != nil {
		return nil, err
	}
	outs := []*tensor.Tensor{inputs[0]}
	if len(node.Outputs) > 1 {
		mask := tensor.Zeros(inputs[0].Shape(), tensor.Bool)
		for i := range mask.Bool() {
			mask.Bool()[i] = true
		}
		outs = append(outs, mask)
	}
	return outs, nil
}

func handleConstant(_ *Context, node *Node, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if t := GetAttrTensor(node, "value"); t != nil {
		return one(t), nil
	}
	switch {
	case HasAttr(node, "value_float"):
		t, err := tensor.FromFloat32([]float32{GetAttrFloat(node, "value_float", 0)}, tensor.Shape{})
		return one(t), err
	case HasAttr(node, "value_floats"):
		fs := append([]float32(nil), node.attr("value_floats").Floats...)
		t, err := tensor.FromFloat32(fs, tensor.Shape{len(fs)})
		return one(t), err
	case HasAttr(node, "value_int"):
		t, err := tensor.FromInt64([]int64{GetAttrInt(node, "value_int", 0)}, tensor.Shape{})
		return one(t), err
	case HasAttr(node, "value_ints"):
		is := append([]int64(nil), GetAttrInts(node, "value_ints")...)
		t, err := tensor.FromInt64(is, tensor.Shape{len(is)})
		return one(t), err
	}
	return nil, fmt.Errorf("constant %s: no supported value attribute", node.Name)
}

func handleCast(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("cast", inputs, 1, 1); err != nil {
		return nil, err
	}
	to := GetAttrInt(node, "to", onnxFloat)
	var dt tensor.DataType
	switch to {
	case onnxFloat, onnxDouble:
		dt = tensor.Float32
	case onnxInt32, onnxInt64:
		dt = tensor.Int64
	case onnxUint8:
		dt = tensor.Uint8
	case onnxBool:
		dt = tensor.Bool
	case onnxString:
		dt = tensor.String
	default:
		return nil, fmt.Errorf("cast: unsupported target type %d", to)
	}
	out, err := inputs[0].Cast(dt)
	if err != nil {
		return nil, fmt.Errorf("cast: %w", err)
	}
	return one(out), nil
}
