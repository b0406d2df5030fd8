package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// registerActivations adds activation operators to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unaryOp("relu", func(x float32) float32 { return max(x, 0) }))
	r.Register("LeakyRelu", handleLeakyRelu)
	r.Register("Sigmoid", unaryOp("sigmoid", sigmoid))
	r.Register("Tanh", unaryOp("tanh", func(x float32) float32 { return float32(math.Tanh(float64(x))) }))
	r.Register("Softmax", handleSoftmax)
	r.Register("Clip", handleClip)
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func handleLeakyRelu(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("leakyRelu", inputs, 1, 1); err != nil {
		return nil, err
	}
	if err := wantFloat("leakyRelu", inputs[0]); err != nil {
		return nil, err
	}
	alpha := GetAttrFloat(node, "alpha", 0.01)
	return one(mapFloat(ctx, inputs[0], func(x float32) float32 {
		if x < 0 {
			return alpha * x
		}
		return x
	})), nil
}

// handleSoftmax normalizes along one axis (opset 13 semantics, default -1).
func handleSoftmax(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("softmax", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if err := wantFloat("softmax", x); err != nil {
		return nil, err
	}
	axis, ok := normAxis(GetAttrInt(node, "axis", -1), x.Rank())
	if !ok {
		return nil, fmt.Errorf("softmax: axis out of range for rank %d", x.Rank())
	}

	shape := x.Shape()
	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	n := shape[axis]

	out := tensor.Zeros(shape, tensor.Float32)
	src, dst := x.Float32(), out.Float32()
	parallel.Rows(outer*inner, ctx.Parallel, func(start, end int) {
		for row := start; row < end; row++ {
			o, in := row/inner, row%inner
			base := o*n*inner + in
			maxV := float32(math.Inf(-1))
			for j := 0; j < n; j++ {
				maxV = max(maxV, src[base+j*inner])
			}
			var sum float64
			for j := 0; j < n; j++ {
				e := math.Exp(float64(src[base+j*inner] - maxV))
				dst[base+j*inner] = float32(e)
				sum += e
			}
			if sum == 0 {
				sum = 1
			}
			for j := 0; j < n; j++ {
				dst[base+j*inner] = float32(float64(dst[base+j*inner]) / sum)
			}
		}
	})
	return one(out), nil
}

// handleClip supports both the attribute form (opset < 11) and the
// optional min/max input form.
func handleClip(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("clip", inputs, 1, 3); err != nil {
		return nil, err
	}
	if err := wantFloat("clip", inputs[0]); err != nil {
		return nil, err
	}
	lo := GetAttrFloat(node, "min", float32(math.Inf(-1)))
	hi := GetAttrFloat(node, "max", float32(math.Inf(1)))
	if t := optional(inputs, 1); t != nil && t.NumElements() > 0 {
		lo = float32(t.Float64At(0))
	}
	if t := optional(inputs, 2); t != nil && t.NumElements() > 0 {
		hi = float32(t.Float64At(0))
	}
	return one(mapFloat(ctx, inputs[0], func(x float32) float32 {
		return min(max(x, lo), hi)
	})), nil
}
