package operators

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", handleReshape)
	r.Register("Transpose", handleTranspose)
	r.Register("Squeeze", handleSqueeze)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Concat", handleConcat)
	r.Register("Flatten", handleFlatten)
	r.Register("Shape", handleShape)
}

// handleReshape supports 0 (copy input dim) and a single -1 (infer).
func handleReshape(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("reshape", inputs, 2, 2); err != nil {
		return nil, err
	}
	data := inputs[0]
	target := inputs[1].AsInt64s()
	allowZero := GetAttrInt(node, "allowzero", 0) != 0

	newShape := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, v := range target {
		switch {
		case v == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("reshape: more than one -1 in target %v", target)
			}
			infer = i
			continue
		case v == 0 && !allowZero:
			if i >= data.Rank() {
				return nil, fmt.Errorf("reshape: 0 at index %d exceeds input rank %d", i, data.Rank())
			}
			newShape[i] = data.Shape()[i]
		case v < 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d", v)
		default:
			newShape[i] = int(v)
		}
		known *= newShape[i]
	}
	if infer >= 0 {
		if known == 0 || data.NumElements()%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for %v from %v", target, data.Shape())
		}
		newShape[infer] = data.NumElements() / known
	}

	result, err := data.Reshape(newShape)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return one(result), nil
}

func handleTranspose(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("transpose", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := x.Rank()

	perm := make([]int, rank)
	if p := GetAttrInts(node, "perm"); len(p) > 0 {
		if len(p) != rank {
			return nil, fmt.Errorf("transpose: perm %v does not match rank %d", p, rank)
		}
		seen := make([]bool, rank)
		for i, v := range p {
			a, ok := normAxis(v, rank)
			if !ok || seen[a] {
				return nil, fmt.Errorf("transpose: invalid perm %v", p)
			}
			seen[a] = true
			perm[i] = a
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	inShape := x.Shape()
	outShape := make(tensor.Shape, rank)
	for i, p := range perm {
		outShape[i] = inShape[p]
	}
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()

	src := func(flat int) int {
		idx := 0
		for i := 0; i < rank; i++ {
			coord := flat / outStrides[i]
			flat %= outStrides[i]
			idx += coord * inStrides[perm[i]]
		}
		return idx
	}
	return one(gather(x, outShape, src)), nil
}

// gather builds a tensor of shape where element i is x[src(i)].
func gather(x *tensor.Tensor, shape tensor.Shape, src func(int) int) *tensor.Tensor {
	out := tensor.Zeros(shape, x.DType())
	n := out.NumElements()
	switch x.DType() {
	case tensor.Float32:
		s, d := x.Float32(), out.Float32()
		for i := 0; i < n; i++ {
			d[i] = s[src(i)]
		}
	case tensor.Int64:
		s, d := x.Int64(), out.Int64()
		for i := 0; i < n; i++ {
			d[i] = s[src(i)]
		}
	case tensor.Bool:
		s, d := x.Bool(), out.Bool()
		for i := 0; i < n; i++ {
			d[i] = s[src(i)]
		}
	case tensor.String:
		s, d := x.Strings(), out.Strings()
		for i := 0; i < n; i++ {
			d[i] = s[src(i)]
		}
	case tensor.Uint8:
		s, d := x.Uint8(), out.Uint8()
		for i := 0; i < n; i++ {
			d[i] = s[src(i)]
		}
	}
	return out
}

// axesArg reads axes from the attribute (older opsets) or the second input.
func axesArg(node *Node, inputs []*tensor.Tensor) []int64 {
	if t := optional(inputs, 1); t != nil {
		return t.AsInt64s()
	}
	return GetAttrInts(node, "axes")
}

func handleSqueeze(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("squeeze", inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	drop := make([]bool, len(shape))

	axes := axesArg(node, inputs)
	if len(axes) == 0 {
		for i, d := range shape {
			drop[i] = d == 1
		}
	}
	for _, v := range axes {
		a, ok := normAxis(v, len(shape))
		if !ok || shape[a] != 1 {
			return nil, fmt.Errorf("squeeze: cannot squeeze axis %d of %v", v, shape)
		}
		drop[a] = true
	}

	newShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		if !drop[i] {
			newShape = append(newShape, d)
		}
	}
	return one(mustReshape(x, newShape)), nil
}

func handleUnsqueeze(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("unsqueeze", inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	axes := axesArg(node, inputs)
	rank := x.Rank() + len(axes)

	insert := make([]bool, rank)
	for _, v := range axes {
		a, ok := normAxis(v, rank)
		if !ok || insert[a] {
			return nil, fmt.Errorf("unsqueeze: invalid axes %v for rank %d", axes, x.Rank())
		}
		insert[a] = true
	}

	newShape := make(tensor.Shape, rank)
	j := 0
	for i := range newShape {
		if insert[i] {
			newShape[i] = 1
			continue
		}
		newShape[i] = x.Shape()[j]
		j++
	}
	return one(mustReshape(x, newShape)), nil
}

func handleConcat(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("concat", inputs, 1, -1); err != nil {
		return nil, err
	}
	first := inputs[0]
	axis, ok := normAxis(GetAttrInt(node, "axis", 0), first.Rank())
	if !ok {
		return nil, fmt.Errorf("concat: axis out of range for rank %d", first.Rank())
	}

	outShape := first.Shape().Clone()
	outShape[axis] = 0
	for i, t := range inputs {
		if t == nil || t.DType() != first.DType() || t.Rank() != first.Rank() {
			return nil, fmt.Errorf("concat: input %d is incompatible with input 0", i)
		}
		for d := range outShape {
			if d != axis && t.Shape()[d] != first.Shape()[d] {
				return nil, fmt.Errorf("concat: shape %v does not match %v off axis %d", t.Shape(), first.Shape(), axis)
			}
		}
		outShape[axis] += t.Shape()[axis]
	}

	// Each input contributes contiguous blocks of shape[axis:] per outer index.
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= outShape[d]
	}
	inner := 1
	for d := axis + 1; d < len(outShape); d++ {
		inner *= outShape[d]
	}

	out := tensor.Zeros(outShape, first.DType())
	rowLen := outShape[axis] * inner
	offset := 0
	for _, t := range inputs {
		block := t.Shape()[axis] * inner
		for o := 0; o < outer; o++ {
			copyRange(out, o*rowLen+offset, t, o*block, block)
		}
		offset += block
	}
	return one(out), nil
}

// copyRange copies n elements from src[srcOff:] to dst[dstOff:]; dtypes must match.
func copyRange(dst *tensor.Tensor, dstOff int, src *tensor.Tensor, srcOff, n int) {
	switch src.DType() {
	case tensor.Float32:
		copy(dst.Float32()[dstOff:dstOff+n], src.Float32()[srcOff:srcOff+n])
	case tensor.Int64:
		copy(dst.Int64()[dstOff:dstOff+n], src.Int64()[srcOff:srcOff+n])
	case tensor.Bool:
		copy(dst.Bool()[dstOff:dstOff+n], src.Bool()[srcOff:srcOff+n])
	case tensor.String:
		copy(dst.Strings()[dstOff:dstOff+n], src.Strings()[srcOff:srcOff+n])
	case tensor.Uint8:
		copy(dst.Uint8()[dstOff:dstOff+n], src.Uint8()[srcOff:srcOff+n])
	}
}

func handleFlatten(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("flatten", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += x.Rank()
	}
	if axis < 0 || axis > x.Rank() {
		return nil, fmt.Errorf("flatten: axis out of range for rank %d", x.Rank())
	}
	outer := x.Shape()[:axis].NumElements()
	return one(mustReshape(x, tensor.Shape{outer, x.NumElements() / max(outer, 1)})), nil
}

func handleShape(_ *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("shape", inputs, 1, 1); err != nil {
		return nil, err
	}
	dims := inputs[0].Shape().Int64s()
	out, err := tensor.FromInt64(dims, tensor.Shape{len(dims)})
	if err != nil {
		return nil, err
	}
	return one(out), nil
}
