package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// registerMathOps adds arithmetic operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", binaryOp("add",
		func(a, b float32) float32 { return a + b },
		func(a, b int64) int64 { return a + b }))
	r.Register("Sub", binaryOp("sub",
		func(a, b float32) float32 { return a - b },
		func(a, b int64) int64 { return a - b }))
	r.Register("Mul", binaryOp("mul",
		func(a, b float32) float32 { return a * b },
		func(a, b int64) int64 { return a * b }))
	r.Register("Div", binaryOp("div",
		func(a, b float32) float32 { return a / b },
		func(a, b int64) int64 {
			if b == 0 {
				return 0
			}
			return a / b
		}))
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
	r.Register("Exp", unaryOp("exp", func(x float32) float32 { return float32(math.Exp(float64(x))) }))
	r.Register("Sqrt", unaryOp("sqrt", func(x float32) float32 { return float32(math.Sqrt(float64(x))) }))
	r.Register("Neg", unaryOp("neg", func(x float32) float32 { return -x }))
	r.Register("Abs", unaryOp("abs", func(x float32) float32 { return float32(math.Abs(float64(x))) }))
}

// binaryOp builds a broadcasting elementwise handler for float32 and int64.
func binaryOp(name string, ff func(a, b float32) float32, fi func(a, b int64) int64) OpHandler {
	return func(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := wantInputs(name, inputs, 2, 2); err != nil {
			return nil, err
		}
		a, b := inputs[0], inputs[1]
		if a.DType() != b.DType() {
			return nil, fmt.Errorf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType())
		}
		outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out, err := tensor.New(outShape, a.DType())
		if err != nil {
			return nil, err
		}
		same := a.Shape().Equal(outShape) && b.Shape().Equal(outShape)

		switch a.DType() {
		case tensor.Float32:
			ad, bd, od := a.Float32(), b.Float32(), out.Float32()
			parallel.Rows(len(od), ctx.Parallel, func(start, end int) {
				for i := start; i < end; i++ {
					if same {
						od[i] = ff(ad[i], bd[i])
						continue
					}
					od[i] = ff(ad[tensor.BroadcastIndex(i, outShape, a.Shape())],
						bd[tensor.BroadcastIndex(i, outShape, b.Shape())])
				}
			})
		case tensor.Int64:
			ad, bd, od := a.Int64(), b.Int64(), out.Int64()
			for i := range od {
				if same {
					od[i] = fi(ad[i], bd[i])
					continue
				}
				od[i] = fi(ad[tensor.BroadcastIndex(i, outShape, a.Shape())],
					bd[tensor.BroadcastIndex(i, outShape, b.Shape())])
			}
		default:
			return nil, fmt.Errorf("%s: unsupported dtype %s", name, a.DType())
		}
		return one(out), nil
	}
}

// unaryOp builds an elementwise float32 handler.
func unaryOp(name string, f func(float32) float32) OpHandler {
	return func(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := wantInputs(name, inputs, 1, 1); err != nil {
			return nil, err
		}
		if err := wantFloat(name, inputs[0]); err != nil {
			return nil, err
		}
		return one(mapFloat(ctx, inputs[0], f)), nil
	}
}

func mapFloat(ctx *Context, in *tensor.Tensor, f func(float32) float32) *tensor.Tensor {
	out := tensor.Zeros(in.Shape(), tensor.Float32)
	src, dst := in.Float32(), out.Float32()
	parallel.Rows(len(src), ctx.Parallel, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = f(src[i])
		}
	})
	return out
}

// handleMatMul implements numpy-style matmul: 1-D operands are promoted and
// leading batch dimensions broadcast.
func handleMatMul(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("matMul", inputs, 2, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]
	if err := wantFloat("matMul", a, b); err != nil {
		return nil, err
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return nil, fmt.Errorf("matMul: scalar operands are not supported")
	}

	aShape, bShape := a.Shape().Clone(), b.Shape().Clone()
	squeezeA, squeezeB := false, false
	if len(aShape) == 1 {
		aShape = tensor.Shape{1, aShape[0]}
		squeezeA = true
	}
	if len(bShape) == 1 {
		bShape = tensor.Shape{bShape[0], 1}
		squeezeB = true
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	k2, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != k2 {
		return nil, fmt.Errorf("matMul: inner dimensions differ: %v x %v", a.Shape(), b.Shape())
	}

	aBatch, bBatch := aShape[:len(aShape)-2], bShape[:len(bShape)-2]
	batch, err := tensor.BroadcastShapes(aBatch, bBatch)
	if err != nil {
		return nil, fmt.Errorf("matMul: %w", err)
	}

	outShape := append(batch.Clone(), m, n)
	out := tensor.Zeros(outShape, tensor.Float32)
	ad, bd, od := a.Float32(), b.Float32(), out.Float32()
	nb := batch.NumElements()

	parallel.Rows(nb*m, ctx.Parallel, func(start, end int) {
		for row := start; row < end; row++ {
			bi, i := row/m, row%m
			aOff := tensor.BroadcastIndex(bi, batch, aBatch) * m * k
			bOff := tensor.BroadcastIndex(bi, batch, bBatch) * k * n
			dst := od[bi*m*n+i*n : bi*m*n+(i+1)*n]
			for p := 0; p < k; p++ {
				av := ad[aOff+i*k+p]
				if av == 0 {
					continue
				}
				brow := bd[bOff+p*n : bOff+(p+1)*n]
				for j := range dst {
					dst[j] += av * brow[j]
				}
			}
		}
	})

	final := outShape
	switch {
	case squeezeA && squeezeB:
		final = batch.Clone()
	case squeezeA:
		final = append(batch.Clone(), n)
	case squeezeB:
		final = append(batch.Clone(), m)
	}
	if !final.Equal(outShape) {
		return one(mustReshape(out, final)), nil
	}
	return one(out), nil
}

// handleGemm computes alpha*A'*B' + beta*C for 2-D A and B.
func handleGemm(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := wantInputs("gemm", inputs, 2, 3); err != nil {
		return nil, err
	}
	a, b, c := inputs[0], inputs[1], optional(inputs, 2)
	if err := wantFloat("gemm", a, b, c); err != nil {
		return nil, err
	}
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("gemm: expected 2-D operands, got %v and %v", a.Shape(), b.Shape())
	}

	alpha := GetAttrFloat(node, "alpha", 1)
	beta := GetAttrFloat(node, "beta", 1)
	transA := GetAttrInt(node, "transA", 0) != 0
	transB := GetAttrInt(node, "transB", 0) != 0

	m, k := a.Shape()[0], a.Shape()[1]
	if transA {
		m, k = k, m
	}
	kb, n := b.Shape()[0], b.Shape()[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, fmt.Errorf("gemm: inner dimensions differ: %d vs %d", k, kb)
	}

	outShape := tensor.Shape{m, n}
	out := tensor.Zeros(outShape, tensor.Float32)
	ad, bd, od := a.Float32(), b.Float32(), out.Float32()
	aCols, bCols := a.Shape()[1], b.Shape()[1]

	var cd []float32
	if c != nil {
		if _, err := tensor.BroadcastShapes(c.Shape(), outShape); err != nil {
			return nil, fmt.Errorf("gemm: bias: %w", err)
		}
		cd = c.Float32()
	}

	parallel.Rows(m, ctx.Parallel, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for p := 0; p < k; p++ {
					var av, bv float32
					if transA {
						av = ad[p*aCols+i]
					} else {
						av = ad[i*aCols+p]
					}
					if transB {
						bv = bd[j*bCols+p]
					} else {
						bv = bd[p*bCols+j]
					}
					sum += av * bv
				}
				v := alpha * sum
				if cd != nil {
					v += beta * cd[tensor.BroadcastIndex(i*n+j, outShape, c.Shape())]
				}
				od[i*n+j] = v
			}
		}
	})
	return one(out), nil
}

func mustReshape(t *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	r, err := t.Reshape(shape)
	if err != nil {
		panic(err)
	}
	return r
}
