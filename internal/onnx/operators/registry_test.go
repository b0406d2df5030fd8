package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

func f32(t *testing.T, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat32(data, tensor.Shape(shape))
	require.NoError(t, err)
	return x
}

func i64(t *testing.T, data []int64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromInt64(data, tensor.Shape(shape))
	require.NoError(t, err)
	return x
}

func run(t *testing.T, node *Node, inputs ...*tensor.Tensor) *tensor.Tensor {
	t.Helper()
	ctx := &Context{Parallel: parallel.Config{Enabled: false}}
	out, err := NewRegistry().Execute(ctx, node, inputs)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	return out[0]
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	for _, op := range []string{
		"Add", "Sub", "Mul", "Div", "MatMul", "Gemm",
		"Relu", "LeakyRelu", "Sigmoid", "Tanh", "Softmax", "Exp", "Clip",
		"Flatten", "Reshape", "Transpose", "Squeeze", "Unsqueeze", "Concat",
		"Identity", "Dropout", "Constant", "Cast",
		"Conv", "MaxPool", "AveragePool", "GlobalAveragePool", "BatchNormalization",
	} {
		_, ok := r.Get(op)
		assert.True(t, ok, "expected %s to be registered", op)
	}

	_, ok := r.Get("UnknownOp")
	assert.False(t, ok)
}

func TestSupportedOpsSorted(t *testing.T) {
	ops := NewRegistry().SupportedOps()
	assert.IsNonDecreasing(t, ops)
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()
	r.Register("MyCustomOp", func(_ *Context, _ *Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		return in, nil
	})
	_, ok := r.Get("MyCustomOp")
	assert.True(t, ok)

	_, err := r.Execute(DefaultContext(), &Node{OpType: "Nope"}, nil)
	assert.ErrorContains(t, err, "unsupported operator")
}

func TestAddBroadcast(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, []float32{10, 20, 30}, 3)
	out := run(t, &Node{OpType: "Add"}, a, b)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.Float32())
}

func TestBinaryInt64(t *testing.T) {
	out := run(t, &Node{OpType: "Mul"}, i64(t, []int64{2, 3}, 2), i64(t, []int64{4}, 1))
	assert.Equal(t, []int64{8, 12}, out.Int64())
}

func TestBinaryDTypeMismatch(t *testing.T) {
	_, err := NewRegistry().Execute(DefaultContext(), &Node{OpType: "Add"},
		[]*tensor.Tensor{f32(t, []float32{1}, 1), i64(t, []int64{1}, 1)})
	assert.Error(t, err)
}

func TestMatMul(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)
	out := run(t, &Node{OpType: "MatMul"}, a, b)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.Float32())
}

func TestMatMulBatchedAndVector(t *testing.T) {
	a := f32(t, []float32{1, 0, 0, 1, 2, 0, 0, 2}, 2, 2, 2)
	v := f32(t, []float32{3, 4}, 2)
	out := run(t, &Node{OpType: "MatMul"}, a, v)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{3, 4, 6, 8}, out.Float32())
}

func TestGemmTransB(t *testing.T) {
	a := f32(t, []float32{1, 2}, 1, 2)
	b := f32(t, []float32{1, 1, 2, 2, 3, 3}, 3, 2)
	c := f32(t, []float32{1, 1, 1}, 3)
	node := &Node{OpType: "Gemm", Attributes: []Attribute{{Name: "transB", I: 1}}}
	out := run(t, node, a, b, c)
	assert.Equal(t, tensor.Shape{1, 3}, out.Shape())
	assert.Equal(t, []float32{4, 7, 10}, out.Float32())
}

func TestSoftmaxLastAxis(t *testing.T) {
	out := run(t, &Node{OpType: "Softmax"}, f32(t, []float32{0, 0, 5, 5}, 2, 2))
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5}, out.Float32(), 1e-6)
}

func TestClipInputs(t *testing.T) {
	lo := f32(t, []float32{0}, 1)
	hi := f32(t, []float32{6}, 1)
	out := run(t, &Node{OpType: "Clip"}, f32(t, []float32{-1, 3, 9}, 3), lo, hi)
	assert.Equal(t, []float32{0, 3, 6}, out.Float32())
}

func TestReshapeInferAndCopy(t *testing.T) {
	x := f32(t, make([]float32, 24), 2, 3, 4)
	out := run(t, &Node{OpType: "Reshape"}, x, i64(t, []int64{0, -1}, 2))
	assert.Equal(t, tensor.Shape{2, 12}, out.Shape())
}

func TestTranspose(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := run(t, &Node{OpType: "Transpose"}, x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Float32())
}

func TestSqueezeUnsqueeze(t *testing.T) {
	x := f32(t, []float32{1, 2}, 1, 2, 1)
	sq := run(t, &Node{OpType: "Squeeze"}, x)
	assert.Equal(t, tensor.Shape{2}, sq.Shape())

	un := run(t, &Node{OpType: "Unsqueeze", Attributes: []Attribute{{Name: "axes", Ints: []int64{0, -1}}}}, sq)
	assert.Equal(t, tensor.Shape{1, 2, 1}, un.Shape())
}

func TestConcatAxis1(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4}, 2, 2)
	b := f32(t, []float32{5, 6}, 2, 1)
	out := run(t, &Node{OpType: "Concat", Attributes: []Attribute{{Name: "axis", I: 1}}}, a, b)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, out.Float32())
}

func TestFlatten(t *testing.T) {
	out := run(t, &Node{OpType: "Flatten"}, f32(t, make([]float32, 24), 2, 3, 4))
	assert.Equal(t, tensor.Shape{2, 12}, out.Shape())
}

func TestConstantAndCast(t *testing.T) {
	val := f32(t, []float32{1.7, 0}, 2)
	c := run(t, &Node{OpType: "Constant", Attributes: []Attribute{{Name: "value", T: val}}})
	assert.Same(t, val, c)

	cast := run(t, &Node{OpType: "Cast", Attributes: []Attribute{{Name: "to", I: onnxInt64}}}, val)
	assert.Equal(t, []int64{1, 0}, cast.Int64())
}

func TestDropoutMask(t *testing.T) {
	x := f32(t, []float32{1, 2}, 2)
	out, err := NewRegistry().Execute(DefaultContext(), &Node{OpType: "Dropout", Outputs: []string{"y", "mask"}}, []*tensor.Tensor{x})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Same(t, x, out[0])
	assert.Equal(t, []bool{true, true}, out[1].Bool())
}

func TestConvIdentityKernelWithPadding(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4}, 1, 1, 2, 2)
	w := f32(t, []float32{0, 0, 0, 0, 1, 0, 0, 0, 0}, 1, 1, 3, 3)
	b := f32(t, []float32{10}, 1)
	node := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "pads", Ints: []int64{1, 1, 1, 1}}}}
	out := run(t, node, x, w, b)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{11, 12, 13, 14}, out.Float32())
}

func TestConvSumKernelStride(t *testing.T) {
	x := f32(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, 1, 1, 4, 4)
	w := f32(t, []float32{1, 1, 1, 1}, 1, 1, 2, 2)
	node := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "strides", Ints: []int64{2, 2}}}}
	out := run(t, node, x, w)
	assert.Equal(t, []float32{14, 22, 46, 54}, out.Float32())
}

func TestConvGroupedBatch(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 1, 2)
	w := f32(t, []float32{2, 3}, 2, 1, 1, 1)
	node := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "group", I: 2}}}
	out := run(t, node, x, w)
	assert.Equal(t, tensor.Shape{2, 2, 1, 2}, out.Shape())
	assert.Equal(t, []float32{2, 4, 9, 12, 10, 12, 21, 24}, out.Float32())
}

func TestIm2colPadsWithZeros(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	win := window{kh: 2, kw: 2, sh: 1, sw: 1, dh: 1, dw: 1, padT: 1, padL: 1, outH: 1, outW: 1}
	col := make([]float32, 4)
	im2col(col, src, 1, 2, 2, win)
	assert.Equal(t, []float32{0, 0, 0, 1}, col)
}

func TestPooling(t *testing.T) {
	x := f32(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, 1, 1, 4, 4)
	attrs := []Attribute{
		{Name: "kernel_shape", Ints: []int64{2, 2}},
		{Name: "strides", Ints: []int64{2, 2}},
	}

	mx := run(t, &Node{OpType: "MaxPool", Attributes: attrs}, x)
	assert.Equal(t, []float32{6, 8, 14, 16}, mx.Float32())

	avg := run(t, &Node{OpType: "AveragePool", Attributes: attrs}, x)
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, avg.Float32())

	g := run(t, &Node{OpType: "GlobalAveragePool"}, x)
	assert.Equal(t, tensor.Shape{1, 1, 1, 1}, g.Shape())
	assert.InDelta(t, 8.5, g.Float32()[0], 1e-6)
}

func TestBatchNormalization(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4}, 1, 2, 1, 2)
	scale := f32(t, []float32{1, 2}, 2)
	bias := f32(t, []float32{0, 1}, 2)
	mean := f32(t, []float32{1, 3}, 2)
	variance := f32(t, []float32{1, 1}, 2)
	node := &Node{OpType: "BatchNormalization", Attributes: []Attribute{{Name: "epsilon", F: 0}}}
	out := run(t, node, x, scale, bias, mean, variance)
	assert.InDeltaSlice(t, []float32{0, 1, 1, 3}, out.Float32(), 1e-6)
}
