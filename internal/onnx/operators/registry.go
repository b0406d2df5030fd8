package operators

import (
	"fmt"
	"sort"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// OpHandler processes an ONNX node and returns output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

// Context carries per-run execution settings for operators.
type Context struct {
	Parallel parallel.Config
}

// DefaultContext returns a context using all CPUs.
func DefaultContext() *Context {
	return &Context{Parallel: parallel.DefaultConfig()}
}

// Registry maps ONNX operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerConvOps()

	return r
}

// Register adds a custom operator handler, replacing any existing one.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", node.OpType)
	}
	return handler(ctx, node, inputs)
}

// SupportedOps returns all registered operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// wantInputs checks the input count range; max < 0 means unbounded.
// Optional inputs may be nil.
func wantInputs(op string, inputs []*tensor.Tensor, minN, maxN int) error {
	if len(inputs) < minN || (maxN >= 0 && len(inputs) > maxN) {
		if minN == maxN {
			return fmt.Errorf("%s requires %d inputs, got %d", op, minN, len(inputs))
		}
		return fmt.Errorf("%s requires %d to %d inputs, got %d", op, minN, maxN, len(inputs))
	}
	for i := 0; i < minN; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: input %d is required", op, i)
		}
	}
	return nil
}

// optional returns inputs[i] or nil when absent.
func optional(inputs []*tensor.Tensor, i int) *tensor.Tensor {
	if i < len(inputs) {
		return inputs[i]
	}
	return nil
}

func wantFloat(op string, ts ...*tensor.Tensor) error {
	for _, t := range ts {
		if t != nil && t.DType() != tensor.Float32 {
			return fmt.Errorf("%s: expected float32 input, got %s", op, t.DType())
		}
	}
	return nil
}

func one(t *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{t}
}
