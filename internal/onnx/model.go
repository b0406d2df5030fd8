package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/born-ml/vision/internal/onnx/operators"
	"github.com/born-ml/vision/internal/tensor"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("onnx: model is closed")

// ValueInfo describes a model input or output. Dynamic dimensions are -1.
type ValueInfo struct {
	Name      string
	DataType  tensor.DataType
	Shape     []int64
	DocString string
}

// Model represents a loaded ONNX model ready for inference.
// A Model is safe for concurrent Run calls: initializers are read-only and
// every run keeps its intermediate tensors in its own map.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	opCtx        *operators.Context
	tensors      map[string]*tensor.Tensor
	inputs       []ValueInfo
	outputs      []ValueInfo
	sortedNodes  []*operators.Node
	opsetVersion int64
	closed       atomic.Bool
}

// Inputs returns the model's feed inputs (graph inputs minus initializers).
func (m *Model) Inputs() []ValueInfo {
	return m.inputs
}

// Outputs returns the model outputs.
func (m *Model) Outputs() []ValueInfo {
	return m.outputs
}

// InputNames returns the names of model inputs.
func (m *Model) InputNames() []string {
	return names(m.inputs)
}

// OutputNames returns the names of model outputs.
func (m *Model) OutputNames() []string {
	return names(m.outputs)
}

func names(vs []ValueInfo) []string {
	out := make([]string, len(vs))
	for i := range vs {
		out[i] = vs[i].Name
	}
	return out
}

// OpsetVersion returns the ONNX opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Metadata returns model metadata as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}

// Run executes the graph with named inputs and returns the declared outputs.
// Inputs are checked against the declared element type and rank; ctx is
// checked between nodes.
func (m *Model) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	tensors := make(map[string]*tensor.Tensor, len(m.tensors)+len(inputs))
	for name, t := range m.tensors {
		tensors[name] = t
	}
	for i := range m.inputs {
		in := &m.inputs[i]
		t, ok := inputs[in.Name]
		if !ok || t == nil {
			return nil, fmt.Errorf("missing input: %s", in.Name)
		}
		if err := checkInput(in, t); err != nil {
			return nil, err
		}
		tensors[in.Name] = t
	}

	for _, node := range m.sortedNodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		nodeInputs := make([]*tensor.Tensor, len(node.Inputs))
		for i, inputName := range node.Inputs {
			if inputName == "" {
				continue
			}
			t, ok := tensors[inputName]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, inputName)
			}
			nodeInputs[i] = t
		}

		outputs, err := m.registry.Execute(m.opCtx, node, nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for i, outputName := range node.Outputs {
			if i < len(outputs) && outputName != "" {
				tensors[outputName] = outputs[i]
			}
		}
	}

	result := make(map[string]*tensor.Tensor, len(m.outputs))
	for i := range m.outputs {
		name := m.outputs[i].Name
		t, ok := tensors[name]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t
	}
	return result, nil
}

func checkInput(in *ValueInfo, t *tensor.Tensor) error {
	if t.DType() != in.DataType {
		return fmt.Errorf("input %s: expected %s, got %s", in.Name, in.DataType, t.DType())
	}
	if in.Shape == nil {
		return nil
	}
	if t.Rank() != len(in.Shape) {
		return fmt.Errorf("input %s: expected rank %d, got shape %v", in.Name, len(in.Shape), t.Shape())
	}
	for i, d := range in.Shape {
		if d >= 0 && int(d) != t.Shape()[i] {
			return fmt.Errorf("input %s: expected shape %v, got %v", in.Name, in.Shape, t.Shape())
		}
	}
	return nil
}

// Close releases the model. Subsequent Run calls fail with ErrClosed.
func (m *Model) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.tensors = nil
	return nil
}

// compile prepares the model for inference.
func (m *Model) compile() error {
	graph := m.proto.Graph
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	m.tensors = make(map[string]*tensor.Tensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		m.tensors[init.Name] = t
	}

	for i := range graph.Inputs {
		if _, isInit := m.tensors[graph.Inputs[i].Name]; isInit {
			continue
		}
		vi, err := valueInfoFromProto(&graph.Inputs[i])
		if err != nil {
			return err
		}
		m.inputs = append(m.inputs, vi)
	}
	for i := range graph.Outputs {
		vi, err := valueInfoFromProto(&graph.Outputs[i])
		if err != nil {
			return err
		}
		m.outputs = append(m.outputs, vi)
	}

	sorted, err := topologicalSort(graph.Nodes)
	if err != nil {
		return err
	}
	m.sortedNodes = make([]*operators.Node, len(sorted))
	for i := range sorted {
		n, err := nodeProtoToOperatorNode(&sorted[i])
		if err != nil {
			return err
		}
		m.sortedNodes[i] = n
	}

	for _, opset := range m.proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			m.opsetVersion = opset.Version
			break
		}
	}
	return nil
}

func valueInfoFromProto(p *ValueInfoProto) (ValueInfo, error) {
	dt, err := protoTypeToTensorType(p.ElemType)
	if err != nil {
		return ValueInfo{}, fmt.Errorf("value %s: %w", p.Name, err)
	}
	vi := ValueInfo{Name: p.Name, DataType: dt, DocString: p.DocString}
	if p.HasShape {
		vi.Shape = make([]int64, len(p.Dims))
		for i, d := range p.Dims {
			if d.DimParam != "" || d.DimValue <= 0 {
				vi.Shape[i] = -1
				continue
			}
			vi.Shape[i] = d.DimValue
		}
	}
	return vi, nil
}

// tensorFromProto converts a TensorProto to a tensor. Float64 data is
// narrowed to float32 and int32 data widened to int64.
func tensorFromProto(p *TensorProto) (*tensor.Tensor, error) {
	shape := make(tensor.Shape, len(p.Dims))
	for i, dim := range p.Dims {
		shape[i] = int(dim)
	}
	dtype, err := protoTypeToTensorType(p.DataType)
	if err != nil {
		return nil, err
	}
	t, err := tensor.New(shape, dtype)
	if err != nil {
		return nil, err
	}
	n := t.NumElements()

	if len(p.RawData) > 0 {
		if err := decodeRaw(t, p.DataType, p.RawData); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", p.Name, err)
		}
		return t, nil
	}

	switch {
	case len(p.FloatData) > 0:
		if len(p.FloatData) != n {
			return nil, fmt.Errorf("tensor %s: %d float values for %d elements", p.Name, len(p.FloatData), n)
		}
		copy(t.Float32(), p.FloatData)
	case len(p.DoubleData) > 0:
		if len(p.DoubleData) != n {
			return nil, fmt.Errorf("tensor %s: %d double values for %d elements", p.Name, len(p.DoubleData), n)
		}
		for i, v := range p.DoubleData {
			t.Float32()[i] = float32(v)
		}
	case len(p.Int64Data) > 0:
		if len(p.Int64Data) != n {
			return nil, fmt.Errorf("tensor %s: %d int64 values for %d elements", p.Name, len(p.Int64Data), n)
		}
		copy(t.Int64(), p.Int64Data)
	case len(p.Int32Data) > 0:
		if len(p.Int32Data) != n {
			return nil, fmt.Errorf("tensor %s: %d int32 values for %d elements", p.Name, len(p.Int32Data), n)
		}
		// int32_data also carries uint8 and bool payloads.
		for i, v := range p.Int32Data {
			switch dtype {
			case tensor.Int64:
				t.Int64()[i] = int64(v)
			case tensor.Uint8:
				t.Uint8()[i] = uint8(v) //nolint:gosec // G115: uint8 payload stored as int32.
			case tensor.Bool:
				t.Bool()[i] = v != 0
			}
		}
	case len(p.StringData) > 0:
		if len(p.StringData) != n {
			return nil, fmt.Errorf("tensor %s: %d strings for %d elements", p.Name, len(p.StringData), n)
		}
		for i, s := range p.StringData {
			t.Strings()[i] = string(s)
		}
	}
	return t, nil
}

// protoTypeToTensorType converts ONNX data type to tensor.DataType.
func protoTypeToTensorType(onnxType int32) (tensor.DataType, error) {
	switch onnxType {
	case TensorProtoFloat, TensorProtoDouble:
		return tensor.Float32, nil
	case TensorProtoInt32, TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoBool:
		return tensor.Bool, nil
	case TensorProtoString:
		return tensor.String, nil
	default:
		return 0, fmt.Errorf("unsupported element type %d", onnxType)
	}
}

// nodeProtoToOperatorNode converts NodeProto to operators.Node.
func nodeProtoToOperatorNode(proto *NodeProto) (*operators.Node, error) {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    attr.Name,
			Type:    attr.Type,
			F:       attr.F,
			I:       attr.I,
			S:       attr.S,
			Floats:  attr.Floats,
			Ints:    attr.Ints,
			Strings: attr.Strings,
		}
		if attr.T != nil {
			t, err := tensorFromProto(attr.T)
			if err != nil {
				return nil, fmt.Errorf("node %s attribute %s: %w", proto.Name, attr.Name, err)
			}
			attrs[i].T = t
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
	}, nil
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents; cycles are rejected.
func topologicalSort(nodes []NodeProto) ([]NodeProto, error) {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("graph has a cycle through node %q", nodes[i].Name)
		}
		state[i] = visiting
		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				if err := visit(depIdx); err != nil {
					return err
				}
			}
		}
		state[i] = done
		result = append(result, nodes[i])
		return nil
	}

	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return result, nil
}
