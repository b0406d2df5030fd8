// Package onnxtest assembles small ONNX models in memory for tests.
package onnxtest

import (
	"encoding/binary"
	"math"
)

// Element types used by the builder.
const (
	Float = 1
	Uint8 = 2
	Int64 = 7
	Bool  = 9
)

// buf is a minimal protobuf writer.
type buf []byte

func (b *buf) varint(v uint64) {
	for v >= 0x80 {
		*b = append(*b, byte(v)|0x80)
		v >>= 7
	}
	*b = append(*b, byte(v))
}

func (b *buf) tag(field, wire int) {
	b.varint(uint64(field<<3 | wire)) //nolint:gosec // G115: small field numbers.
}

func (b *buf) int(field int, v int64) {
	b.tag(field, 0)
	b.varint(uint64(v)) //nolint:gosec // G115: two's complement varint.
}

func (b *buf) bytes(field int, v []byte) {
	b.tag(field, 2)
	b.varint(uint64(len(v)))
	*b = append(*b, v...)
}

func (b *buf) str(field int, s string) {
	b.bytes(field, []byte(s))
}

func (b *buf) float(field int, v float32) {
	b.tag(field, 5)
	*b = binary.LittleEndian.AppendUint32(*b, math.Float32bits(v))
}

func (b *buf) packedInts(field int, vs []int64) {
	var p buf
	for _, v := range vs {
		p.varint(uint64(v)) //nolint:gosec // G115: two's complement varint.
	}
	b.bytes(field, p)
}

func (b *buf) packedFloats(field int, vs []float32) {
	var p buf
	for _, v := range vs {
		p = binary.LittleEndian.AppendUint32(p, math.Float32bits(v))
	}
	b.bytes(field, p)
}

// Tensor is an initializer or attribute tensor.
type Tensor struct {
	Name   string
	Type   int
	Dims   []int64
	Floats []float32
	Ints   []int64
	// Raw stores Floats as raw_data instead of float_data.
	Raw bool
}

func (t Tensor) encode() []byte {
	var b buf
	if len(t.Dims) > 0 {
		b.packedInts(1, t.Dims)
	}
	typ := t.Type
	if typ == 0 {
		typ = Float
	}
	b.int(2, int64(typ))
	switch {
	case t.Raw:
		raw := make([]byte, 0, 4*len(t.Floats))
		for _, v := range t.Floats {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
		}
		b.bytes(9, raw)
	case len(t.Floats) > 0:
		b.packedFloats(4, t.Floats)
	case len(t.Ints) > 0:
		b.packedInts(7, t.Ints)
	}
	if t.Name != "" {
		b.str(8, t.Name)
	}
	return b
}

// Attr is a node attribute; exactly one value field should be set.
type Attr struct {
	Name   string
	F      *float32
	I      *int64
	S      string
	T      *Tensor
	Floats []float32
	Ints   []int64
}

// Int returns an int attribute.
func Int(name string, v int64) Attr { return Attr{Name: name, I: &v} }

// FloatAttr returns a float attribute.
func FloatAttr(name string, v float32) Attr { return Attr{Name: name, F: &v} }

// Ints returns an ints attribute.
func Ints(name string, vs ...int64) Attr { return Attr{Name: name, Ints: vs} }

func (a Attr) encode() []byte {
	var b buf
	b.str(1, a.Name)
	switch {
	case a.F != nil:
		b.float(2, *a.F)
		b.int(20, 1)
	case a.I != nil:
		b.int(3, *a.I)
		b.int(20, 2)
	case a.S != "":
		b.str(4, a.S)
		b.int(20, 3)
	case a.T != nil:
		b.bytes(5, a.T.encode())
		b.int(20, 4)
	case a.Floats != nil:
		b.packedFloats(7, a.Floats)
		b.int(20, 6)
	case a.Ints != nil:
		// Unpacked on purpose: exercises the non-packed decode path.
		for _, v := range a.Ints {
			b.int(8, v)
		}
		b.int(20, 7)
	}
	return b
}

// Node is a graph node.
type Node struct {
	Name    string
	Op      string
	Inputs  []string
	Outputs []string
	Attrs   []Attr
}

func (n Node) encode() []byte {
	var b buf
	for _, in := range n.Inputs {
		b.str(1, in)
	}
	for _, out := range n.Outputs {
		b.str(2, out)
	}
	if n.Name != "" {
		b.str(3, n.Name)
	}
	b.str(4, n.Op)
	for _, a := range n.Attrs {
		b.bytes(5, a.encode())
	}
	return b
}

// Value is a graph input or output. A negative dim is written as a symbolic dimension.
type Value struct {
	Name string
	Type int
	Dims []int64
}

func (v Value) encode() []byte {
	var shape buf
	for _, d := range v.Dims {
		var dim buf
		if d < 0 {
			dim.str(2, "N")
		} else {
			dim.int(1, d)
		}
		shape.bytes(1, dim)
	}
	var tt buf
	typ := v.Type
	if typ == 0 {
		typ = Float
	}
	tt.int(1, int64(typ))
	tt.bytes(2, shape)
	var tp buf
	tp.bytes(1, tt)

	var b buf
	b.str(1, v.Name)
	b.bytes(2, tp)
	return b
}

// Model describes a whole model.
type Model struct {
	Producer     string
	Opset        int64
	Nodes        []Node
	Inputs       []Value
	Outputs      []Value
	Initializers []Tensor
	Metadata     map[string]string
}

// Bytes encodes the model as ONNX protobuf.
func (m Model) Bytes() []byte {
	var g buf
	for _, n := range m.Nodes {
		g.bytes(1, n.encode())
	}
	g.str(2, "test-graph")
	for _, t := range m.Initializers {
		g.bytes(5, t.encode())
	}
	for _, v := range m.Inputs {
		g.bytes(11, v.encode())
	}
	for _, v := range m.Outputs {
		g.bytes(12, v.encode())
	}

	var b buf
	b.int(1, 8)
	if m.Producer != "" {
		b.str(2, m.Producer)
	}
	b.bytes(7, g)
	opset := m.Opset
	if opset == 0 {
		opset = 13
	}
	var op buf
	op.int(2, opset)
	b.bytes(8, op)
	for k, v := range m.Metadata {
		var e buf
		e.str(1, k)
		e.str(2, v)
		b.bytes(14, e)
	}
	return b
}
