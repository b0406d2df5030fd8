package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: model paths come from skill manifests by design.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := decodeModel(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// decoder is a minimal protobuf wire format reader.
type decoder struct {
	data []byte
	pos  int
}

// fields calls fn for every field of the message; fn must consume the value.
func (d *decoder) fields(fn func(field, wire int) error) error {
	for d.pos < len(d.data) {
		tag, err := d.varint()
		if err != nil {
			return err
		}
		if err := fn(int(tag>>3), int(tag&0x7)); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) varint() (int64, error) {
	var result uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
		if d.pos >= len(d.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := d.data[d.pos]
		d.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return int64(result), nil //nolint:gosec // G115: protobuf varints are two's complement int64.
		}
	}
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.varint()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.New("negative length")
	}
	end := d.pos + int(n)
	if end > len(d.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.data[d.pos:end]
	d.pos = end
	return b, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	return string(b), err
}

func (d *decoder) fixed32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) fixed64() (uint64, error) {
	if d.pos+8 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) float32() (float32, error) {
	v, err := d.fixed32()
	return math.Float32frombits(v), err
}

// varints reads a repeated integer field in packed or unpacked encoding.
func (d *decoder) varints(wire int, dst []int64) ([]int64, error) {
	if wire != wireBytes {
		v, err := d.varint()
		return append(dst, v), err
	}
	b, err := d.bytes()
	if err != nil {
		return dst, err
	}
	sub := &decoder{data: b}
	for sub.pos < len(sub.data) {
		v, err := sub.varint()
		if err != nil {
			return dst, err
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// floats reads a repeated float field in packed or unpacked encoding.
func (d *decoder) floats(wire int, dst []float32) ([]float32, error) {
	if wire != wireBytes {
		v, err := d.float32()
		return append(dst, v), err
	}
	b, err := d.bytes()
	if err != nil {
		return dst, err
	}
	if len(b)%4 != 0 {
		return dst, fmt.Errorf("packed float field has %d bytes", len(b))
	}
	for i := 0; i < len(b); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
	}
	return dst, nil
}

// doubles reads a repeated double field in packed or unpacked encoding.
func (d *decoder) doubles(wire int, dst []float64) ([]float64, error) {
	if wire != wireBytes {
		v, err := d.fixed64()
		return append(dst, math.Float64frombits(v)), err
	}
	b, err := d.bytes()
	if err != nil {
		return dst, err
	}
	if len(b)%8 != 0 {
		return dst, fmt.Errorf("packed double field has %d bytes", len(b))
	}
	for i := 0; i < len(b); i += 8 {
		dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(b[i:])))
	}
	return dst, nil
}

// message reads a length-delimited sub-message and decodes it with fn.
func (d *decoder) message(fn func(data []byte) error) error {
	b, err := d.bytes()
	if err != nil {
		return err
	}
	return fn(b)
}

func (d *decoder) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := d.varint()
		return err
	case wire64Bit:
		_, err := d.fixed64()
		return err
	case wireBytes:
		_, err := d.bytes()
		return err
	case wire32Bit:
		_, err := d.fixed32()
		return err
	default:
		return fmt.Errorf("unknown wire type: %d", wire)
	}
}

func decodeModel(data []byte, m *ModelProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			m.IRVersion, err = d.varint()
		case 2:
			m.ProducerName, err = d.str()
		case 3:
			m.ProducerVersion, err = d.str()
		case 4:
			m.Domain, err = d.str()
		case 5:
			m.ModelVersion, err = d.varint()
		case 6:
			m.DocString, err = d.str()
		case 7:
			m.Graph = &GraphProto{}
			err = d.message(func(b []byte) error { return decodeGraph(b, m.Graph) })
		case 8:
			var op OperatorSetID
			err = d.message(func(b []byte) error { return decodeOpset(b, &op) })
			m.OpsetImport = append(m.OpsetImport, op)
		case 14:
			var e StringStringEntry
			err = d.message(func(b []byte) error { return decodeEntry(b, &e) })
			m.MetadataProps = append(m.MetadataProps, e)
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeGraph(data []byte, g *GraphProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			var n NodeProto
			err = d.message(func(b []byte) error { return decodeNode(b, &n) })
			g.Nodes = append(g.Nodes, n)
		case 2:
			g.Name, err = d.str()
		case 5:
			var t TensorProto
			err = d.message(func(b []byte) error { return decodeTensor(b, &t) })
			g.Initializers = append(g.Initializers, t)
		case 10:
			g.DocString, err = d.str()
		case 11, 12:
			var vi ValueInfoProto
			err = d.message(func(b []byte) error { return decodeValueInfo(b, &vi) })
			if field == 11 {
				g.Inputs = append(g.Inputs, vi)
			} else {
				g.Outputs = append(g.Outputs, vi)
			}
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeNode(data []byte, n *NodeProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		var s string
		switch field {
		case 1:
			s, err = d.str()
			n.Inputs = append(n.Inputs, s)
		case 2:
			s, err = d.str()
			n.Outputs = append(n.Outputs, s)
		case 3:
			n.Name, err = d.str()
		case 4:
			n.OpType, err = d.str()
		case 5:
			var a AttributeProto
			err = d.message(func(b []byte) error { return decodeAttribute(b, &a) })
			n.Attributes = append(n.Attributes, a)
		case 7:
			n.Domain, err = d.str()
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeTensor(data []byte, t *TensorProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			t.Dims, err = d.varints(wire, t.Dims)
		case 2:
			var v int64
			v, err = d.varint()
			t.DataType = int32(v) //nolint:gosec // G115: enum values fit in int32.
		case 4:
			t.FloatData, err = d.floats(wire, t.FloatData)
		case 5:
			var vs []int64
			vs, err = d.varints(wire, nil)
			for _, v := range vs {
				t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // G115: int32_data holds int32 values.
			}
		case 6:
			var b []byte
			b, err = d.bytes()
			t.StringData = append(t.StringData, b)
		case 7:
			t.Int64Data, err = d.varints(wire, t.Int64Data)
		case 8:
			t.Name, err = d.str()
		case 9:
			t.RawData, err = d.bytes()
		case 10:
			t.DoubleData, err = d.doubles(wire, t.DoubleData)
		default:
			err = d.skip(wire)
		}
		return err
	})
}

// decodeValueInfo reads ValueInfoProto, descending through
// TypeProto.tensor_type and TensorTypeProto.shape.
func decodeValueInfo(data []byte, vi *ValueInfoProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			vi.Name, err = d.str()
		case 2:
			err = d.message(func(b []byte) error { return decodeType(b, vi) })
		case 3:
			vi.DocString, err = d.str()
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeType(data []byte, vi *ValueInfoProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) error {
		if field != 1 {
			return d.skip(wire)
		}
		return d.message(func(b []byte) error { return decodeTensorType(b, vi) })
	})
}

func decodeTensorType(data []byte, vi *ValueInfoProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			var v int64
			v, err = d.varint()
			vi.ElemType = int32(v) //nolint:gosec // G115: enum values fit in int32.
		case 2:
			vi.HasShape = true
			err = d.message(func(b []byte) error { return decodeShape(b, vi) })
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeShape(data []byte, vi *ValueInfoProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) error {
		if field != 1 {
			return d.skip(wire)
		}
		var dim DimensionProto
		err := d.message(func(b []byte) error {
			sub := &decoder{data: b}
			return sub.fields(func(f, w int) (err error) {
				switch f {
				case 1:
					dim.DimValue, err = sub.varint()
				case 2:
					dim.DimParam, err = sub.str()
				default:
					err = sub.skip(w)
				}
				return err
			})
		})
		vi.Dims = append(vi.Dims, dim)
		return err
	})
}

func decodeAttribute(data []byte, a *AttributeProto) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			a.Name, err = d.str()
		case 2:
			a.F, err = d.float32()
		case 3:
			a.I, err = d.varint()
		case 4:
			a.S, err = d.bytes()
		case 5:
			a.T = &TensorProto{}
			err = d.message(func(b []byte) error { return decodeTensor(b, a.T) })
		case 7:
			a.Floats, err = d.floats(wire, a.Floats)
		case 8:
			a.Ints, err = d.varints(wire, a.Ints)
		case 9:
			var b []byte
			b, err = d.bytes()
			a.Strings = append(a.Strings, b)
		case 20:
			var v int64
			v, err = d.varint()
			a.Type = int32(v) //nolint:gosec // G115: enum values fit in int32.
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeOpset(data []byte, op *OperatorSetID) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			op.Domain, err = d.str()
		case 2:
			op.Version, err = d.varint()
		default:
			err = d.skip(wire)
		}
		return err
	})
}

func decodeEntry(data []byte, e *StringStringEntry) error {
	d := &decoder{data: data}
	return d.fields(func(field, wire int) (err error) {
		switch field {
		case 1:
			e.Key, err = d.str()
		case 2:
			e.Value, err = d.str()
		default:
			err = d.skip(wire)
		}
		return err
	})
}
