package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/tensor"
)

// decodeRaw fills t from little-endian raw_data of the given ONNX element type.
func decodeRaw(t *tensor.Tensor, onnxType int32, raw []byte) error {
	n := t.NumElements()
	width := map[int32]int{
		TensorProtoFloat:  4,
		TensorProtoDouble: 8,
		TensorProtoInt32:  4,
		TensorProtoInt64:  8,
		TensorProtoUint8:  1,
		TensorProtoBool:   1,
	}[onnxType]
	if width == 0 {
		return fmt.Errorf("raw data not supported for element type %d", onnxType)
	}
	if len(raw) != n*width {
		return fmt.Errorf("raw data has %d bytes, want %d", len(raw), n*width)
	}

	switch onnxType {
	case TensorProtoFloat:
		dst := t.Float32()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case TensorProtoDouble:
		dst := t.Float32()
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	case TensorProtoInt32:
		dst := t.Int64()
		for i := range dst {
			dst[i] = int64(int32(binary.LittleEndian.Uint32(raw[i*4:]))) //nolint:gosec // G115: reinterpreting two's complement.
		}
	case TensorProtoInt64:
		dst := t.Int64()
		for i := range dst {
			dst[i] = int64(binary.LittleEndian.Uint64(raw[i*8:])) //nolint:gosec // G115: reinterpreting two's complement.
		}
	case TensorProtoUint8:
		copy(t.Uint8(), raw)
	case TensorProtoBool:
		dst := t.Bool()
		for i := range dst {
			dst[i] = raw[i] != 0
		}
	}
	return nil
}
