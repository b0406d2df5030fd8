// Package tensor provides the flat, typed tensors exchanged with ONNX sessions
// and stored in skill bindings.
package tensor

// DataType represents runtime element type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int64
	Bool
	String
	Uint8
)

// Size returns the byte size of one element, or 0 for variable-size types.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Int64:
		return 8
	case Bool, Uint8:
		return 1
	case String:
		return 0
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether values of this type can take part in arithmetic.
func (dt DataType) IsNumeric() bool {
	return dt == Float32 || dt == Int64 || dt == Uint8
}
