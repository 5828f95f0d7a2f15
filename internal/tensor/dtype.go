// Package tensor provides the concrete numeric arrays exchanged with sessions
// and the CPU kernels both graph engines evaluate them with.
package tensor

import "fmt"

// DataType represents runtime type information for arrays and graph nodes.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether values of this type keep a fractional part.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// ParseDataType converts a name such as "float32" into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "uint8":
		return Uint8, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// convert rounds v into the value domain of dt.
func (dt DataType) convert(v float64) float64 {
	switch dt {
	case Float32:
		return float64(float32(v))
	case Int32:
		return float64(int32(v))
	case Int64:
		return float64(int64(v))
	case Uint8:
		return float64(uint8(v))
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	default:
		return v
	}
}
