package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Array is a dense, row-major numeric array.
//
// Values are held as float64 regardless of DataType; the DataType decides how
// they are rounded when written and how they are encoded on disk.
type Array struct {
	shape Shape
	dtype DataType
	data  []float64
}

// NewArray allocates a zero-filled array.
func NewArray(shape Shape, dtype DataType) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Array{
		shape: shape.Clone(),
		dtype: dtype,
		data:  make([]float64, shape.NumElements()),
	}, nil
}

// FromSlice creates a Float64 array that copies data.
func FromSlice(data []float64, shape Shape) (*Array, error) {
	return FromSliceAs(data, shape, Float64)
}

// FromSliceAs creates an array of the given dtype that copies data.
func FromSliceAs(data []float64, shape Shape, dtype DataType) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, shape.NumElements())
	}
	a := &Array{shape: shape.Clone(), dtype: dtype, data: make([]float64, len(data))}
	for i, v := range data {
		a.data[i] = dtype.convert(v)
	}
	return a, nil
}

// Scalar creates a zero-dimensional Float64 array.
func Scalar(v float64) *Array {
	return &Array{shape: Shape{}, dtype: Float64, data: []float64{v}}
}

// Full creates an array filled with value.
func Full(shape Shape, dtype DataType, value float64) (*Array, error) {
	a, err := NewArray(shape, dtype)
	if err != nil {
		return nil, err
	}
	v := dtype.convert(value)
	for i := range a.data {
		a.data[i] = v
	}
	return a, nil
}

// Shape returns a copy of the array's shape.
func (a *Array) Shape() Shape {
	return a.shape.Clone()
}

// DType returns the array's data type.
func (a *Array) DType() DataType {
	return a.dtype
}

// NumElements returns the total number of elements.
func (a *Array) NumElements() int {
	return len(a.data)
}

// Data returns the underlying values. Callers must not retain the slice
// across writes to the array.
func (a *Array) Data() []float64 {
	return a.data
}

// At returns the element at the given multi-dimensional index.
func (a *Array) At(index ...int) float64 {
	if len(index) != len(a.shape) {
		panic(fmt.Sprintf("index rank %d does not match array rank %d", len(index), len(a.shape)))
	}
	strides := a.shape.ComputeStrides()
	offset := 0
	for i, idx := range index {
		offset += idx * strides[i]
	}
	return a.data[offset]
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	data := make([]float64, len(a.data))
	copy(data, a.data)
	return &Array{shape: a.shape.Clone(), dtype: a.dtype, data: data}
}

// Cast returns a copy of the array converted to dtype.
func (a *Array) Cast(dtype DataType) *Array {
	out := &Array{shape: a.shape.Clone(), dtype: dtype, data: make([]float64, len(a.data))}
	for i, v := range a.data {
		out.data[i] = dtype.convert(v)
	}
	return out
}

// Reshape returns a view-free copy with a new shape. One dimension may be -1
// and is inferred from the element count.
func (a *Array) Reshape(shape Shape) (*Array, error) {
	resolved := shape.Clone()
	infer := -1
	known := 1
	for i, d := range resolved {
		if d < 0 {
			if infer >= 0 {
				return nil, fmt.Errorf("reshape: more than one inferred dimension in %v", shape)
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(a.data)%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension of %v for %d elements", shape, len(a.data))
		}
		resolved[infer] = len(a.data) / known
	}
	if resolved.NumElements() != len(a.data) {
		return nil, fmt.Errorf("reshape: shape %v incompatible with %d elements", shape, len(a.data))
	}
	out := a.Clone()
	out.shape = resolved
	return out, nil
}

// Equal reports whether two arrays share shape and values. DataType is ignored.
func (a *Array) Equal(other *Array) bool {
	if a == nil || other == nil {
		return a == other
	}
	if !a.shape.Equal(other.shape) {
		return false
	}
	for i := range a.data {
		if a.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// String renders shape, dtype and values.
func (a *Array) String() string {
	return fmt.Sprintf("Array(shape=%v, dtype=%s, data=%v)", a.shape, a.dtype, a.data)
}

// Bytes encodes the values little-endian in the array's DataType.
func (a *Array) Bytes() []byte {
	size := a.dtype.Size()
	buf := make([]byte, len(a.data)*size)
	for i, v := range a.data {
		b := buf[i*size : (i+1)*size]
		switch a.dtype {
		case Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case Float64:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		case Int32:
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case Int64:
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
		case Uint8, Bool:
			b[0] = uint8(v)
		}
	}
	return buf
}

// FromBytes decodes data produced by Bytes.
func FromBytes(data []byte, shape Shape, dtype DataType) (*Array, error) {
	size := dtype.Size()
	if len(data) != shape.NumElements()*size {
		return nil, fmt.Errorf("byte length %d does not match shape %v of %s", len(data), shape, dtype)
	}
	a, err := NewArray(shape, dtype)
	if err != nil {
		return nil, err
	}
	for i := range a.data {
		b := data[i*size : (i+1)*size]
		switch dtype {
		case Float32:
			a.data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case Float64:
			a.data[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		case Int32:
			a.data[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case Int64:
			a.data[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		case Uint8, Bool:
			a.data[i] = float64(b[0])
		}
	}
	return a, nil
}
