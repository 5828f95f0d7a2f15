package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape represents the concrete dimensions of an array.
type Shape []int

// NumElements returns the total number of elements in the array.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions >= 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Partial lifts a concrete shape into a PartialShape with every dimension known.
func (s Shape) Partial() PartialShape {
	p := make(PartialShape, len(s))
	copy(p, s)
	return p
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Dimensions are compared right to left; they are compatible when equal or
// when one of them is 1. Missing dimensions are treated as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(5,)   + (3, 5) → (3, 5)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(a, b Shape) (Shape, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)

	for i := 0; i < maxLen; i++ {
		aDim, bDim := dimFromRight(a, i), dimFromRight(b, i)
		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
		case bDim == 1:
			result[maxLen-1-i] = aDim
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}
	return result, nil
}

func dimFromRight(s Shape, i int) int {
	idx := len(s) - 1 - i
	if idx < 0 {
		return 1
	}
	return s[idx]
}

// Unknown marks a dimension whose size is only known at run time, typically
// the batch dimension of an input.
const Unknown = -1

// PartialShape is the declared shape of a graph node. Dimensions may be Unknown.
type PartialShape []int

// NewPartialShape builds a PartialShape; negative values become Unknown.
func NewPartialShape(dims ...int) PartialShape {
	p := make(PartialShape, len(dims))
	for i, d := range dims {
		if d < 0 {
			d = Unknown
		}
		p[i] = d
	}
	return p
}

// Clone returns a copy of the shape.
func (p PartialShape) Clone() PartialShape {
	clone := make(PartialShape, len(p))
	copy(clone, p)
	return clone
}

// IsFullyDefined reports whether every dimension is known.
func (p PartialShape) IsFullyDefined() bool {
	for _, d := range p {
		if d == Unknown {
			return false
		}
	}
	return true
}

// Concrete returns the shape as a Shape if it is fully defined.
func (p PartialShape) Concrete() (Shape, bool) {
	if !p.IsFullyDefined() {
		return nil, false
	}
	s := make(Shape, len(p))
	copy(s, p)
	return s, true
}

// Compatible reports whether a concrete shape matches p; Unknown matches anything.
func (p PartialShape) Compatible(s Shape) bool {
	if len(p) != len(s) {
		return false
	}
	for i, d := range p {
		if d != Unknown && d != s[i] {
			return false
		}
	}
	return true
}

// Equal checks if two partial shapes are identical, Unknown included.
func (p PartialShape) Equal(other PartialShape) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the shape as a tuple, with None for unknown dimensions.
func (p PartialShape) String() string {
	parts := make([]string, len(p))
	for i, d := range p {
		if d == Unknown {
			parts[i] = "None"
		} else {
			parts[i] = strconv.Itoa(d)
		}
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// BroadcastPartial applies BroadcastShapes to partial shapes. An Unknown
// dimension paired with 1 or Unknown stays Unknown; paired with a known size
// it takes that size.
func BroadcastPartial(a, b PartialShape) (PartialShape, error) {
	maxLen := max(len(a), len(b))
	result := make(PartialShape, maxLen)
	for i := 0; i < maxLen; i++ {
		aDim, bDim := dimFromRight(Shape(a), i), dimFromRight(Shape(b), i)
		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
		case bDim == 1:
			result[maxLen-1-i] = aDim
		case aDim == Unknown:
			result[maxLen-1-i] = bDim
		case bDim == Unknown:
			result[maxLen-1-i] = aDim
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %s vs %s", a, b)
		}
	}
	return result, nil
}
