// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the concrete numeric arrays that are fed to and
// returned from sessions.
//
// Example:
//
//	batch, err := tensor.FromSliceAs([]float64{1, 2, 3, 4}, tensor.Shape{1, 4}, tensor.Float32)
//	state := tensor.NewPartialShape(tensor.Unknown, 4)  // (None, 4)
//	state.Compatible(batch.Shape())                     // true
package tensor

import (
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Array is a dense, row-major numeric array.
type Array = tensor.Array

// Shape is the concrete shape of an Array.
type Shape = tensor.Shape

// PartialShape is a declared shape whose dimensions may be Unknown.
type PartialShape = tensor.PartialShape

// DataType is the element type of arrays and graph values.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Unknown marks a dimension of a PartialShape that is only known at run
// time, such as the batch size.
const Unknown = tensor.Unknown

// NewArray allocates a zero-filled array.
func NewArray(shape Shape, dtype DataType) (*Array, error) {
	return tensor.NewArray(shape, dtype)
}

// FromSlice creates a Float64 array that copies data.
func FromSlice(data []float64, shape Shape) (*Array, error) {
	return tensor.FromSlice(data, shape)
}

// FromSliceAs creates an array of the given dtype that copies data.
func FromSliceAs(data []float64, shape Shape, dtype DataType) (*Array, error) {
	return tensor.FromSliceAs(data, shape, dtype)
}

// Full creates an array filled with value.
func Full(shape Shape, dtype DataType, value float64) (*Array, error) {
	return tensor.Full(shape, dtype, value)
}

// Scalar creates a zero-dimensional Float64 array.
func Scalar(v float64) *Array {
	return tensor.Scalar(v)
}

// NewPartialShape creates a declared shape; negative dimensions are Unknown.
func NewPartialShape(dims ...int) PartialShape {
	return tensor.NewPartialShape(dims...)
}

// ParseDataType converts a name such as "float32" into a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
