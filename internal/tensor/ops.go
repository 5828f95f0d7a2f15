package tensor

import (
	"fmt"
	"math"

	"github.com/luchador-ml/luchador/internal/parallel"
)

// BinaryFunc combines two elements.
type BinaryFunc func(a, b float64) float64

// Elementwise binary functions.
var (
	AddFunc BinaryFunc = func(a, b float64) float64 { return a + b }
	SubFunc BinaryFunc = func(a, b float64) float64 { return a - b }
	MulFunc BinaryFunc = func(a, b float64) float64 { return a * b }
	DivFunc BinaryFunc = func(a, b float64) float64 { return a / b }
)

// Binary applies fn element-wise with NumPy broadcasting. The result takes
// the DataType of a.
func Binary(a, b *Array, fn BinaryFunc) (*Array, error) {
	if a.shape.Equal(b.shape) {
		out := &Array{shape: a.shape.Clone(), dtype: a.dtype, data: make([]float64, len(a.data))}
		for i := range a.data {
			out.data[i] = a.dtype.convert(fn(a.data[i], b.data[i]))
		}
		return out, nil
	}

	outShape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	out, err := NewArray(outShape, a.dtype)
	if err != nil {
		return nil, err
	}
	aStrides := broadcastStrides(a.shape, outShape)
	bStrides := broadcastStrides(b.shape, outShape)
	index := make([]int, len(outShape))
	for i := range out.data {
		aOff, bOff := 0, 0
		for d, idx := range index {
			aOff += idx * aStrides[d]
			bOff += idx * bStrides[d]
		}
		out.data[i] = a.dtype.convert(fn(a.data[aOff], b.data[bOff]))
		incrementIndex(index, outShape)
	}
	return out, nil
}

// broadcastStrides returns strides of src laid over out; broadcast
// dimensions get stride 0.
func broadcastStrides(src, out Shape) []int {
	strides := make([]int, len(out))
	srcStrides := src.ComputeStrides()
	offset := len(out) - len(src)
	for i := range src {
		if src[i] != 1 {
			strides[i+offset] = srcStrides[i]
		}
	}
	return strides
}

func incrementIndex(index []int, shape Shape) {
	for d := len(index) - 1; d >= 0; d-- {
		index[d]++
		if index[d] < shape[d] {
			return
		}
		index[d] = 0
	}
}

// Map applies fn to every element.
func Map(a *Array, fn func(float64) float64) *Array {
	out := &Array{shape: a.shape.Clone(), dtype: a.dtype, data: make([]float64, len(a.data))}
	for i, v := range a.data {
		out.data[i] = a.dtype.convert(fn(v))
	}
	return out
}

// ReLU returns max(0, x) element-wise.
func ReLU(a *Array) *Array {
	return Map(a, func(v float64) float64 { return math.Max(0, v) })
}

// Sigmoid returns 1 / (1 + exp(-x)) element-wise.
func Sigmoid(a *Array) *Array {
	return Map(a, func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// Tanh returns tanh(x) element-wise.
func Tanh(a *Array) *Array {
	return Map(a, math.Tanh)
}

// Clip bounds every element to [lo, hi].
func Clip(a *Array, lo, hi float64) *Array {
	return Map(a, func(v float64) float64 { return math.Min(hi, math.Max(lo, v)) })
}

// MatMul performs 2-D matrix multiplication: (M, K) @ (K, N) -> (M, N).
func MatMul(a, b *Array) (*Array, error) {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, fmt.Errorf("matmul: only 2D arrays supported, got %dD and %dD", len(a.shape), len(b.shape))
	}
	m, k := a.shape[0], a.shape[1]
	kAlt, n := b.shape[0], b.shape[1]
	if k != kAlt {
		return nil, fmt.Errorf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n)
	}
	out, err := NewArray(Shape{m, n}, a.dtype)
	if err != nil {
		return nil, err
	}
	parallel.Rows(m, n*k, func(i int) {
		for j := 0; j < n; j++ {
			sum := 0.0
			for kIdx := 0; kIdx < k; kIdx++ {
				sum += a.data[i*k+kIdx] * b.data[kIdx*n+j]
			}
			out.data[i*n+j] = a.dtype.convert(sum)
		}
	}, parallel.Kernels)
	return out, nil
}

// Transpose permutes dimensions. An empty perm reverses them.
func Transpose(a *Array, perm []int) (*Array, error) {
	ndim := len(a.shape)
	if len(perm) == 0 {
		perm = make([]int, ndim)
		for i := range perm {
			perm[i] = ndim - 1 - i
		}
	}
	if len(perm) != ndim {
		return nil, fmt.Errorf("transpose: permutation %v does not match rank %d", perm, ndim)
	}
	seen := make([]bool, ndim)
	outShape := make(Shape, ndim)
	for i, p := range perm {
		if p < 0 || p >= ndim || seen[p] {
			return nil, fmt.Errorf("transpose: invalid permutation %v", perm)
		}
		seen[p] = true
		outShape[i] = a.shape[p]
	}

	out, err := NewArray(outShape, a.dtype)
	if err != nil {
		return nil, err
	}
	srcStrides := a.shape.ComputeStrides()
	index := make([]int, ndim)
	for i := range out.data {
		off := 0
		for d, idx := range index {
			off += idx * srcStrides[perm[d]]
		}
		out.data[i] = a.data[off]
		incrementIndex(index, outShape)
	}
	return out, nil
}

// OneHot encodes a 1-D array of class indices as a (N, depth) array.
func OneHot(a *Array, depth int, dtype DataType) (*Array, error) {
	if len(a.shape) != 1 {
		return nil, fmt.Errorf("one_hot: input must be 1D, got shape %v", a.shape)
	}
	out, err := NewArray(Shape{a.shape[0], depth}, dtype)
	if err != nil {
		return nil, err
	}
	for i, v := range a.data {
		idx := int(v)
		if idx < 0 || idx >= depth {
			return nil, fmt.Errorf("one_hot: index %d out of range [0, %d)", idx, depth)
		}
		out.data[i*depth+idx] = 1
	}
	return out, nil
}

// ReduceAxis folds dimension axis with fn starting from init.
func ReduceAxis(a *Array, axis int, keepDim bool, init float64, fn BinaryFunc) (*Array, error) {
	ndim := len(a.shape)
	if axis < 0 {
		axis += ndim
	}
	if axis < 0 || axis >= ndim {
		return nil, fmt.Errorf("reduce: axis %d out of range for rank %d", axis, ndim)
	}

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= a.shape[i]
	}
	inner := 1
	for i := axis + 1; i < ndim; i++ {
		inner *= a.shape[i]
	}
	dimSize := a.shape[axis]

	outShape := make(Shape, 0, ndim)
	for i, d := range a.shape {
		switch {
		case i != axis:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}
	out, err := NewArray(outShape, a.dtype)
	if err != nil {
		return nil, err
	}
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			acc := init
			for d := 0; d < dimSize; d++ {
				acc = fn(acc, a.data[(o*dimSize+d)*inner+in])
			}
			out.data[o*inner+in] = a.dtype.convert(acc)
		}
	}
	return out, nil
}

// ReduceMax returns the maximum along axis.
func ReduceMax(a *Array, axis int, keepDim bool) (*Array, error) {
	return ReduceAxis(a, axis, keepDim, math.Inf(-1), math.Max)
}

// ReduceSum returns the sum along axis.
func ReduceSum(a *Array, axis int, keepDim bool) (*Array, error) {
	return ReduceAxis(a, axis, keepDim, 0, AddFunc)
}

// Mean returns the mean of all elements as a scalar array.
func Mean(a *Array) *Array {
	sum := 0.0
	for _, v := range a.data {
		sum += v
	}
	out := Scalar(0)
	out.dtype = a.dtype
	if len(a.data) > 0 {
		out.data[0] = a.dtype.convert(sum / float64(len(a.data)))
	}
	return out
}
