package backend

import (
	"fmt"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// OpKind identifies a derived-value operation.
type OpKind int

// Supported operations.
const (
	Identity OpKind = iota
	Add
	Sub
	Mul
	Scale
	AddScalar
	MatMul
	ReLU
	Sigmoid
	Tanh
	Transpose
	Reshape
	OneHot
	ReduceMax
	ReduceSum
	ReduceMean
	Clip
	Square
)

var opNames = [...]string{
	Identity:   "identity",
	Add:        "add",
	Sub:        "sub",
	Mul:        "mul",
	Scale:      "scale",
	AddScalar:  "add_scalar",
	MatMul:     "matmul",
	ReLU:       "relu",
	Sigmoid:    "sigmoid",
	Tanh:       "tanh",
	Transpose:  "transpose",
	Reshape:    "reshape",
	OneHot:     "one_hot",
	ReduceMax:  "reduce_max",
	ReduceSum:  "reduce_sum",
	ReduceMean: "reduce_mean",
	Clip:       "clip",
	Square:     "square",
}

func (k OpKind) String() string {
	if k < 0 || int(k) >= len(opNames) {
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
	return opNames[k]
}

// Arity returns the number of inputs the operation takes.
func (k OpKind) Arity() int {
	switch k {
	case Add, Sub, Mul, MatMul:
		return 2
	default:
		return 1
	}
}

// Attrs carries the static parameters of an operation. Only the fields
// relevant to the OpKind are read.
type Attrs struct {
	Scalar  float64         // Scale, AddScalar
	Min     float64         // Clip
	Max     float64         // Clip
	Perm    []int           // Transpose
	Shape   tensor.Shape    // Reshape, -1 is inferred
	Depth   int             // OneHot
	DType   tensor.DataType // OneHot output
	Axis    int             // ReduceMax, ReduceSum
	KeepDim bool            // ReduceMax, ReduceSum
}

// Eval computes op on concrete arrays with the CPU kernels.
func Eval(op OpKind, attrs Attrs, args ...*tensor.Array) (*tensor.Array, error) {
	if len(args) != op.Arity() {
		return nil, fmt.Errorf("%s: expected %d inputs, got %d", op, op.Arity(), len(args))
	}
	x := args[0]
	switch op {
	case Identity:
		return x.Clone(), nil
	case Add:
		return tensor.Binary(x, args[1], tensor.AddFunc)
	case Sub:
		return tensor.Binary(x, args[1], tensor.SubFunc)
	case Mul:
		return tensor.Binary(x, args[1], tensor.MulFunc)
	case Scale:
		s := attrs.Scalar
		return tensor.Map(x, func(v float64) float64 { return v * s }), nil
	case AddScalar:
		s := attrs.Scalar
		return tensor.Map(x, func(v float64) float64 { return v + s }), nil
	case MatMul:
		return tensor.MatMul(x, args[1])
	case ReLU:
		return tensor.ReLU(x), nil
	case Sigmoid:
		return tensor.Sigmoid(x), nil
	case Tanh:
		return tensor.Tanh(x), nil
	case Transpose:
		return tensor.Transpose(x, attrs.Perm)
	case Reshape:
		return x.Reshape(attrs.Shape)
	case OneHot:
		return tensor.OneHot(x, attrs.Depth, attrs.DType)
	case ReduceMax:
		return tensor.ReduceMax(x, attrs.Axis, attrs.KeepDim)
	case ReduceSum:
		return tensor.ReduceSum(x, attrs.Axis, attrs.KeepDim)
	case ReduceMean:
		return tensor.Mean(x), nil
	case Clip:
		return tensor.Clip(x, attrs.Min, attrs.Max), nil
	case Square:
		return tensor.Map(x, func(v float64) float64 { return v * v }), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOpKind, op)
	}
}
