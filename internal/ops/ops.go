// Package ops builds derived graph values with static shape inference.
//
// Every builder checks its inputs' declared shapes before asking the
// backend for a node, so shape errors surface at construction time wrapped
// in graph.ErrInvalidArgument.
package ops

import (
	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/tensor"
)

func contextOf(inputs ...graph.Value) (*graph.Context, error) {
	var ctx *graph.Context
	for i, in := range inputs {
		if graph.IsNil(in) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "input %d is nil", i)
		}
		switch {
		case ctx == nil:
			ctx = in.Context()
		case in.Context() != ctx:
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "input %d belongs to another context", i)
		}
	}
	return ctx, nil
}

func apply(op backend.OpKind, attrs backend.Attrs, shape tensor.PartialShape, dtype tensor.DataType, inputs ...graph.Value) (*graph.Tensor, error) {
	ctx, err := contextOf(inputs...)
	if err != nil {
		return nil, errors.WithMessage(err, op.String())
	}
	handles := make([]backend.Handle, len(inputs))
	for i, in := range inputs {
		handles[i] = in.Unwrap()
	}
	h, err := ctx.Backend().Apply(op, attrs, handles...)
	if err != nil {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: %v", op, err)
	}
	return graph.NewTensor(ctx, h, shape, dtype, ""), nil
}

func elementwise(op backend.OpKind, a, b graph.Value) (*graph.Tensor, error) {
	if graph.IsNil(a) || graph.IsNil(b) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: nil input", op)
	}
	shape, err := tensor.BroadcastPartial(a.Shape(), b.Shape())
	if err != nil {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: %v", op, err)
	}
	return apply(op, backend.Attrs{}, shape, a.DType(), a, b)
}

func unary(op backend.OpKind, attrs backend.Attrs, x graph.Value) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: nil input", op)
	}
	return apply(op, attrs, x.Shape(), x.DType(), x)
}

// Add returns a + b with broadcasting.
func Add(a, b graph.Value) (*graph.Tensor, error) {
	return elementwise(backend.Add, a, b)
}

// Sub returns a - b with broadcasting.
func Sub(a, b graph.Value) (*graph.Tensor, error) {
	return elementwise(backend.Sub, a, b)
}

// Mul returns a * b element-wise with broadcasting.
func Mul(a, b graph.Value) (*graph.Tensor, error) {
	return elementwise(backend.Mul, a, b)
}

// Scale returns x * s.
func Scale(x graph.Value, s float64) (*graph.Tensor, error) {
	return unary(backend.Scale, backend.Attrs{Scalar: s}, x)
}

// AddScalar returns x + s.
func AddScalar(x graph.Value, s float64) (*graph.Tensor, error) {
	return unary(backend.AddScalar, backend.Attrs{Scalar: s}, x)
}

// Identity returns a tensor with the value of x.
func Identity(x graph.Value) (*graph.Tensor, error) {
	return unary(backend.Identity, backend.Attrs{}, x)
}

// ReLU returns max(0, x).
func ReLU(x graph.Value) (*graph.Tensor, error) {
	return unary(backend.ReLU, backend.Attrs{}, x)
}

// Sigmoid returns the logistic function of x.
func Sigmoid(x graph.Value) (*graph.Tensor, error) {
	return unary(backend.Sigmoid, backend.Attrs{}, x)
}

// Tanh returns tanh(x).
func Tanh(x graph.Value) (*graph.Tensor, error) {
	return unary(backend.Tanh, backend.Attrs{}, x)
}

// Square returns x * x.
func Square(x graph.Value) (*graph.Tensor, error) {
	return unary(backend.Square, backend.Attrs{}, x)
}

// Clip bounds x to [lo, hi].
func Clip(x graph.Value, lo, hi float64) (*graph.Tensor, error) {
	if lo > hi {
		return nil, errors.Wrapf(graph.ErrInvalidValue, "clip: min %v is greater than max %v", lo, hi)
	}
	return unary(backend.Clip, backend.Attrs{Min: lo, Max: hi}, x)
}

// MatMul multiplies two matrices.
func MatMul(a, b graph.Value) (*graph.Tensor, error) {
	if graph.IsNil(a) || graph.IsNil(b) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "matmul: nil input")
	}
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "matmul: expected 2D inputs, got %s and %s", as, bs)
	}
	if as[1] != tensor.Unknown && bs[0] != tensor.Unknown && as[1] != bs[0] {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "matmul: inner dimensions differ: %s @ %s", as, bs)
	}
	return apply(backend.MatMul, backend.Attrs{}, tensor.PartialShape{as[0], bs[1]}, a.DType(), a, b)
}

// Transpose permutes dimensions; an empty perm reverses them.
func Transpose(x graph.Value, perm ...int) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "transpose: nil input")
	}
	in := x.Shape()
	if len(perm) == 0 {
		perm = make([]int, len(in))
		for i := range perm {
			perm[i] = len(in) - 1 - i
		}
	}
	if len(perm) != len(in) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "transpose: permutation %v does not match rank %d", perm, len(in))
	}
	seen := make([]bool, len(in))
	out := make(tensor.PartialShape, len(in))
	for i, p := range perm {
		if p < 0 || p >= len(in) || seen[p] {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "transpose: invalid permutation %v", perm)
		}
		seen[p] = true
		out[i] = in[p]
	}
	return apply(backend.Transpose, backend.Attrs{Perm: append([]int(nil), perm...)}, out, x.DType(), x)
}

// Reshape changes the shape of x. One dimension of shape may be -1; it is
// resolved statically when the input shape is fully known.
func Reshape(x graph.Value, shape ...int) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "reshape: nil input")
	}
	out := tensor.NewPartialShape(shape...)
	infer, known := -1, 1
	for i, d := range out {
		if d == tensor.Unknown {
			if infer >= 0 {
				return nil, errors.Wrapf(graph.ErrInvalidArgument, "reshape: more than one inferred dimension in %v", shape)
			}
			infer = i
			continue
		}
		known *= d
	}
	if concrete, ok := x.Shape().Concrete(); ok {
		n := concrete.NumElements()
		switch {
		case infer >= 0 && (known == 0 || n%known != 0):
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "reshape: cannot reshape %s into %s", x.Shape(), out)
		case infer >= 0:
			out[infer] = n / known
		case known != n:
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "reshape: cannot reshape %s into %s", x.Shape(), out)
		}
	}
	return apply(backend.Reshape, backend.Attrs{Shape: tensor.Shape(shape).Clone()}, out, x.DType(), x)
}

// OneHot encodes a 1-D tensor of class indices as (N, depth).
func OneHot(x graph.Value, depth int, dtype tensor.DataType) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "one_hot: nil input")
	}
	if x.NDim() != 1 {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "one_hot: input must be 1D, got %s", x.Shape())
	}
	if depth <= 0 {
		return nil, errors.Wrapf(graph.ErrInvalidValue, "one_hot: depth must be positive, got %d", depth)
	}
	shape := tensor.PartialShape{x.Shape()[0], depth}
	return apply(backend.OneHot, backend.Attrs{Depth: depth, DType: dtype}, shape, dtype, x)
}

func reduce(op backend.OpKind, x graph.Value, axis int, keepDim bool) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: nil input", op)
	}
	in := x.Shape()
	if axis < 0 {
		axis += len(in)
	}
	if axis < 0 || axis >= len(in) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s: axis %d out of range for %s", op, axis, in)
	}
	out := make(tensor.PartialShape, 0, len(in))
	for i, d := range in {
		switch {
		case i != axis:
			out = append(out, d)
		case keepDim:
			out = append(out, 1)
		}
	}
	return apply(op, backend.Attrs{Axis: axis, KeepDim: keepDim}, out, x.DType(), x)
}

// ReduceMax returns the maximum of x along axis.
func ReduceMax(x graph.Value, axis int, keepDim bool) (*graph.Tensor, error) {
	return reduce(backend.ReduceMax, x, axis, keepDim)
}

// ReduceSum returns the sum of x along axis.
func ReduceSum(x graph.Value, axis int, keepDim bool) (*graph.Tensor, error) {
	return reduce(backend.ReduceSum, x, axis, keepDim)
}

// ReduceMean returns the mean of every element of x as a scalar.
func ReduceMean(x graph.Value) (*graph.Tensor, error) {
	if graph.IsNil(x) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "reduce_mean: nil input")
	}
	return apply(backend.ReduceMean, backend.Attrs{}, tensor.PartialShape{}, x.DType(), x)
}

// Constant embeds value in the graph.
func Constant(ctx *graph.Context, value *tensor.Array, name string) (*graph.Tensor, error) {
	if value == nil {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "constant %q: nil value", name)
	}
	h, err := ctx.Backend().Constant(value)
	if err != nil {
		return nil, errors.Wrapf(err, "constant %q", name)
	}
	return graph.NewTensor(ctx, h, value.Shape().Partial(), value.DType(), name), nil
}
