package layer

import (
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/ops"
)

// activation is shared by the element-wise layers without parameters.
type activation struct {
	typename string
	name     string
	apply    func(graph.Value) (*graph.Tensor, error)
}

// Name returns the layer name.
func (a *activation) Name() string {
	return a.name
}

// Build applies the activation element-wise. The output has the shape of
// input.
func (a *activation) Build(ctx *graph.Context, input graph.Value) (*graph.Tensor, error) {
	if err := checkInput(a.typename, input); err != nil {
		return nil, err
	}
	var out *graph.Tensor
	err := scoped(ctx, a.name, func() error {
		var err error
		out, err = a.apply(input)
		return err
	})
	return out, err
}

// Parameters returns nil; activations have no parameters.
func (a *activation) Parameters() []*graph.Variable {
	return nil
}

// Config returns the serialized form of the layer.
func (a *activation) Config() Config {
	return Config{Typename: a.typename, Args: baseArgs(a.name)}
}

// ReLU is a Rectified Linear Unit activation layer.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Example:
//
//	relu := layer.NewReLU("relu1")
//	out, err := relu.Build(ctx, hidden)  // negative values become 0
type ReLU struct {
	activation
}

// NewReLU creates a ReLU layer. An empty name defaults to "ReLU".
func NewReLU(name string) *ReLU {
	return &ReLU{activation{typename: "ReLU", name: nameOr(name, "ReLU"), apply: ops.ReLU}}
}

// Sigmoid is a sigmoid activation layer.
//
// Applies the element-wise function: σ(x) = 1 / (1 + exp(-x))
type Sigmoid struct {
	activation
}

// NewSigmoid creates a Sigmoid layer. An empty name defaults to "Sigmoid".
func NewSigmoid(name string) *Sigmoid {
	return &Sigmoid{activation{typename: "Sigmoid", name: nameOr(name, "Sigmoid"), apply: ops.Sigmoid}}
}

// Tanh is a hyperbolic tangent activation layer.
type Tanh struct {
	activation
}

// NewTanh creates a Tanh layer. An empty name defaults to "Tanh".
func NewTanh(name string) *Tanh {
	return &Tanh{activation{typename: "Tanh", name: nameOr(name, "Tanh"), apply: ops.Tanh}}
}
