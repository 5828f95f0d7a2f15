package layer

import (
	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/initializer"
	"github.com/luchador-ml/luchador/internal/ops"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Dense implements a fully connected layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input with shape [batch_size, in_features]
//   - W is the "weight" variable with shape [in_features, n_nodes]
//   - b is the "bias" variable with shape [n_nodes]
//   - y is the output with shape [batch_size, n_nodes]
//
// Weights default to Xavier initialization and biases to the constant 0.1.
// in_features is taken from the input on the first Build, so the batch
// dimension may be unknown but the feature dimension must not be.
//
// Example:
//
//	dense := layer.NewDense("fc1", 128)
//	out, err := dense.Build(ctx, input)  // shape: [None, 128]
type Dense struct {
	name     string
	nNodes   int
	withBias bool

	weightInit initializer.Initializer
	biasInit   initializer.Initializer

	weight *graph.Variable // [in_features, n_nodes]
	bias   *graph.Variable // [n_nodes]
}

// DenseOption configures a Dense layer.
type DenseOption func(*Dense)

// WithoutBias drops the bias term.
func WithoutBias() DenseOption {
	return func(d *Dense) { d.withBias = false }
}

// WithWeightInitializer overrides the weight initializer.
func WithWeightInitializer(init initializer.Initializer) DenseOption {
	return func(d *Dense) { d.weightInit = init }
}

// WithBiasInitializer overrides the bias initializer.
func WithBiasInitializer(init initializer.Initializer) DenseOption {
	return func(d *Dense) { d.biasInit = init }
}

// NewDense creates a Dense layer with nNodes outputs. An empty name
// defaults to "Dense".
func NewDense(name string, nNodes int, opts ...DenseOption) *Dense {
	d := &Dense{
		name:       nameOr(name, "Dense"),
		nNodes:     nNodes,
		withBias:   true,
		weightInit: initializer.Xavier{Uniform: true},
		biasInit:   initializer.Constant{Value: 0.1},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func makeDense(name string, args config.Args) (*Dense, error) {
	nNodes, err := args.RequireInt("n_nodes")
	if err != nil {
		return nil, err
	}
	if nNodes <= 0 {
		return nil, errors.Errorf("n_nodes must be positive, got %d", nNodes)
	}
	withBias, err := args.Bool("with_bias", true)
	if err != nil {
		return nil, err
	}
	var opts []DenseOption
	if !withBias {
		opts = append(opts, WithoutBias())
	}
	inits, err := args.Map("initializers")
	if err != nil {
		return nil, err
	}
	for key, opt := range map[string]func(initializer.Initializer) DenseOption{
		"weight": WithWeightInitializer,
		"bias":   WithBiasInitializer,
	} {
		if !inits.Has(key) {
			continue
		}
		m, err := inits.Map(key)
		if err != nil {
			return nil, err
		}
		init, err := initializer.FromArgs(m)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt(init))
	}
	return NewDense(name, nNodes, opts...), nil
}

// Name returns the layer name.
func (d *Dense) Name() string {
	return d.name
}

// Build computes x @ W + b.
//
// Variables are created on the first call, under the layer's scope, and
// reused by later calls, which must then agree on in_features.
func (d *Dense) Build(ctx *graph.Context, input graph.Value) (*graph.Tensor, error) {
	if err := checkInput("Dense", input); err != nil {
		return nil, err
	}
	if d.nNodes <= 0 {
		return nil, errors.Wrapf(graph.ErrInvalidValue, "dense %q: n_nodes must be positive, got %d", d.name, d.nNodes)
	}
	shape := input.Shape()
	if len(shape) != 2 || shape[1] == tensor.Unknown {
		return nil, errors.Wrapf(graph.ErrInvalidArgument,
			"dense %q: expected input of shape [batch, features] with known features, got %s", d.name, shape)
	}

	var out *graph.Tensor
	fresh := d.weight == nil
	err := scoped(ctx, d.name, func() error {
		if d.weight == nil {
			if err := d.instantiate(ctx, shape[1], input.DType()); err != nil {
				return err
			}
		} else if in := d.weight.Shape()[0]; in != shape[1] {
			return errors.Wrapf(graph.ErrInvalidArgument, "dense %q: built for %d features, got %d", d.name, in, shape[1])
		}

		y, err := ops.MatMul(input, d.weight)
		if err != nil {
			return err
		}
		if d.bias != nil {
			if y, err = ops.Add(y, d.bias); err != nil {
				return err
			}
		}
		out = y
		return nil
	})
	if err != nil && fresh {
		// Variables from a failed first build are dropped so a retry makes new ones.
		d.weight, d.bias = nil, nil
	}
	return out, err
}

func (d *Dense) instantiate(ctx *graph.Context, inFeatures int, dtype tensor.DataType) error {
	weight, err := graph.NewVariable(ctx, "weight", tensor.Shape{inFeatures, d.nNodes}, dtype, d.weightInit, true)
	if err != nil {
		return err
	}
	var bias *graph.Variable
	if d.withBias {
		bias, err = graph.NewVariable(ctx, "bias", tensor.Shape{d.nNodes}, dtype, d.biasInit, true)
		if err != nil {
			return err
		}
	}
	d.weight, d.bias = weight, bias
	return nil
}

// Parameters returns the weight and, when present, the bias.
func (d *Dense) Parameters() []*graph.Variable {
	switch {
	case d.weight == nil:
		return nil
	case d.bias == nil:
		return []*graph.Variable{d.weight}
	default:
		return []*graph.Variable{d.weight, d.bias}
	}
}

// Config returns the serialized form of the layer.
func (d *Dense) Config() Config {
	args := baseArgs(d.name)
	args["n_nodes"] = d.nNodes
	args["with_bias"] = d.withBias
	inits := config.Args{"weight": initArgs(d.weightInit)}
	if d.withBias {
		inits["bias"] = initArgs(d.biasInit)
	}
	args["initializers"] = inits
	return Config{Typename: "Dense", Args: args}
}

func initArgs(init initializer.Initializer) config.Args {
	cfg := init.Config()
	return config.Args{"typename": cfg.Typename, "args": cfg.Args}
}
