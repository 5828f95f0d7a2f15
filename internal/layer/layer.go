// Package layer implements the building blocks models are composed of.
//
// A Layer turns one graph value into another. Layers with parameters create
// their variables on the first Build, inside a variable scope named after
// the layer, so two Dense layers in the same model never collide:
//
//	dense := layer.NewDense("fc1", 128)
//	out, err := dense.Build(ctx, input)  // variables fc1/weight, fc1/bias
//
// Every layer can describe itself as a Config and be rebuilt from one with
// Make, which is how model documents are turned into layers.
package layer

import (
	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
)

// Layer is the interface every layer implements.
type Layer interface {
	// Name returns the layer name, which is also its variable scope.
	Name() string

	// Build connects the layer to input and returns its output.
	//
	// Layers with parameters create them on the first call and reuse them
	// afterwards.
	Build(ctx *graph.Context, input graph.Value) (*graph.Tensor, error)

	// Parameters returns the variables created by Build, or nil for layers
	// without parameters or that have not been built.
	Parameters() []*graph.Variable

	// Config returns the serialized form of the layer.
	Config() Config
}

// Config is the serialized form of a Layer.
type Config struct {
	Typename string      `yaml:"typename" json:"typename"`
	Args     config.Args `yaml:"args,omitempty" json:"args,omitempty"`
}

// Make builds a Layer from its Config.
func Make(cfg Config) (Layer, error) {
	name, err := cfg.Args.String("name", "")
	if err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "layer %s: %v", cfg.Typename, err)
	}
	var l Layer
	switch cfg.Typename {
	case "Dense":
		l, err = makeDense(name, cfg.Args)
	case "ReLU":
		l = NewReLU(name)
	case "Sigmoid":
		l = NewSigmoid(name)
	case "Tanh":
		l = NewTanh(name)
	case "Flatten":
		l = NewFlatten(name)
	case "NHWC2NCHW":
		l = NewNHWC2NCHW(name)
	case "NCHW2NHWC":
		l = NewNCHW2NHWC(name)
	case "":
		return nil, errors.Wrap(graph.ErrConfiguration, "layer typename is missing")
	default:
		return nil, errors.Wrapf(graph.ErrConfiguration, "unknown layer %q", cfg.Typename)
	}
	if err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "layer %s: %v", cfg.Typename, err)
	}
	return l, nil
}

// scoped runs build inside the variable scope of the layer, inheriting the
// reuse mode of the enclosing scope.
func scoped(ctx *graph.Context, name string, build func() error) error {
	return ctx.VariableScope(name, ctx.ReuseMode(), build)
}

func checkInput(typename string, input graph.Value) error {
	if graph.IsNil(input) {
		return errors.Wrapf(graph.ErrInvalidArgument, "%s: nil input", typename)
	}
	return nil
}

// nameOr returns name, or def when name is empty.
func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

func baseArgs(name string) config.Args {
	return config.Args{"name": name}
}
