package model

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/layer"
)

// Sequential is a model that chains layers together.
//
// Each layer's output becomes the next layer's input. Once the model has
// an input, AddLayer builds the new layer immediately, so shape errors
// surface where the layer is added:
//
//	seq := model.NewSequential(ctx, "q_network")
//	seq.SetInput(state)
//	seq.AddLayer(layer.NewDense("fc1", 16))
//	seq.AddLayer(layer.NewReLU("relu1"))
//	seq.AddLayer(layer.NewDense("fc2", 2))
//
//	q := seq.Output()  // shape: [None, 2]
type Sequential struct {
	ctx   *graph.Context
	name  string
	scope string

	inputConfig *IOConfig
	input       graph.Value

	layers  []layer.Layer
	outputs []*graph.Tensor
}

// NewSequential creates an empty Sequential and registers it when named.
func NewSequential(ctx *graph.Context, name string) *Sequential {
	s := newSequential(ctx, name, ctx.Scope())
	if name != "" {
		ctx.RegisterModel(name, s)
	}
	return s
}

func newSequential(ctx *graph.Context, name, scope string) *Sequential {
	return &Sequential{ctx: ctx, name: name, scope: scope}
}

// Name returns the model name.
func (s *Sequential) Name() string {
	return s.name
}

// SetInput sets the model input and builds the layers added so far.
func (s *Sequential) SetInput(input graph.Value) error {
	if input == nil {
		return errors.Wrapf(graph.ErrInvalidArgument, "sequential %q: nil input", s.name)
	}
	outputs := make([]*graph.Tensor, 0, len(s.layers))
	err := s.ctx.Transaction(func() error {
		var current graph.Value = input
		for _, l := range s.layers {
			out, err := l.Build(s.ctx, current)
			if err != nil {
				return errors.WithMessagef(err, "sequential %q: layer %q", s.name, l.Name())
			}
			outputs = append(outputs, out)
			current = out
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.input, s.outputs = input, outputs
	return nil
}

// AddLayer appends l. When the model has an input, l is built on the
// current output; on failure the model is left unchanged.
func (s *Sequential) AddLayer(l layer.Layer) error {
	if l == nil {
		return errors.Wrapf(graph.ErrInvalidArgument, "sequential %q: nil layer", s.name)
	}
	if s.input != nil {
		var out *graph.Tensor
		err := s.ctx.Transaction(func() error {
			var err error
			out, err = l.Build(s.ctx, s.Output())
			return err
		})
		if err != nil {
			return errors.WithMessagef(err, "sequential %q: layer %q", s.name, l.Name())
		}
		s.outputs = append(s.outputs, out)
		klog.V(4).InfoS("Built layer", "model", s.name, "layer", l.Name(), "shape", out.Shape())
	}
	s.layers = append(s.layers, l)
	return nil
}

// Layers returns the layers in order.
func (s *Sequential) Layers() []layer.Layer {
	return append([]layer.Layer(nil), s.layers...)
}

// Len returns the number of layers.
func (s *Sequential) Len() int {
	return len(s.layers)
}

// Input returns the model input, or nil when unset.
func (s *Sequential) Input() graph.Value {
	return s.input
}

// Output returns the output of the last layer, or the input when the
// model has no layers.
func (s *Sequential) Output() graph.Value {
	if len(s.outputs) == 0 {
		return s.input
	}
	return s.outputs[len(s.outputs)-1]
}

// Parameters returns the variables of every layer, in layer order.
func (s *Sequential) Parameters() []*graph.Variable {
	var params []*graph.Variable
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Serialize returns the configuration of the model.
func (s *Sequential) Serialize() Config {
	args := Args{Name: s.name, InputConfig: s.inputConfig.Clone()}
	if args.InputConfig == nil && s.input != nil {
		args.InputConfig = ioConfigOf(s.input, s.scope)
	}
	for _, l := range s.layers {
		args.LayerConfigs = append(args.LayerConfigs, l.Config())
	}
	return Config{Typename: TypeSequential, Scope: s.scope, Args: args}
}

func makeSequential(ctx *graph.Context, cfg Config) (*Sequential, error) {
	s := newSequential(ctx, cfg.Args.Name, cfg.Scope)
	if cfg.Args.InputConfig != nil {
		input, err := resolveIO(ctx, cfg.Args.InputConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "sequential %q: input", s.name)
		}
		if err := s.SetInput(input); err != nil {
			return nil, err
		}
		s.inputConfig = cfg.Args.InputConfig.Clone()
	}
	for i, lc := range cfg.Args.LayerConfigs {
		l, err := layer.Make(lc)
		if err != nil {
			return nil, errors.WithMessagef(err, "sequential %q: layer %d", s.name, i)
		}
		if err := s.AddLayer(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}
