// Package model composes layers into networks.
//
// Three composites exist:
//   - Sequential: layers chained one after the other
//   - Graph: layers wired explicitly by node name
//   - Container: named sub-models, typically built from one document
//
// Every model can be serialized to a Config and rebuilt with MakeModel.
// Configs are plain structs with YAML tags, so a model document like
//
//	typename: Sequential
//	scope: pre_trans
//	args:
//	  name: q_network
//	  input_config:
//	    typename: Input
//	    name: state
//	    shape: [null, 4]
//	  layer_configs:
//	    - typename: Dense
//	      args: {name: fc1, n_nodes: 16}
//	    - typename: ReLU
//
// is loaded with LoadConfig and built with MakeModel.
package model

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/layer"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Model is the interface implemented by Sequential, Graph and Container.
type Model interface {
	// Name returns the model name; "" for anonymous models.
	Name() string

	// Input returns the value the model reads, or nil when unset.
	Input() graph.Value

	// Output returns the value the model produces, or nil when unbuilt.
	Output() graph.Value

	// Parameters returns every variable the model owns.
	Parameters() []*graph.Variable

	// Serialize returns a Config that MakeModel turns back into an
	// equivalent model.
	Serialize() Config
}

// Typenames of the composites.
const (
	TypeSequential = "Sequential"
	TypeGraph      = "Graph"
	TypeContainer  = "Container"
)

// Config is the serialized form of a Model.
type Config struct {
	Typename string `yaml:"typename" json:"typename"`
	Scope    string `yaml:"scope,omitempty" json:"scope,omitempty"`
	Args     Args   `yaml:"args" json:"args"`
}

// Args holds the constructor arguments of every composite. Each typename
// reads only its own fields.
type Args struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	InputConfig  *IOConfig `yaml:"input_config,omitempty" json:"input_config,omitempty"`
	OutputConfig *IOConfig `yaml:"output_config,omitempty" json:"output_config,omitempty"`

	// Sequential
	LayerConfigs []layer.Config `yaml:"layer_configs,omitempty" json:"layer_configs,omitempty"`

	// Graph
	NodeConfigs []NodeConfig `yaml:"node_configs,omitempty" json:"node_configs,omitempty"`
	Output      string       `yaml:"output,omitempty" json:"output,omitempty"`

	// Container
	ModelConfigs []Config `yaml:"model_configs,omitempty" json:"model_configs,omitempty"`
}

// NodeConfig is a layer of a Graph together with the name of the node it
// reads from. An empty Input reads the graph input.
type NodeConfig struct {
	Layer layer.Config `yaml:",inline" json:"layer"`
	Input string       `yaml:"input,omitempty" json:"input,omitempty"`
}

// IO typenames.
const (
	IOInput    = "Input"
	IOVariable = "Variable"
	IOModel    = "Model"
)

// IOConfig describes where a model reads from or writes to.
//
//   - Input creates a placeholder of Shape and DType named Name, or looks
//     an existing one up when Reuse is set.
//   - Variable looks up the variable Name.
//   - Model takes the Attr ("input" or "output", default "output") of the
//     registered model Name.
type IOConfig struct {
	Typename string `yaml:"typename" json:"typename"`
	Name     string `yaml:"name" json:"name"`
	Shape    Dims   `yaml:"shape,omitempty" json:"shape,omitempty"`
	DType    string `yaml:"dtype,omitempty" json:"dtype,omitempty"`
	Reuse    bool   `yaml:"reuse,omitempty" json:"reuse,omitempty"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
}

// Clone returns a deep copy of c, or nil for nil.
func (c *IOConfig) Clone() *IOConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Shape != nil {
		out.Shape = append(Dims{}, c.Shape...)
	}
	return &out
}

// Dims is a shape in a model document. Unknown dimensions are written as
// null and held as tensor.Unknown.
type Dims []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Dims) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return errors.Errorf("line %d: shape must be a sequence", value.Line)
	}
	dims := make(Dims, len(value.Content))
	for i, n := range value.Content {
		if n.ShortTag() == "!!null" {
			dims[i] = tensor.Unknown
			continue
		}
		if err := n.Decode(&dims[i]); err != nil {
			return errors.Wrapf(err, "shape[%d]", i)
		}
		if dims[i] < 0 {
			dims[i] = tensor.Unknown
		}
	}
	*d = dims
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Dims) MarshalYAML() (any, error) {
	out := make([]any, len(d))
	for i, v := range d {
		if v == tensor.Unknown {
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return out, nil
}

// resolveIO turns an IOConfig into a graph value.
func resolveIO(ctx *graph.Context, cfg *IOConfig) (graph.Value, error) {
	switch cfg.Typename {
	case IOInput:
		if cfg.Reuse {
			in, err := ctx.GetInput(cfg.Name)
			if err != nil {
				return nil, err
			}
			return in, nil
		}
		dtype, err := ioDType(cfg.DType)
		if err != nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "input %q: %v", cfg.Name, err)
		}
		if cfg.Shape == nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "input %q: shape is missing", cfg.Name)
		}
		in, err := graph.NewInput(ctx, cfg.Name, tensor.NewPartialShape(cfg.Shape...), dtype)
		if err != nil {
			return nil, err
		}
		return in, nil
	case IOVariable:
		v, err := ctx.GetVariable(cfg.Name)
		if err != nil {
			return nil, err
		}
		return v, nil
	case IOModel:
		m, err := GetModel(ctx, cfg.Name)
		if err != nil {
			return nil, err
		}
		var v graph.Value
		switch cfg.Attr {
		case "", "output":
			v = m.Output()
		case "input":
			v = m.Input()
		default:
			return nil, errors.Wrapf(graph.ErrConfiguration, "model %q: unknown attr %q", cfg.Name, cfg.Attr)
		}
		if v == nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "model %q has no %s", cfg.Name, nonEmpty(cfg.Attr, "output"))
		}
		return v, nil
	case "":
		return nil, errors.Wrap(graph.ErrConfiguration, "io typename is missing")
	default:
		return nil, errors.Wrapf(graph.ErrConfiguration, "unknown io typename %q", cfg.Typename)
	}
}

func ioDType(name string) (tensor.DataType, error) {
	if name == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return 0, err
		}
		return cfg.DType, nil
	}
	return tensor.ParseDataType(strings.ToLower(name))
}

// ioConfigOf describes a value set programmatically. Names are made
// relative to scope. It returns nil for values that are not registered
// inputs or variables.
func ioConfigOf(v graph.Value, scope string) *IOConfig {
	switch w := v.(type) {
	case *graph.Input:
		return &IOConfig{
			Typename: IOInput,
			Name:     relative(w.Name(), scope),
			Shape:    Dims(w.Shape()),
			DType:    w.DType().String(),
		}
	case *graph.Variable:
		return &IOConfig{Typename: IOVariable, Name: relative(w.Name(), scope)}
	default:
		return nil
	}
}

func relative(name, scope string) string {
	if scope == "" {
		return name
	}
	return strings.TrimPrefix(name, scope+graph.ScopeSeparator)
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
