package model

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/graph"
)

// MakeModel builds a model from its configuration. Construction runs in a
// variable scope named cfg.Scope that inherits the current reuse mode.
//
// A named model is registered under its name in the enclosing scope, so
// models built from one document can refer to each other by name.
//
// An unknown or missing typename, or a layer or io config that cannot be
// built, fails with graph.ErrConfiguration. A model either builds fully or
// not at all: on failure every input, variable, operation and model it
// registered is removed again.
func MakeModel(ctx *graph.Context, cfg Config) (Model, error) {
	var m Model
	err := ctx.Transaction(func() error {
		err := ctx.VariableScope(cfg.Scope, ctx.ReuseMode(), func() error {
			var err error
			switch cfg.Typename {
			case TypeSequential:
				m, err = makeSequential(ctx, cfg)
			case TypeGraph:
				m, err = makeGraph(ctx, cfg)
			case TypeContainer:
				m, err = makeContainer(ctx, cfg)
			case "":
				err = errors.Wrap(graph.ErrConfiguration, "model typename is missing")
			default:
				err = errors.Wrapf(graph.ErrConfiguration, "unknown model %q", cfg.Typename)
			}
			return err
		})
		if err == nil && cfg.Args.Name != "" {
			ctx.RegisterModel(cfg.Args.Name, m)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).InfoS("Built model", "typename", cfg.Typename, "name", cfg.Args.Name, "scope", cfg.Scope)
	return m, nil
}

// MakeModels builds every configuration in order, so later models may read
// from earlier ones. When one fails, the models built before it are
// unregistered too.
func MakeModels(ctx *graph.Context, cfgs []Config) ([]Model, error) {
	models := make([]Model, 0, len(cfgs))
	err := ctx.Transaction(func() error {
		for i, cfg := range cfgs {
			m, err := MakeModel(ctx, cfg)
			if err != nil {
				return errors.WithMessagef(err, "model %d", i)
			}
			models = append(models, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models, nil
}

// GetModel returns the model registered as name.
func GetModel(ctx *graph.Context, name string) (Model, error) {
	v, err := ctx.LookupModel(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(Model)
	if !ok {
		return nil, errors.Wrapf(graph.ErrNotFound, "%q is a %T, not a Model", name, v)
	}
	return m, nil
}

// ParseConfig decodes a model document. The document is either one model
// configuration, a list of them, or a mapping from model name to
// configuration; mapped configurations without a name take their key.
func ParseConfig(data []byte) ([]Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "parsing model document: %v", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.Wrap(graph.ErrConfiguration, "empty model document")
	}
	root := doc.Content[0]

	var cfgs []Config
	switch {
	case root.Kind == yaml.SequenceNode:
		if err := root.Decode(&cfgs); err != nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "decoding model list: %v", err)
		}
	case root.Kind == yaml.MappingNode && hasKey(root, "typename"):
		var cfg Config
		if err := root.Decode(&cfg); err != nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "decoding model: %v", err)
		}
		cfgs = append(cfgs, cfg)
	case root.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, value := root.Content[i].Value, root.Content[i+1]
			var cfg Config
			if err := value.Decode(&cfg); err != nil {
				return nil, errors.Wrapf(graph.ErrConfiguration, "decoding model %q: %v", key, err)
			}
			if cfg.Args.Name == "" {
				cfg.Args.Name = key
			}
			cfgs = append(cfgs, cfg)
		}
	default:
		return nil, errors.Wrapf(graph.ErrConfiguration, "line %d: model document must be a mapping or a list", root.Line)
	}
	return cfgs, nil
}

// LoadConfig reads and decodes the model document at path.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading model document")
	}
	return ParseConfig(data)
}

// MarshalConfig encodes cfgs as a YAML model document.
func MarshalConfig(cfgs ...Config) ([]byte, error) {
	if len(cfgs) == 1 {
		return yaml.Marshal(cfgs[0])
	}
	return yaml.Marshal(cfgs)
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}
