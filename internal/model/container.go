package model

import (
	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/graph"
)

type child struct {
	name  string
	model Model
}

// Container holds named sub-models.
//
// A container is usually the result of one model document describing
// several networks that share a scope, for example the pre- and
// post-transition networks of Q-learning. Input and Output return the
// explicitly set values, or those of the only child.
type Container struct {
	ctx   *graph.Context
	name  string
	scope string

	children []child

	inputConfig, outputConfig *IOConfig
	input, output             graph.Value
}

// NewContainer creates an empty Container and registers it when named.
func NewContainer(ctx *graph.Context, name string) *Container {
	c := newContainer(ctx, name, ctx.Scope())
	if name != "" {
		ctx.RegisterModel(name, c)
	}
	return c
}

func newContainer(ctx *graph.Context, name, scope string) *Container {
	return &Container{ctx: ctx, name: name, scope: scope}
}

// Name returns the model name.
func (c *Container) Name() string {
	return c.name
}

// AddModel adds m under name. Names must be unique within the container.
func (c *Container) AddModel(name string, m Model) error {
	if m == nil {
		return errors.Wrapf(graph.ErrInvalidArgument, "container %q: nil model", c.name)
	}
	if name == "" {
		return errors.Wrapf(graph.ErrInvalidArgument, "container %q: empty model name", c.name)
	}
	for _, ch := range c.children {
		if ch.name == name {
			return errors.Wrapf(graph.ErrDuplicateName, "container %q: model %q", c.name, name)
		}
	}
	c.children = append(c.children, child{name: name, model: m})
	return nil
}

// Model returns the child added as name.
func (c *Container) Model(name string) (Model, error) {
	for _, ch := range c.children {
		if ch.name == name {
			return ch.model, nil
		}
	}
	return nil, errors.Wrapf(graph.ErrNotFound, "container %q: model %q", c.name, name)
}

// ModelNames returns the child names in order.
func (c *Container) ModelNames() []string {
	names := make([]string, len(c.children))
	for i, ch := range c.children {
		names[i] = ch.name
	}
	return names
}

// SetInput sets the container input explicitly.
func (c *Container) SetInput(v graph.Value) {
	c.input = v
}

// SetOutput sets the container output explicitly.
func (c *Container) SetOutput(v graph.Value) {
	c.output = v
}

// Input returns the explicit input, or the input of the only child.
func (c *Container) Input() graph.Value {
	if c.input != nil {
		return c.input
	}
	if len(c.children) == 1 {
		return c.children[0].model.Input()
	}
	return nil
}

// Output returns the explicit output, or the output of the only child.
func (c *Container) Output() graph.Value {
	if c.output != nil {
		return c.output
	}
	if len(c.children) == 1 {
		return c.children[0].model.Output()
	}
	return nil
}

// Inputs returns the input of every child that has one, in child order.
func (c *Container) Inputs() []graph.Value {
	var vs []graph.Value
	for _, ch := range c.children {
		if v := ch.model.Input(); v != nil {
			vs = append(vs, v)
		}
	}
	return vs
}

// Outputs returns the output of every child that has one, in child order.
func (c *Container) Outputs() []graph.Value {
	var vs []graph.Value
	for _, ch := range c.children {
		if v := ch.model.Output(); v != nil {
			vs = append(vs, v)
		}
	}
	return vs
}

// Parameters returns the variables of every child, in child order.
func (c *Container) Parameters() []*graph.Variable {
	var params []*graph.Variable
	for _, ch := range c.children {
		params = append(params, ch.model.Parameters()...)
	}
	return params
}

// Serialize returns the configuration of the container and its children.
// Each child config carries the name it was added under.
func (c *Container) Serialize() Config {
	args := Args{
		Name:         c.name,
		InputConfig:  c.inputConfig.Clone(),
		OutputConfig: c.outputConfig.Clone(),
	}
	if args.InputConfig == nil && c.input != nil {
		args.InputConfig = c.describe(c.input)
	}
	if args.OutputConfig == nil && c.output != nil {
		args.OutputConfig = c.describe(c.output)
	}
	for _, ch := range c.children {
		cfg := ch.model.Serialize()
		cfg.Args.Name = ch.name
		args.ModelConfigs = append(args.ModelConfigs, cfg)
	}
	return Config{Typename: TypeContainer, Scope: c.scope, Args: args}
}

// describe refers to v through the child it belongs to when possible.
func (c *Container) describe(v graph.Value) *IOConfig {
	for _, ch := range c.children {
		switch v {
		case ch.model.Input():
			return &IOConfig{Typename: IOModel, Name: ch.name, Attr: "input"}
		case ch.model.Output():
			return &IOConfig{Typename: IOModel, Name: ch.name, Attr: "output"}
		}
	}
	return ioConfigOf(v, c.scope)
}

func makeContainer(ctx *graph.Context, cfg Config) (*Container, error) {
	c := newContainer(ctx, cfg.Args.Name, cfg.Scope)
	for i, mc := range cfg.Args.ModelConfigs {
		m, err := MakeModel(ctx, mc)
		if err != nil {
			return nil, errors.WithMessagef(err, "container %q: model %d", c.name, i)
		}
		if err := c.AddModel(mc.Args.Name, m); err != nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "%v", err)
		}
	}
	if ic := cfg.Args.InputConfig; ic != nil {
		v, err := resolveIO(ctx, ic)
		if err != nil {
			return nil, errors.WithMessagef(err, "container %q: input", c.name)
		}
		c.input, c.inputConfig = v, ic.Clone()
	}
	if oc := cfg.Args.OutputConfig; oc != nil {
		v, err := resolveIO(ctx, oc)
		if err != nil {
			return nil, errors.WithMessagef(err, "container %q: output", c.name)
		}
		c.output, c.outputConfig = v, oc.Clone()
	}
	return c, nil
}
