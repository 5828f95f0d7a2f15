package model

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/layer"
)

// Node is a layer of a Graph and the name of the node it reads from. An
// empty Input reads the graph input.
type Node struct {
	Layer layer.Layer
	Input string
}

// Graph is a model whose layers are wired by name.
//
// Nodes are added without being connected; Build connects them in the
// order they were added. A node may read the graph input or any node added
// before it, which allows branches:
//
//	g := model.NewGraph(ctx, "twin")
//	g.AddNode(model.Node{Layer: layer.NewDense("trunk", 8)})
//	g.AddNode(model.Node{Layer: layer.NewReLU("act"), Input: "trunk"})
//	g.AddNode(model.Node{Layer: layer.NewDense("head", 2), Input: "act"})
//	g.SetInput(state)
//	g.SetOutput("head")
//	err := g.Build()
type Graph struct {
	ctx   *graph.Context
	name  string
	scope string

	inputConfig *IOConfig
	input       graph.Value

	nodes      []Node
	outputNode string

	tensors map[string]*graph.Tensor
	output  *graph.Tensor
}

// NewGraph creates an empty Graph and registers it when named.
func NewGraph(ctx *graph.Context, name string) *Graph {
	g := newGraph(ctx, name, ctx.Scope())
	if name != "" {
		ctx.RegisterModel(name, g)
	}
	return g
}

func newGraph(ctx *graph.Context, name, scope string) *Graph {
	return &Graph{ctx: ctx, name: name, scope: scope}
}

// Name returns the model name.
func (g *Graph) Name() string {
	return g.name
}

// AddNode appends a node without connecting it. Node names, taken from
// their layers, must be unique within the graph.
func (g *Graph) AddNode(n Node) error {
	if n.Layer == nil {
		return errors.Wrapf(graph.ErrInvalidArgument, "graph %q: nil layer", g.name)
	}
	for _, existing := range g.nodes {
		if existing.Layer.Name() == n.Layer.Name() {
			return errors.Wrapf(graph.ErrDuplicateName, "graph %q: node %q", g.name, n.Layer.Name())
		}
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// SetInput sets the value the graph reads from.
func (g *Graph) SetInput(input graph.Value) {
	g.input = input
}

// SetOutput names the node whose output is the graph output.
func (g *Graph) SetOutput(node string) {
	g.outputNode = node
}

// Build connects every node. It fails with ErrConfiguration when the input
// or output is unset, when a node reads an unknown node, or when the output
// node does not exist.
func (g *Graph) Build() error {
	if g.input == nil {
		return errors.Wrapf(graph.ErrConfiguration, "graph %q: input is not set", g.name)
	}
	if g.outputNode == "" {
		return errors.Wrapf(graph.ErrConfiguration, "graph %q: output is not set", g.name)
	}
	tensors := make(map[string]*graph.Tensor, len(g.nodes))
	var output *graph.Tensor
	err := g.ctx.Transaction(func() error {
		for _, n := range g.nodes {
			src := g.input
			if n.Input != "" {
				t, ok := tensors[n.Input]
				if !ok {
					return errors.Wrapf(graph.ErrConfiguration,
						"graph %q: node %q reads %q, which is not reachable from the input", g.name, n.Layer.Name(), n.Input)
				}
				src = t
			}
			out, err := n.Layer.Build(g.ctx, src)
			if err != nil {
				return errors.WithMessagef(err, "graph %q: node %q", g.name, n.Layer.Name())
			}
			tensors[n.Layer.Name()] = out
		}
		var ok bool
		if output, ok = tensors[g.outputNode]; !ok {
			return errors.Wrapf(graph.ErrConfiguration, "graph %q: output node %q is not reachable from the input", g.name, g.outputNode)
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.tensors, g.output = tensors, output
	klog.V(4).InfoS("Built graph", "model", g.name, "nodes", len(g.nodes), "output", g.outputNode)
	return nil
}

// Nodes returns the nodes in order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Tensor returns the output of the named node after Build.
func (g *Graph) Tensor(node string) (*graph.Tensor, error) {
	t, ok := g.tensors[node]
	if !ok {
		return nil, errors.Wrapf(graph.ErrNotFound, "graph %q: node %q", g.name, node)
	}
	return t, nil
}

// Input returns the graph input, or nil when unset.
func (g *Graph) Input() graph.Value {
	return g.input
}

// Output returns the output node's value, or nil before Build.
func (g *Graph) Output() graph.Value {
	if g.output == nil {
		return nil
	}
	return g.output
}

// Parameters returns the variables of every node, in node order.
func (g *Graph) Parameters() []*graph.Variable {
	var params []*graph.Variable
	for _, n := range g.nodes {
		params = append(params, n.Layer.Parameters()...)
	}
	return params
}

// Serialize returns the configuration of the model.
func (g *Graph) Serialize() Config {
	args := Args{Name: g.name, InputConfig: g.inputConfig.Clone(), Output: g.outputNode}
	if args.InputConfig == nil && g.input != nil {
		args.InputConfig = ioConfigOf(g.input, g.scope)
	}
	for _, n := range g.nodes {
		args.NodeConfigs = append(args.NodeConfigs, NodeConfig{Layer: n.Layer.Config(), Input: n.Input})
	}
	return Config{Typename: TypeGraph, Scope: g.scope, Args: args}
}

func makeGraph(ctx *graph.Context, cfg Config) (*Graph, error) {
	g := newGraph(ctx, cfg.Args.Name, cfg.Scope)
	for i, nc := range cfg.Args.NodeConfigs {
		l, err := layer.Make(nc.Layer)
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q: node %d", g.name, i)
		}
		if err := g.AddNode(Node{Layer: l, Input: nc.Input}); err != nil {
			return nil, errors.Wrapf(graph.ErrConfiguration, "%v", err)
		}
	}
	if cfg.Args.InputConfig == nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "graph %q: input_config is missing", g.name)
	}
	input, err := resolveIO(ctx, cfg.Args.InputConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph %q: input", g.name)
	}
	g.SetInput(input)
	g.inputConfig = cfg.Args.InputConfig.Clone()
	g.SetOutput(cfg.Args.Output)
	if err := g.Build(); err != nil {
		return nil, err
	}
	return g, nil
}
