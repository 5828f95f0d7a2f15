// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/luchador-ml/luchador/internal/model"
	"github.com/luchador-ml/luchador/internal/qlearning"
)

// Model is a composition of layers with one input and one output.
type Model = model.Model

// Model types.
type (
	Sequential = model.Sequential
	Graph      = model.Graph
	Container  = model.Container
	Node       = model.Node
)

// ModelConfig is the serialized form of a model.
type ModelConfig = model.Config

// NewSequential creates an empty chain of layers.
func NewSequential(ctx *Context, name string) *Sequential {
	return model.NewSequential(ctx, name)
}

// NewGraph creates an empty graph of named layers.
func NewGraph(ctx *Context, name string) *Graph {
	return model.NewGraph(ctx, name)
}

// NewContainer creates an empty container of models.
func NewContainer(ctx *Context, name string) *Container {
	return model.NewContainer(ctx, name)
}

// MakeModel builds a model from its configuration.
func MakeModel(ctx *Context, cfg ModelConfig) (Model, error) {
	return model.MakeModel(ctx, cfg)
}

// GetModel returns the model registered as name.
func GetModel(ctx *Context, name string) (Model, error) {
	return model.GetModel(ctx, name)
}

// ParseModelConfig decodes a YAML model document.
//
// Example:
//
//	cfgs, err := nn.ParseModelConfig([]byte(`
//	typename: Sequential
//	args:
//	  name: q
//	  input_config: {typename: Input, name: state, shape: [null, 4]}
//	  layer_configs:
//	    - {typename: Dense, args: {name: fc, n_nodes: 2}}
//	`))
func ParseModelConfig(data []byte) ([]ModelConfig, error) {
	return model.ParseConfig(data)
}

// LoadModelConfig reads and decodes the YAML model document at path.
func LoadModelConfig(path string) ([]ModelConfig, error) {
	return model.LoadConfig(path)
}

// DeepQLearning builds the graph of deep Q-learning.
type DeepQLearning = qlearning.DeepQLearning

// QNetwork is the graph built by DeepQLearning.Build.
type QNetwork = qlearning.Network
