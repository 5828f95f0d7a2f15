// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/ops"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Context owns the name registry, the scope stack and the values built on
// one backend.
type Context = graph.Context

// Value is a readable graph value: a Tensor, Variable or Input.
type Value = graph.Value

// Tensor is an intermediate value.
type Tensor = graph.Tensor

// Variable is persistent, updatable state.
type Variable = graph.Variable

// Input is a value fed at run time.
type Input = graph.Input

// Operation is a group of variable updates.
type Operation = graph.Operation

// ReuseMode decides what registering an existing name does.
type ReuseMode = graph.ReuseMode

// Reuse modes.
const (
	Strict     = graph.Strict
	AllowReuse = graph.AllowReuse
)

// Errors.
var (
	ErrDuplicateName   = graph.ErrDuplicateName
	ErrNotFound        = graph.ErrNotFound
	ErrConfiguration   = graph.ErrConfiguration
	ErrInvalidArgument = graph.ErrInvalidArgument
	ErrInvalidValue    = graph.ErrInvalidValue
	ErrCompilation     = graph.ErrCompilation
	ErrNotInitialized  = graph.ErrNotInitialized
	ErrSessionClosed   = graph.ErrSessionClosed
)

// NewContext creates a Context around an engine.
func NewContext(b backend.Backend) *Context {
	return graph.NewContext(b)
}

// NewInput creates a value fed at run time, registered when named.
func NewInput(ctx *Context, name string, shape tensor.PartialShape, dtype tensor.DataType) (*Input, error) {
	return graph.NewInput(ctx, name, shape, dtype)
}

// NewVariable creates a variable sampled from init, registered when named.
func NewVariable(ctx *Context, name string, shape tensor.Shape, dtype tensor.DataType, init backend.Initializer, trainable bool) (*Variable, error) {
	return graph.NewVariable(ctx, name, shape, dtype, init, trainable)
}

// Assignment writes Value into Target when its operation runs.
type Assignment = ops.Assignment

// Group creates one operation applying every assignment from the state
// before the run.
func Group(ctx *Context, name string, assigns ...Assignment) (*Operation, error) {
	return ops.Group(ctx, name, assigns...)
}

// BuildSyncOp creates an operation copying sources into targets. With a
// non-zero tau, targets move toward sources: target = tau*source + (1-tau)*target.
// A nil or zero tau copies exactly.
//
// Example:
//
//	sync, err := nn.BuildSyncOp(ctx, online, target, nil, "sync")
func BuildSyncOp(ctx *Context, sources, targets []Value, tau *float64, name string) (*Operation, error) {
	return ops.BuildSyncOp(ctx, sources, targets, tau, name)
}
