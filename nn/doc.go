// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn is the public API for building and running networks.
//
// # Overview
//
// Networks are built from backend-neutral values (Input, Variable, Tensor)
// registered by name in a Context, composed into models, and run through a
// Session:
//
//	ctx := nn.NewContext(symbolic.New())
//	state, _ := nn.NewInput(ctx, "state", tensor.NewPartialShape(tensor.Unknown, 4), tensor.Float32)
//
//	q := nn.NewSequential(ctx, "q")
//	q.SetInput(state)
//	q.AddLayer(nn.NewDense("fc1", 16))
//	q.AddLayer(nn.NewReLU("relu1"))
//	q.AddLayer(nn.NewDense("fc2", 2))
//
//	sess := nn.NewSession(ctx, nn.SessionOptions{})
//	sess.Initialize()
//	values, err := sess.Eval(q.Output(), nn.RunOptions{
//		Name:   "q",
//		Inputs: []nn.Feed{{Input: state, Value: batch}},
//	})
//
// # Scopes
//
// Names are qualified by the active variable scope. Registering a name
// twice fails with ErrDuplicateName unless the scope allows reuse:
//
//	ctx.VariableScope("target", nn.Strict, func() error { ... })
//
// # Model documents
//
// Models can be described in YAML and built with MakeModel, see
// ParseModelConfig.
package nn
