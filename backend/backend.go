// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend exposes the engine contract and the build-time default
// engine.
//
// Engines are chosen by constructing one and passing it to nn.NewContext:
//
//	ctx := nn.NewContext(symbolic.New())  // define-by-run
//	ctx := nn.NewContext(static.New())    // static graph
//	ctx := nn.NewContext(backend.Default())
//
// Default returns the symbolic engine, or the static engine when built with
// the "static" build tag.
package backend

import (
	"github.com/luchador-ml/luchador/internal/backend"
)

// Backend is a numerical engine.
type Backend = backend.Backend

// Initializer samples the initial value of a variable.
type Initializer = backend.Initializer
