// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package static provides the static-graph engine.
//
// Construction records nodes in an arena; variables receive values when the
// session is initialized. Compiled functions are topologically ordered plans
// over the arena.
package static

import (
	"github.com/luchador-ml/luchador/internal/backend"
	internalstatic "github.com/luchador-ml/luchador/internal/backend/static"
)

// Backend is the static-graph engine.
type Backend = internalstatic.Backend

// Compile-time check that Backend implements backend.Backend.
var _ backend.Backend = (*Backend)(nil)

// New creates a static engine.
func New() *Backend {
	return internalstatic.New()
}
