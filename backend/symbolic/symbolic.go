// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package symbolic provides the define-by-run engine.
//
// Values are expression trees built as the graph is constructed, and
// variables hold their sampled values from creation on. Compiled functions
// evaluate the trees on each call.
package symbolic

import (
	"github.com/luchador-ml/luchador/internal/backend"
	internalsymbolic "github.com/luchador-ml/luchador/internal/backend/symbolic"
)

// Backend is the define-by-run engine.
type Backend = internalsymbolic.Backend

// Compile-time check that Backend implements backend.Backend.
var _ backend.Backend = (*Backend)(nil)

// New creates a symbolic engine.
func New() *Backend {
	return internalsymbolic.New()
}
