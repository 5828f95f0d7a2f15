// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build static

package backend

import (
	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/backend/static"
)

// Default creates the engine selected at build time.
func Default() backend.Backend {
	return static.New()
}
