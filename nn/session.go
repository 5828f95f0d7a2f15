// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/luchador-ml/luchador/internal/checkpoint"
	"github.com/luchador-ml/luchador/internal/session"
)

// Session compiles and runs computations of one Context.
type Session = session.Session

// SessionOptions configures a Session.
type SessionOptions = session.Options

// RunOptions describes one Session.Run.
type RunOptions = session.RunOptions

// Feed binds a value to an input for one run.
type Feed = session.Feed

// NewSession creates an uninitialized Session over ctx.
func NewSession(ctx *Context, opts SessionOptions) *Session {
	return session.New(ctx, opts)
}

// CheckpointStore keeps checkpoints by key.
type CheckpointStore = checkpoint.Store

// FileStore keeps checkpoints in a local directory.
type FileStore = checkpoint.FileStore

// GCSStore keeps checkpoints in a Cloud Storage bucket.
type GCSStore = checkpoint.GCSStore
