// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/backend"
	"github.com/luchador-ml/luchador/backend/static"
	"github.com/luchador-ml/luchador/backend/symbolic"
	"github.com/luchador-ml/luchador/nn"
	"github.com/luchador-ml/luchador/tensor"
)

const qModel = `
typename: Sequential
scope: online
args:
  name: q
  input_config: {typename: Input, name: state, shape: [null, 4], dtype: float64}
  layer_configs:
    - typename: Dense
      args:
        name: fc
        n_nodes: 2
        initializers:
          weight: {typename: Constant, args: {value: 1}}
          bias: {typename: Constant, args: {value: 0}}
`

func TestEndToEnd(t *testing.T) {
	for _, b := range []backend.Backend{symbolic.New(), static.New(), backend.Default()} {
		t.Run(b.Name(), func(t *testing.T) {
			ctx := nn.NewContext(b)
			cfgs, err := nn.ParseModelConfig([]byte(qModel))
			require.NoError(t, err)
			q, err := nn.MakeModel(ctx, cfgs[0])
			require.NoError(t, err)
			assert.Equal(t, tensor.NewPartialShape(tensor.Unknown, 2), q.Output().Shape())

			got, err := nn.GetModel(ctx, "q")
			require.NoError(t, err)
			assert.Same(t, q, got)

			sess := nn.NewSession(ctx, nn.SessionOptions{})
			require.NoError(t, sess.Initialize())
			defer sess.Close()

			batch, err := tensor.FromSlice([]float64{1, 2, 3, 4, 0, 0, 0, 1}, tensor.Shape{2, 4})
			require.NoError(t, err)
			out, err := sess.Eval(q.Output(), nn.RunOptions{
				Name:   "q",
				Inputs: []nn.Feed{{Input: q.Input().(*nn.Input), Value: batch}},
			})
			require.NoError(t, err)
			assert.Equal(t, []float64{10, 10, 1, 1}, out.Data())
		})
	}
}

func TestSyncThroughFacade(t *testing.T) {
	ctx := nn.NewContext(backend.Default())
	src, err := nn.NewVariable(ctx, "src", tensor.Shape{2}, tensor.Float64, nn.Constant{Value: 3}, true)
	require.NoError(t, err)
	tgt, err := nn.NewVariable(ctx, "tgt", tensor.Shape{2}, tensor.Float64, nn.Constant{Value: 1}, false)
	require.NoError(t, err)

	half := 0.5
	sync, err := nn.BuildSyncOp(ctx, []nn.Value{src}, []nn.Value{tgt}, &half, "sync")
	require.NoError(t, err)
	_, err = nn.BuildSyncOp(ctx, []nn.Value{src}, []nn.Value{tgt}, nil, "sync")
	assert.ErrorIs(t, err, nn.ErrDuplicateName)

	sess := nn.NewSession(ctx, nn.SessionOptions{})
	require.NoError(t, sess.Initialize())
	_, err = sess.Run(nn.RunOptions{Updates: []*nn.Operation{sync}})
	require.NoError(t, err)
	v, err := sess.Eval(tgt, nn.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, v.Data())

	require.NoError(t, sess.Close())
	_, err = sess.Eval(tgt, nn.RunOptions{})
	assert.ErrorIs(t, err, nn.ErrSessionClosed)
}
