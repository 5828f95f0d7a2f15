package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/backend/symbolic"
	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/initializer"
	"github.com/luchador-ml/luchador/internal/tensor"
)

func input(t *testing.T, ctx *graph.Context, dims ...int) *graph.Input {
	t.Helper()
	in, err := graph.NewInput(ctx, "", tensor.NewPartialShape(dims...), tensor.Float64)
	require.NoError(t, err)
	return in
}

// eval feeds value into in and evaluates out.
func eval(t *testing.T, ctx *graph.Context, in *graph.Input, out graph.Value, value *tensor.Array) *tensor.Array {
	t.Helper()
	fn, err := ctx.Backend().Compile(backend.FunctionSpec{
		Inputs:  []backend.Handle{in.Unwrap()},
		Outputs: []backend.Handle{out.Unwrap()},
	})
	require.NoError(t, err)
	res, err := fn.Call([]*tensor.Array{value})
	require.NoError(t, err)
	return res[0]
}

func TestDense(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	x := input(t, ctx, -1, 2)

	dense := NewDense("fc1", 3,
		WithWeightInitializer(initializer.Constant{Value: 1}),
		WithBiasInitializer(initializer.Constant{Value: 0.1}),
	)
	assert.Nil(t, dense.Parameters())

	y, err := dense.Build(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 3), y.Shape())

	params := dense.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "fc1/weight", params[0].Name())
	assert.Equal(t, "fc1/bias", params[1].Name())
	assert.Equal(t, tensor.NewPartialShape(2, 3), params[0].Shape())

	w, err := ctx.GetVariable("fc1/weight")
	require.NoError(t, err)
	assert.Same(t, params[0], w)

	value, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	got := eval(t, ctx, x, y, value)
	assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
	assert.InDeltaSlice(t, []float64{3.1, 3.1, 3.1, 7.1, 7.1, 7.1}, got.Data(), 1e-9)
}

func TestDenseReusesVariables(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	dense := NewDense("fc", 4)

	_, err := dense.Build(ctx, input(t, ctx, -1, 3))
	require.NoError(t, err)
	first := dense.Parameters()

	_, err = dense.Build(ctx, input(t, ctx, 5, 3))
	require.NoError(t, err)
	assert.Equal(t, first, dense.Parameters())
	assert.Len(t, ctx.Variables(), 2)

	_, err = dense.Build(ctx, input(t, ctx, -1, 7))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}

func TestDenseErrors(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())

	_, err := NewDense("a", 2).Build(ctx, input(t, ctx, -1, -1))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	_, err = NewDense("b", 2).Build(ctx, input(t, ctx, 4))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	_, err = NewDense("c", 0).Build(ctx, input(t, ctx, -1, 2))
	assert.ErrorIs(t, err, graph.ErrInvalidValue)

	_, err = NewDense("d", 2).Build(ctx, nil)
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	var nilTensor *graph.Tensor
	_, err = NewDense("n", 2).Build(ctx, nilTensor)
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	// Same name, different layer object: the variables collide.
	_, err = NewDense("e", 2).Build(ctx, input(t, ctx, -1, 2))
	require.NoError(t, err)
	_, err = NewDense("e", 2).Build(ctx, input(t, ctx, -1, 2))
	assert.ErrorIs(t, err, graph.ErrDuplicateName)
	assert.Equal(t, "", ctx.Scope())
}

func TestDenseWithoutBias(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	dense := NewDense("fc", 2, WithoutBias())
	_, err := dense.Build(ctx, input(t, ctx, -1, 2))
	require.NoError(t, err)
	require.Len(t, dense.Parameters(), 1)

	_, err = ctx.GetVariable("fc/bias")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestActivations(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	x := input(t, ctx, -1)
	value, err := tensor.FromSlice([]float64{-1, 0, 2}, tensor.Shape{3})
	require.NoError(t, err)

	tests := []struct {
		layer Layer
		want  []float64
	}{
		{NewReLU(""), []float64{0, 0, 2}},
		{NewSigmoid(""), []float64{0.2689414213699951, 0.5, 0.8807970779778823}},
		{NewTanh(""), []float64{-0.7615941559557649, 0, 0.9640275800758169}},
	}
	for _, tt := range tests {
		t.Run(tt.layer.Name(), func(t *testing.T) {
			y, err := tt.layer.Build(ctx, x)
			require.NoError(t, err)
			assert.Equal(t, x.Shape(), y.Shape())
			assert.Nil(t, tt.layer.Parameters())
			assert.InDeltaSlice(t, tt.want, eval(t, ctx, x, y, value).Data(), 1e-9)
		})
	}
}

func TestShapeLayers(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())

	flat, err := NewFlatten("").Build(ctx, input(t, ctx, -1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 6), flat.Shape())

	_, err = NewFlatten("").Build(ctx, input(t, ctx, -1, -1, 3))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)

	nchw, err := NewNHWC2NCHW("").Build(ctx, input(t, ctx, -1, 8, 6, 3))
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 3, 8, 6), nchw.Shape())

	nhwc, err := NewNCHW2NHWC("").Build(ctx, nchw)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 8, 6, 3), nhwc.Shape())

	_, err = NewNCHW2NHWC("").Build(ctx, input(t, ctx, 2, 3))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}

func TestMakeRoundTrip(t *testing.T) {
	layers := []Layer{
		NewDense("fc", 8),
		NewDense("fc2", 2, WithoutBias(), WithWeightInitializer(initializer.Normal{Stddev: 0.02})),
		NewReLU("relu"),
		NewSigmoid(""),
		NewTanh(""),
		NewFlatten("flat"),
		NewNHWC2NCHW(""),
		NewNCHW2NHWC(""),
	}
	for _, l := range layers {
		t.Run(l.Name(), func(t *testing.T) {
			cfg := l.Config()
			made, err := Make(cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg, made.Config())
			assert.Equal(t, l.Name(), made.Name())
		})
	}
}

func TestMakeFromDocumentArgs(t *testing.T) {
	l, err := Make(Config{Typename: "Dense", Args: config.Args{
		"name":    "q",
		"n_nodes": 4,
		"initializers": map[string]any{
			"weight": map[string]any{"typename": "Uniform", "args": map[string]any{"min_value": -1, "max_value": 1}},
		},
	}})
	require.NoError(t, err)
	dense := l.(*Dense)
	assert.Equal(t, 4, dense.nNodes)
	assert.Equal(t, initializer.Uniform{Min: -1, Max: 1}, dense.weightInit)
	assert.Equal(t, initializer.Constant{Value: 0.1}, dense.biasInit)
}

func TestMakeErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing typename", Config{}},
		{"unknown typename", Config{Typename: "Conv3D"}},
		{"missing n_nodes", Config{Typename: "Dense"}},
		{"zero n_nodes", Config{Typename: "Dense", Args: config.Args{"n_nodes": 0}}},
		{"negative n_nodes", Config{Typename: "Dense", Args: config.Args{"n_nodes": -3}}},
		{"bad with_bias", Config{Typename: "Dense", Args: config.Args{"n_nodes": 2, "with_bias": "yes"}}},
		{"bad name", Config{Typename: "ReLU", Args: config.Args{"name": 3}}},
		{"bad initializer", Config{Typename: "Dense", Args: config.Args{
			"n_nodes":      2,
			"initializers": config.Args{"weight": config.Args{"typename": "Orthogonal"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Make(tt.cfg)
			assert.ErrorIs(t, err, graph.ErrConfiguration)
		})
	}
}
