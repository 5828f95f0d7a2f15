package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/internal/backend/static"
	"github.com/luchador-ml/luchador/internal/backend/symbolic"
	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/layer"
	"github.com/luchador-ml/luchador/internal/tensor"
)

func newInput(t *testing.T, ctx *graph.Context, name string, dims ...int) *graph.Input {
	t.Helper()
	in, err := graph.NewInput(ctx, name, tensor.NewPartialShape(dims...), tensor.Float32)
	require.NoError(t, err)
	return in
}

func qNetwork(t *testing.T, ctx *graph.Context) *Sequential {
	t.Helper()
	seq := NewSequential(ctx, "q")
	require.NoError(t, seq.SetInput(newInput(t, ctx, "state", -1, 4)))
	require.NoError(t, seq.AddLayer(layer.NewDense("fc1", 8)))
	require.NoError(t, seq.AddLayer(layer.NewReLU("relu1")))
	require.NoError(t, seq.AddLayer(layer.NewDense("fc2", 2)))
	return seq
}

func TestSequential(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	seq := qNetwork(t, ctx)

	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, tensor.NewPartialShape(-1, 2), seq.Output().Shape())
	assert.Len(t, seq.Parameters(), 4)
	assert.Equal(t, "fc1/weight", seq.Parameters()[0].Name())

	m, err := GetModel(ctx, "q")
	require.NoError(t, err)
	assert.Same(t, seq, m)
}

func TestSequentialBuildsOnSetInput(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	seq := NewSequential(ctx, "")
	require.NoError(t, seq.AddLayer(layer.NewDense("fc", 3)))
	assert.Nil(t, seq.Output())
	assert.Nil(t, seq.Parameters())

	require.NoError(t, seq.SetInput(newInput(t, ctx, "", -1, 5)))
	assert.Equal(t, tensor.NewPartialShape(-1, 3), seq.Output().Shape())
	assert.Equal(t, tensor.NewPartialShape(5, 3), seq.Parameters()[0].Shape())
}

func TestSequentialLayerError(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	seq := qNetwork(t, ctx)
	out := seq.Output()

	err := seq.AddLayer(layer.NewNCHW2NHWC(""))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, out, seq.Output())
}

func TestGraph(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	g := NewGraph(ctx, "twin")
	require.NoError(t, g.AddNode(Node{Layer: layer.NewDense("trunk", 8)}))
	require.NoError(t, g.AddNode(Node{Layer: layer.NewReLU("act"), Input: "trunk"}))
	require.NoError(t, g.AddNode(Node{Layer: layer.NewDense("value", 1), Input: "act"}))
	require.NoError(t, g.AddNode(Node{Layer: layer.NewDense("advantage", 3), Input: "act"}))
	assert.ErrorIs(t, g.AddNode(Node{Layer: layer.NewTanh("act")}), graph.ErrDuplicateName)

	assert.Nil(t, g.Output())
	g.SetInput(newInput(t, ctx, "state", -1, 4))
	g.SetOutput("advantage")
	require.NoError(t, g.Build())

	assert.Equal(t, tensor.NewPartialShape(-1, 3), g.Output().Shape())
	value, err := g.Tensor("value")
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 1), value.Shape())
	assert.Len(t, g.Parameters(), 6)
}

func TestGraphUnreachable(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []Node
		output string
		input  bool
	}{
		{"unknown output", []Node{{Layer: layer.NewDense("a", 2)}}, "b", true},
		{"forward reference", []Node{{Layer: layer.NewDense("a", 2), Input: "b"}, {Layer: layer.NewReLU("b")}}, "a", true},
		{"no output", []Node{{Layer: layer.NewDense("a", 2)}}, "", true},
		{"no input", []Node{{Layer: layer.NewDense("a", 2)}}, "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := graph.NewContext(symbolic.New())
			g := NewGraph(ctx, "")
			for _, n := range tt.nodes {
				require.NoError(t, g.AddNode(n))
			}
			if tt.input {
				g.SetInput(newInput(t, ctx, "", -1, 4))
			}
			g.SetOutput(tt.output)
			assert.ErrorIs(t, g.Build(), graph.ErrConfiguration)
			assert.Nil(t, g.Output())
		})
	}
}

func TestContainer(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	c := NewContainer(ctx, "agent")
	pre := qNetwork(t, ctx)
	require.NoError(t, c.AddModel("pre", pre))

	assert.Equal(t, pre.Input(), c.Input())
	assert.Equal(t, pre.Output(), c.Output())

	post := NewSequential(ctx, "")
	require.NoError(t, post.SetInput(newInput(t, ctx, "next_state", -1, 4)))
	require.NoError(t, c.AddModel("post", post))
	assert.ErrorIs(t, c.AddModel("post", post), graph.ErrDuplicateName)

	assert.Nil(t, c.Input())
	assert.Len(t, c.Inputs(), 2)
	assert.Len(t, c.Outputs(), 2)
	assert.Equal(t, []string{"pre", "post"}, c.ModelNames())
	assert.Len(t, c.Parameters(), 4)

	c.SetOutput(pre.Output())
	assert.Equal(t, pre.Output(), c.Output())

	got, err := c.Model("post")
	require.NoError(t, err)
	assert.Same(t, post, got)
	_, err = c.Model("target")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	cfg := c.Serialize()
	require.NotNil(t, cfg.Args.OutputConfig)
	assert.Equal(t, IOConfig{Typename: IOModel, Name: "pre", Attr: "output"}, *cfg.Args.OutputConfig)
}

// roundTrip checks that serialize, make and serialize again is stable and
// that the rebuilt model has the same output shape.
func roundTrip(t *testing.T, m Model) {
	t.Helper()
	cfg := m.Serialize()
	ctx := graph.NewContext(static.New())
	made, err := MakeModel(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, made.Serialize())
	assert.Equal(t, m.Output().Shape(), made.Output().Shape())
	assert.Len(t, made.Parameters(), len(m.Parameters()))
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Run("Sequential", func(t *testing.T) {
		roundTrip(t, qNetwork(t, graph.NewContext(symbolic.New())))
	})

	t.Run("Graph", func(t *testing.T) {
		ctx := graph.NewContext(symbolic.New())
		g := NewGraph(ctx, "g")
		require.NoError(t, g.AddNode(Node{Layer: layer.NewDense("trunk", 8, layer.WithoutBias())}))
		require.NoError(t, g.AddNode(Node{Layer: layer.NewSigmoid(""), Input: "trunk"}))
		g.SetInput(newInput(t, ctx, "x", -1, 3))
		g.SetOutput("Sigmoid")
		require.NoError(t, g.Build())
		roundTrip(t, g)
	})

	t.Run("Container", func(t *testing.T) {
		cfgs, err := LoadConfig("testdata/dqn.yml")
		require.NoError(t, err)
		m, err := MakeModel(graph.NewContext(symbolic.New()), cfgs[0])
		require.NoError(t, err)
		roundTrip(t, m)
	})
}

func TestLoadConfig(t *testing.T) {
	cfgs, err := LoadConfig("testdata/dqn.yml")
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	cfg := cfgs[0]
	assert.Equal(t, TypeContainer, cfg.Typename)
	assert.Equal(t, "dqn", cfg.Scope)
	require.Len(t, cfg.Args.ModelConfigs, 2)

	pre := cfg.Args.ModelConfigs[0]
	assert.Equal(t, Dims{tensor.Unknown, 4}, pre.Args.InputConfig.Shape)
	require.Len(t, pre.Args.LayerConfigs, 3)
	assert.Equal(t, "ReLU", pre.Args.LayerConfigs[1].Typename)

	post := cfg.Args.ModelConfigs[1]
	assert.Equal(t, "head", post.Args.Output)
	assert.Equal(t, "act", post.Args.NodeConfigs[2].Input)
	assert.Equal(t, "Dense", post.Args.NodeConfigs[2].Layer.Typename)

	ctx := graph.NewContext(symbolic.New())
	m, err := MakeModel(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewPartialShape(-1, 2), m.Output().Shape())

	for _, name := range []string{"dqn/fc1/weight", "dqn/fc2/bias", "dqn/trunk/weight", "dqn/head/bias"} {
		_, err := ctx.GetVariable(name)
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"dqn/state", "dqn/next_state"} {
		_, err := ctx.GetInput(name)
		assert.NoError(t, err, name)
	}
	assert.Equal(t, []string{"dqn", "dqn/post", "dqn/pre"}, ctx.ModelNames())

	post2, err := GetModel(ctx, "dqn/post")
	require.NoError(t, err)
	assert.IsType(t, &Graph{}, post2)
}

func TestYAMLRoundTrip(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	seq := qNetwork(t, ctx)
	cfg := seq.Serialize()

	data, err := MarshalConfig(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- null")

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	made, err := MakeModel(graph.NewContext(symbolic.New()), parsed[0])
	require.NoError(t, err)
	assert.Equal(t, cfg, made.Serialize())
}

func TestParseConfigForms(t *testing.T) {
	list := []byte(`
- typename: Sequential
  args: {name: a}
- typename: Sequential
  args: {name: b}
`)
	cfgs, err := ParseConfig(list)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "b", cfgs[1].Args.Name)

	mapping := []byte(`
first:
  typename: Sequential
second:
  typename: Graph
  args: {name: explicit}
`)
	cfgs, err = ParseConfig(mapping)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "first", cfgs[0].Args.Name)
	assert.Equal(t, "explicit", cfgs[1].Args.Name)

	for _, bad := range []string{"", "42", "typename: [", "- {args: {input_config: {shape: 3}}}"} {
		_, err := ParseConfig([]byte(bad))
		assert.ErrorIs(t, err, graph.ErrConfiguration, bad)
	}

	_, err = LoadConfig("testdata/missing.yml")
	assert.Error(t, err)
}

func TestMakeModels(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	models, err := MakeModels(ctx, []Config{
		{Typename: TypeSequential, Args: Args{
			Name:         "encoder",
			InputConfig:  &IOConfig{Typename: IOInput, Name: "obs", Shape: Dims{-1, 2, 3}},
			LayerConfigs: []layer.Config{{Typename: "Flatten"}},
		}},
		{Typename: TypeSequential, Args: Args{
			Name:         "head",
			InputConfig:  &IOConfig{Typename: IOModel, Name: "encoder"},
			LayerConfigs: []layer.Config{{Typename: "Dense", Args: map[string]any{"n_nodes": 4}}},
		}},
		{Typename: TypeSequential, Args: Args{
			Name:        "again",
			InputConfig: &IOConfig{Typename: IOInput, Name: "obs", Reuse: true},
		}},
	})
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, tensor.NewPartialShape(-1, 6), models[0].Output().Shape())
	assert.Equal(t, tensor.NewPartialShape(-1, 4), models[1].Output().Shape())
	assert.Same(t, models[0].Input(), models[2].Input())
}

func TestMakeModelErrors(t *testing.T) {
	input := &IOConfig{Typename: IOInput, Name: "x", Shape: Dims{-1, 2}}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing typename", Config{}},
		{"unknown typename", Config{Typename: "Recurrent"}},
		{"unknown layer", Config{Typename: TypeSequential, Args: Args{LayerConfigs: []layer.Config{{Typename: "LSTM"}}}}},
		{"missing n_nodes", Config{Typename: TypeSequential, Args: Args{
			InputConfig:  input,
			LayerConfigs: []layer.Config{{Typename: "Dense"}},
		}}},
		{"graph without input", Config{Typename: TypeGraph, Args: Args{Output: "a"}}},
		{"graph node missing typename", Config{Typename: TypeGraph, Args: Args{
			InputConfig: input,
			NodeConfigs: []NodeConfig{{Input: "a"}},
		}}},
		{"graph unreachable output", Config{Typename: TypeGraph, Args: Args{
			InputConfig: input,
			NodeConfigs: []NodeConfig{{Layer: layer.Config{Typename: "ReLU"}}},
			Output:      "out",
		}}},
		{"unknown io", Config{Typename: TypeSequential, Args: Args{InputConfig: &IOConfig{Typename: "Queue"}}}},
		{"input without shape", Config{Typename: TypeSequential, Args: Args{InputConfig: &IOConfig{Typename: IOInput, Name: "y"}}}},
		{"bad dtype", Config{Typename: TypeSequential, Args: Args{InputConfig: &IOConfig{Typename: IOInput, Name: "z", Shape: Dims{1}, DType: "half"}}}},
		{"unknown model attr", Config{Typename: TypeContainer, Args: Args{
			ModelConfigs: []Config{{Typename: TypeSequential, Args: Args{Name: "m", InputConfig: input}}},
			OutputConfig: &IOConfig{Typename: IOModel, Name: "m", Attr: "loss"},
		}}},
		{"unnamed child", Config{Typename: TypeContainer, Args: Args{
			ModelConfigs: []Config{{Typename: TypeSequential}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := graph.NewContext(symbolic.New())
			_, err := MakeModel(ctx, tt.cfg)
			assert.ErrorIs(t, err, graph.ErrConfiguration)
			assert.Equal(t, "", ctx.Scope())
		})
	}

	ctx := graph.NewContext(symbolic.New())
	_, err := MakeModel(ctx, Config{Typename: TypeSequential, Args: Args{InputConfig: &IOConfig{Typename: IOVariable, Name: "w"}}})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestMakeModelScope(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	cfg := qNetwork(t, graph.NewContext(symbolic.New())).Serialize()
	cfg.Scope = "pre_trans"

	m, err := MakeModel(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "pre_trans/fc1/weight", m.Parameters()[0].Name())
	assert.Equal(t, "pre_trans/state", m.Input().Name())

	got, err := GetModel(ctx, "q")
	require.NoError(t, err)
	assert.Same(t, m, got)

	// Building the same document again under a strict scope collides.
	_, err = MakeModel(ctx, cfg)
	assert.ErrorIs(t, err, graph.ErrDuplicateName)

	// Under a reusing scope the names are replaced.
	err = ctx.VariableScope("", graph.AllowReuse, func() error {
		_, err := MakeModel(ctx, cfg)
		return err
	})
	assert.NoError(t, err)
}

func dense(name string, nNodes int) layer.Config {
	return layer.Config{Typename: "Dense", Args: config.Args{"name": name, "n_nodes": nNodes}}
}

func stateNetwork(second layer.Config) Config {
	return Config{Typename: TypeSequential, Args: Args{
		Name:         "q",
		InputConfig:  &IOConfig{Typename: IOInput, Name: "state", Shape: Dims{-1, 4}},
		LayerConfigs: []layer.Config{dense("fc1", 3), second},
	}}
}

func TestMakeModelFailureLeavesNoNames(t *testing.T) {
	tests := []struct {
		name   string
		second layer.Config
	}{
		{"layer config rejected", dense("fc2", 0)},
		{"layer build fails", layer.Config{Typename: "NHWC2NCHW"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := graph.NewContext(static.New())
			_, err := MakeModel(ctx, stateNetwork(tt.second))
			require.Error(t, err)

			assert.Empty(t, ctx.Names(graph.CategoryInput))
			assert.Empty(t, ctx.Names(graph.CategoryVariable))
			assert.Empty(t, ctx.Variables())
			assert.Empty(t, ctx.ModelNames())

			// The corrected document builds in the same context.
			m, err := MakeModel(ctx, stateNetwork(dense("fc2", 2)))
			require.NoError(t, err)
			assert.Equal(t, tensor.NewPartialShape(-1, 2), m.Output().Shape())
			assert.Equal(t, []string{"fc1/bias", "fc1/weight", "fc2/bias", "fc2/weight"}, ctx.Names(graph.CategoryVariable))
			assert.Equal(t, []string{"q"}, ctx.ModelNames())
		})
	}
}

func TestMakeModelsFailureUnregistersEarlierModels(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	good := stateNetwork(dense("fc2", 2))
	good.Scope = "pre"
	bad := stateNetwork(layer.Config{Typename: "NCHW2NHWC"})
	bad.Scope = "post"

	_, err := MakeModels(ctx, []Config{good, bad})
	require.Error(t, err)
	assert.Empty(t, ctx.Variables())
	assert.Empty(t, ctx.ModelNames())
	assert.Empty(t, ctx.Names(graph.CategoryInput))
}

func TestGraphBuildFailureLeavesNoNames(t *testing.T) {
	ctx := graph.NewContext(symbolic.New())
	g := NewGraph(ctx, "g")
	require.NoError(t, g.AddNode(Node{Layer: layer.NewDense("trunk", 3)}))
	require.NoError(t, g.AddNode(Node{Layer: layer.NewNHWC2NCHW("perm"), Input: "trunk"}))
	g.SetInput(newInput(t, ctx, "x", -1, 2))
	g.SetOutput("perm")

	assert.ErrorIs(t, g.Build(), graph.ErrInvalidArgument)
	assert.Empty(t, ctx.Variables())
	assert.Nil(t, g.Output())
}
