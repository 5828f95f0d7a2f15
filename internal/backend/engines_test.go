package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/backend/static"
	"github.com/luchador-ml/luchador/internal/backend/symbolic"
	"github.com/luchador-ml/luchador/internal/tensor"
)

type fill []float64

func (f fill) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	return tensor.FromSliceAs(f, shape, dtype)
}

var engines = []struct {
	name string
	new  func() backend.Backend
}{
	{"symbolic", func() backend.Backend { return symbolic.New() }},
	{"static", func() backend.Backend { return static.New() }},
}

func forEachEngine(t *testing.T, fn func(t *testing.T, b backend.Backend)) {
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			b := e.new()
			defer b.Close()
			fn(t, b)
		})
	}
}

func arr(t *testing.T, data []float64, shape ...int) *tensor.Array {
	t.Helper()
	a, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return a
}

func TestPlaceholderPassThrough(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		x, err := b.Placeholder(tensor.NewPartialShape(-1, 4), tensor.Float64)
		require.NoError(t, err)
		require.NoError(t, b.Initialize())

		fn, err := b.Compile(backend.FunctionSpec{Inputs: []backend.Handle{x}, Outputs: []backend.Handle{x}})
		require.NoError(t, err)

		batch := arr(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 3, 4)
		out, err := fn.Call([]*tensor.Array{batch})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.True(t, batch.Equal(out[0]))

		_, err = fn.Call([]*tensor.Array{arr(t, []float64{1, 2, 3}, 1, 3)})
		assert.Error(t, err)
	})
}

func TestDenseExpression(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		x, err := b.Placeholder(tensor.NewPartialShape(-1, 2), tensor.Float64)
		require.NoError(t, err)
		w, err := b.Variable(tensor.Shape{2, 2}, tensor.Float64, fill{1, 2, 3, 4})
		require.NoError(t, err)
		bias, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{-10, 10})
		require.NoError(t, err)

		prod, err := b.Apply(backend.MatMul, backend.Attrs{}, x, w)
		require.NoError(t, err)
		sum, err := b.Apply(backend.Add, backend.Attrs{}, prod, bias)
		require.NoError(t, err)
		out, err := b.Apply(backend.ReLU, backend.Attrs{}, sum)
		require.NoError(t, err)
		require.NoError(t, b.Initialize())

		fn, err := b.Compile(backend.FunctionSpec{Inputs: []backend.Handle{x}, Outputs: []backend.Handle{out, prod}})
		require.NoError(t, err)
		res, err := fn.Call([]*tensor.Array{arr(t, []float64{1, 1, 2, 0}, 2, 2)})
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 16, 0, 14}, res[0].Data())
		assert.Equal(t, []float64{4, 6, 2, 4}, res[1].Data())
	})
}

func TestUnfedPlaceholder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		x, err := b.Placeholder(tensor.NewPartialShape(2), tensor.Float64)
		require.NoError(t, err)
		y, err := b.Apply(backend.Scale, backend.Attrs{Scalar: 2}, x)
		require.NoError(t, err)

		_, err = b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{y}})
		assert.ErrorIs(t, err, backend.ErrUnfedPlaceholder)
	})
}

func TestGivensSubstitute(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		x, err := b.Placeholder(tensor.NewPartialShape(2), tensor.Float64)
		require.NoError(t, err)
		c, err := b.Constant(arr(t, []float64{3, 4}, 2))
		require.NoError(t, err)
		y, err := b.Apply(backend.Scale, backend.Attrs{Scalar: 2}, x)
		require.NoError(t, err)
		require.NoError(t, b.Initialize())

		fn, err := b.Compile(backend.FunctionSpec{
			Outputs: []backend.Handle{y},
			Givens:  map[backend.Handle]backend.Handle{x: c},
		})
		require.NoError(t, err)
		res, err := fn.Call(nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{6, 8}, res[0].Data())
	})
}

func TestUpdatesAreSynchronized(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		a, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{1, 2})
		require.NoError(t, err)
		c, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{10, 20})
		require.NoError(t, err)

		// swap: both values are read before either is written
		swap, err := b.NewUpdate([]backend.Update{{Target: a, Value: c}, {Target: c, Value: a}})
		require.NoError(t, err)
		require.NoError(t, b.Initialize())

		fn, err := b.Compile(backend.FunctionSpec{Updates: []backend.Handle{swap}})
		require.NoError(t, err)
		_, err = fn.Call(nil)
		require.NoError(t, err)

		read, err := b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{a, c}})
		require.NoError(t, err)
		res, err := read.Call(nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 20}, res[0].Data())
		assert.Equal(t, []float64{1, 2}, res[1].Data())
	})
}

func TestFailedUpdateWritesNothing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		a, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{1, 2})
		require.NoError(t, err)
		c, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{3, 4})
		require.NoError(t, err)
		wide, err := b.Constant(arr(t, []float64{1, 2, 3}, 3))
		require.NoError(t, err)

		upd, err := b.NewUpdate([]backend.Update{{Target: a, Value: c}, {Target: c, Value: wide}})
		require.NoError(t, err)
		require.NoError(t, b.Initialize())

		fn, err := b.Compile(backend.FunctionSpec{Updates: []backend.Handle{upd}})
		require.NoError(t, err)
		_, err = fn.Call(nil)
		require.Error(t, err)

		read, err := b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{a}})
		require.NoError(t, err)
		res, err := read.Call(nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, res[0].Data())
	})
}

func TestDuplicateTarget(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		a, err := b.Variable(tensor.Shape{1}, tensor.Float64, fill{1})
		require.NoError(t, err)
		u1, err := b.NewUpdate([]backend.Update{{Target: a, Value: a}})
		require.NoError(t, err)
		u2, err := b.NewUpdate([]backend.Update{{Target: a, Value: a}})
		require.NoError(t, err)

		_, err = b.Compile(backend.FunctionSpec{Updates: []backend.Handle{u1, u2}})
		assert.ErrorIs(t, err, backend.ErrDuplicateTarget)
	})
}

func TestUpdateTargetMustBeVariable(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		c, err := b.Constant(tensor.Scalar(1))
		require.NoError(t, err)
		_, err = b.NewUpdate([]backend.Update{{Target: c, Value: c}})
		assert.ErrorIs(t, err, backend.ErrNotVariable)
	})
}

func TestForeignHandle(t *testing.T) {
	sym := symbolic.New()
	st := static.New()
	x, err := sym.Placeholder(tensor.NewPartialShape(1), tensor.Float64)
	require.NoError(t, err)

	_, err = st.Apply(backend.ReLU, backend.Attrs{}, x)
	assert.ErrorIs(t, err, backend.ErrForeignHandle)

	other := symbolic.New()
	_, err = other.Compile(backend.FunctionSpec{Outputs: []backend.Handle{x}})
	assert.ErrorIs(t, err, backend.ErrForeignHandle)
}

func TestClosedBackend(t *testing.T) {
	forEachEngine(t, func(t *testing.T, b backend.Backend) {
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())
		_, err := b.Placeholder(tensor.NewPartialShape(1), tensor.Float64)
		assert.ErrorIs(t, err, backend.ErrClosed)
		assert.ErrorIs(t, b.Initialize(), backend.ErrClosed)
	})
}

func TestStaticRequiresInitialize(t *testing.T) {
	b := static.New()
	v, err := b.Variable(tensor.Shape{2}, tensor.Float64, fill{1, 2})
	require.NoError(t, err)
	fn, err := b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{v}})
	require.NoError(t, err)

	_, err = fn.Call(nil)
	assert.ErrorIs(t, err, backend.ErrUninitialized)

	require.NoError(t, b.Initialize())
	res, err := fn.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, res[0].Data())
}

func TestStaticInitializeResets(t *testing.T) {
	b := static.New()
	v, err := b.Variable(tensor.Shape{1}, tensor.Float64, fill{1})
	require.NoError(t, err)
	ten, err := b.Constant(arr(t, []float64{10}, 1))
	require.NoError(t, err)
	upd, err := b.NewUpdate([]backend.Update{{Target: v, Value: ten}})
	require.NoError(t, err)
	require.NoError(t, b.Initialize())

	set, err := b.Compile(backend.FunctionSpec{Updates: []backend.Handle{upd}})
	require.NoError(t, err)
	_, err = set.Call(nil)
	require.NoError(t, err)

	require.NoError(t, b.Initialize())
	read, err := b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{v}})
	require.NoError(t, err)
	res, err := read.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, res[0].Data())
}

func TestSymbolicInitializeKeepsState(t *testing.T) {
	b := symbolic.New()
	v, err := b.Variable(tensor.Shape{1}, tensor.Float64, fill{1})
	require.NoError(t, err)
	ten, err := b.Constant(arr(t, []float64{10}, 1))
	require.NoError(t, err)
	upd, err := b.NewUpdate([]backend.Update{{Target: v, Value: ten}})
	require.NoError(t, err)

	set, err := b.Compile(backend.FunctionSpec{Updates: []backend.Handle{upd}})
	require.NoError(t, err)
	_, err = set.Call(nil)
	require.NoError(t, err)

	require.NoError(t, b.Initialize())
	read, err := b.Compile(backend.FunctionSpec{Outputs: []backend.Handle{v}})
	require.NoError(t, err)
	res, err := read.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, res[0].Data())
}
