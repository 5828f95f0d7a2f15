package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/internal/backend/symbolic"
	"github.com/luchador-ml/luchador/internal/tensor"
)

type zeros struct{}

func (zeros) Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	return tensor.NewArray(shape, dtype)
}

func newTestContext() *Context {
	return NewContext(symbolic.New())
}

func TestDuplicateNameStrict(t *testing.T) {
	ctx := newTestContext()

	_, err := NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)
	_, err = NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = NewInput(ctx, "x", tensor.NewPartialShape(-1, 2), tensor.Float32)
	require.NoError(t, err)
	_, err = NewInput(ctx, "x", tensor.NewPartialShape(-1, 2), tensor.Float32)
	assert.ErrorIs(t, err, ErrDuplicateName)

	// categories are independent
	_, err = NewInput(ctx, "w", tensor.NewPartialShape(2), tensor.Float32)
	assert.NoError(t, err)
}

func TestAllowReuseReplaces(t *testing.T) {
	ctx := newTestContext()
	first, err := NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)

	var second *Variable
	err = ctx.VariableScope("", AllowReuse, func() error {
		var err error
		second, err = NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true)
		return err
	})
	require.NoError(t, err)

	got, err := ctx.GetVariable("w")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
	assert.Len(t, ctx.Variables(), 1)
}

func TestRetrieveReturnsIdentity(t *testing.T) {
	ctx := newTestContext()
	in, err := NewInput(ctx, "state", tensor.NewPartialShape(-1, 4), tensor.Float32)
	require.NoError(t, err)

	w, err := ctx.Retrieve(CategoryInput, "state")
	require.NoError(t, err)
	assert.Same(t, in, w)

	got, err := ctx.GetInput("state")
	require.NoError(t, err)
	assert.Same(t, in, got)

	_, err = ctx.GetInput("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ctx.GetVariable("state")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScopedNames(t *testing.T) {
	ctx := newTestContext()
	var v *Variable
	err := ctx.VariableScope("pre_trans", Strict, func() error {
		assert.Equal(t, "pre_trans", ctx.Scope())
		return ctx.VariableScope("dense", Strict, func() error {
			assert.Equal(t, "pre_trans/dense", ctx.Scope())
			var err error
			v, err = NewVariable(ctx, "weight", tensor.Shape{2, 2}, tensor.Float32, zeros{}, true)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "pre_trans/dense/weight", v.Name())
	assert.Equal(t, "", ctx.Scope())

	got, err := ctx.GetVariable("pre_trans/dense/weight")
	require.NoError(t, err)
	assert.Same(t, v, got)

	// scoped lookup falls back to the root name
	err = ctx.VariableScope("pre_trans", Strict, func() error {
		got, err := ctx.GetVariable("dense/weight")
		require.NoError(t, err)
		assert.Same(t, v, got)
		got, err = ctx.GetVariable("pre_trans/dense/weight")
		require.NoError(t, err)
		assert.Same(t, v, got)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []*Variable{v}, ctx.VariablesIn("pre_trans"))
	assert.Empty(t, ctx.VariablesIn("pre"))
}

func TestScopeRestoredOnError(t *testing.T) {
	ctx := newTestContext()
	boom := errors.New("boom")

	err := ctx.VariableScope("outer", Strict, func() error {
		err := ctx.VariableScope("inner", AllowReuse, func() error {
			return boom
		})
		assert.Equal(t, "outer", ctx.Scope())
		assert.Equal(t, Strict, ctx.ReuseMode())
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "", ctx.Scope())
}

func TestScopeRestoredOnPanic(t *testing.T) {
	ctx := newTestContext()
	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		_ = ctx.VariableScope("outer", AllowReuse, func() error {
			return ctx.VariableScope("inner", Strict, func() error {
				panic("boom")
			})
		})
	}()
	assert.Equal(t, "", ctx.Scope())
	assert.Equal(t, Strict, ctx.ReuseMode())
}

func TestEmptyScopeNameOnlyChangesMode(t *testing.T) {
	ctx := newTestContext()
	err := ctx.VariableScope("a", Strict, func() error {
		return ctx.VariableScope("", AllowReuse, func() error {
			assert.Equal(t, "a", ctx.Scope())
			assert.Equal(t, AllowReuse, ctx.ReuseMode())
			return nil
		})
	})
	require.NoError(t, err)
}

func TestUnnamedNotRegistered(t *testing.T) {
	ctx := newTestContext()
	_, err := NewVariable(ctx, "", tensor.Shape{1}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)
	_, err = NewVariable(ctx, "", tensor.Shape{1}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)
	assert.Empty(t, ctx.Variables())
	assert.Empty(t, ctx.Names(CategoryVariable))
}

func TestRebind(t *testing.T) {
	ctx := newTestContext()
	a, err := NewInput(ctx, "a", tensor.NewPartialShape(2), tensor.Float32)
	require.NoError(t, err)
	b, err := NewInput(ctx, "b", tensor.NewPartialShape(2), tensor.Float32)
	require.NoError(t, err)

	original := a.Unwrap()
	a.Rebind(b.Unwrap())
	assert.Equal(t, b.Unwrap(), a.Unwrap())
	assert.NotEqual(t, original, a.Unwrap())
	assert.Equal(t, "a", a.Name())
	assert.Equal(t, tensor.NewPartialShape(2), a.Shape())
}

func TestShapeIsACopy(t *testing.T) {
	ctx := newTestContext()
	in, err := NewInput(ctx, "", tensor.NewPartialShape(-1, 4), tensor.Float32)
	require.NoError(t, err)
	s := in.Shape()
	s[1] = 7
	assert.Equal(t, tensor.NewPartialShape(-1, 4), in.Shape())
	assert.Equal(t, 2, in.NDim())
}

func TestReset(t *testing.T) {
	ctx := newTestContext()
	_, err := NewVariable(ctx, "w", tensor.Shape{1}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)
	ctx.RegisterModel("model", struct{}{})

	ctx.Reset()
	_, err = ctx.GetVariable("w")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ctx.LookupModel("model")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewVariable(ctx, "w", tensor.Shape{1}, tensor.Float32, zeros{}, true)
	assert.NoError(t, err)
}

func TestModelRegistryOverwrites(t *testing.T) {
	ctx := newTestContext()
	first, second := &struct{ n int }{1}, &struct{ n int }{2}
	assert.Equal(t, "q", ctx.RegisterModel("q", first))
	ctx.RegisterModel("q", second)

	got, err := ctx.LookupModel("q")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, []string{"q"}, ctx.ModelNames())
}

func TestOperationRegistered(t *testing.T) {
	ctx := newTestContext()
	op, err := NewOperation(ctx, nil, "sync")
	require.NoError(t, err)
	got, err := ctx.GetOperation("sync")
	require.NoError(t, err)
	assert.Same(t, op, got)

	_, err = NewOperation(ctx, nil, "sync")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := newTestContext()
	kept, err := NewVariable(ctx, "kept", tensor.Shape{1}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = ctx.Transaction(func() error {
		return ctx.VariableScope("net", Strict, func() error {
			if _, err := NewInput(ctx, "x", tensor.NewPartialShape(-1, 2), tensor.Float32); err != nil {
				return err
			}
			if _, err := NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true); err != nil {
				return err
			}
			ctx.RegisterModel("m", "model")
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, ctx.Names(CategoryInput))
	assert.Equal(t, []string{"kept"}, ctx.Names(CategoryVariable))
	assert.Equal(t, []*Variable{kept}, ctx.Variables())
	assert.Empty(t, ctx.ModelNames())

	// The same names can be registered again.
	err = ctx.VariableScope("net", Strict, func() error {
		_, err := NewInput(ctx, "x", tensor.NewPartialShape(-1, 2), tensor.Float32)
		return err
	})
	assert.NoError(t, err)
}

func TestTransactionRestoresReplacedEntries(t *testing.T) {
	ctx := newTestContext()
	first, err := NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true)
	require.NoError(t, err)

	err = ctx.Transaction(func() error {
		return ctx.VariableScope("", AllowReuse, func() error {
			if _, err := NewVariable(ctx, "w", tensor.Shape{2}, tensor.Float32, zeros{}, true); err != nil {
				return err
			}
			return ErrConfiguration
		})
	})
	assert.ErrorIs(t, err, ErrConfiguration)

	got, err := ctx.GetVariable("w")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Len(t, ctx.Variables(), 1)
}

func TestTransactionNested(t *testing.T) {
	ctx := newTestContext()
	err := ctx.Transaction(func() error {
		err := ctx.Transaction(func() error {
			_, err := NewVariable(ctx, "inner", tensor.Shape{1}, tensor.Float32, zeros{}, true)
			return err
		})
		require.NoError(t, err)
		_, err = NewVariable(ctx, "outer", tensor.Shape{1}, tensor.Float32, zeros{}, true)
		require.NoError(t, err)
		return ErrInvalidArgument
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, ctx.Variables())

	// A committed transaction keeps its names.
	require.NoError(t, ctx.Transaction(func() error {
		_, err := NewVariable(ctx, "w", tensor.Shape{1}, tensor.Float32, zeros{}, true)
		return err
	}))
	assert.Equal(t, []string{"w"}, ctx.Names(CategoryVariable))
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	ctx := newTestContext()
	assert.Panics(t, func() {
		_ = ctx.Transaction(func() error {
			if _, err := NewVariable(ctx, "w", tensor.Shape{1}, tensor.Float32, zeros{}, true); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Empty(t, ctx.Variables())
}
