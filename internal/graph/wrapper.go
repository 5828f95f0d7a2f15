package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Value is a readable graph node: a Tensor, Variable or Input.
type Value interface {
	Unwrap() backend.Handle
	Shape() tensor.PartialShape
	DType() tensor.DataType
	Name() string
	NDim() int
	Context() *Context
	base() *Wrapper
}

// IsNil reports whether v is nil, including a nil pointer of one of the
// concrete Value types.
func IsNil(v Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *Tensor:
		return t == nil
	case *Variable:
		return t == nil
	case *Input:
		return t == nil
	}
	return false
}

// Wrapper carries a backend handle, stored in a slot of the Context arena,
// together with its static metadata.
type Wrapper struct {
	ctx   *Context
	slot  int
	shape tensor.PartialShape
	name  string
	dtype tensor.DataType
}

func newWrapper(ctx *Context, h backend.Handle, shape tensor.PartialShape, dtype tensor.DataType) Wrapper {
	return Wrapper{ctx: ctx, slot: ctx.newSlot(h), shape: shape.Clone(), dtype: dtype}
}

// Unwrap returns the backend handle.
func (w *Wrapper) Unwrap() backend.Handle {
	return w.ctx.handle(w.slot)
}

// Rebind replaces the backend handle held in the wrapper's slot. Shape,
// name and dtype are unchanged.
func (w *Wrapper) Rebind(h backend.Handle) {
	w.ctx.rebind(w.slot, h)
}

// Shape returns a copy of the declared shape.
func (w *Wrapper) Shape() tensor.PartialShape {
	return w.shape.Clone()
}

// Name returns the fully qualified name, or "" when unnamed.
func (w *Wrapper) Name() string {
	return w.name
}

// DType returns the element type.
func (w *Wrapper) DType() tensor.DataType {
	return w.dtype
}

// NDim returns the rank.
func (w *Wrapper) NDim() int {
	return len(w.shape)
}

// Context returns the owning Context.
func (w *Wrapper) Context() *Context {
	return w.ctx
}

func (w *Wrapper) base() *Wrapper {
	return w
}

func (w *Wrapper) describe(kind string) string {
	if w.name == "" {
		return fmt.Sprintf("%s(shape=%s, dtype=%s)", kind, w.shape, w.dtype)
	}
	return fmt.Sprintf("%s(name=%q, shape=%s, dtype=%s)", kind, w.name, w.shape, w.dtype)
}

// Tensor is an intermediate value. Tensors are never registered.
type Tensor struct {
	Wrapper
}

// NewTensor wraps a derived handle. name is informational only.
func NewTensor(ctx *Context, h backend.Handle, shape tensor.PartialShape, dtype tensor.DataType, name string) *Tensor {
	t := &Tensor{Wrapper: newWrapper(ctx, h, shape, dtype)}
	if name != "" {
		t.name = ctx.ScopedName(name)
	}
	return t
}

func (t *Tensor) String() string {
	return t.describe("Tensor")
}

// Variable is persistent, updatable state.
type Variable struct {
	Wrapper
	trainable bool
}

// NewVariable creates a variable sampled from init and registers it when
// named.
func NewVariable(ctx *Context, name string, shape tensor.Shape, dtype tensor.DataType, init backend.Initializer, trainable bool) (*Variable, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "variable %q: %v", name, err)
	}
	h, err := ctx.backend.Variable(shape, dtype, init)
	if err != nil {
		return nil, errors.Wrapf(err, "creating variable %q", name)
	}
	v := &Variable{Wrapper: newWrapper(ctx, h, shape.Partial(), dtype), trainable: trainable}
	if name != "" {
		fq, err := ctx.Register(CategoryVariable, name, v)
		if err != nil {
			return nil, err
		}
		v.name = fq
	}
	return v, nil
}

// Trainable reports whether optimizers may update the variable.
func (v *Variable) Trainable() bool {
	return v.trainable
}

func (v *Variable) String() string {
	return v.describe("Variable")
}

// Input is a feed point.
type Input struct {
	Wrapper
}

// NewInput creates a placeholder and registers it when named. Negative
// dimensions in shape are unknown until fed.
func NewInput(ctx *Context, name string, shape tensor.PartialShape, dtype tensor.DataType) (*Input, error) {
	h, err := ctx.backend.Placeholder(shape, dtype)
	if err != nil {
		return nil, errors.Wrapf(err, "creating input %q", name)
	}
	in := &Input{Wrapper: newWrapper(ctx, h, shape, dtype)}
	if name != "" {
		fq, err := ctx.Register(CategoryInput, name, in)
		if err != nil {
			return nil, err
		}
		in.name = fq
	}
	return in, nil
}

func (in *Input) String() string {
	return in.describe("Input")
}

// Operation wraps a backend update handle.
type Operation struct {
	ctx  *Context
	slot int
	name string
}

// NewOperation wraps h and registers it when named.
func NewOperation(ctx *Context, h backend.Handle, name string) (*Operation, error) {
	op := &Operation{ctx: ctx, slot: ctx.newSlot(h)}
	if name != "" {
		fq, err := ctx.Register(CategoryOperation, name, op)
		if err != nil {
			return nil, err
		}
		op.name = fq
	}
	return op, nil
}

// Unwrap returns the backend handle.
func (op *Operation) Unwrap() backend.Handle {
	return op.ctx.handle(op.slot)
}

// Rebind replaces the backend handle.
func (op *Operation) Rebind(h backend.Handle) {
	op.ctx.rebind(op.slot, h)
}

// Name returns the fully qualified name, or "" when unnamed.
func (op *Operation) Name() string {
	return op.name
}

// Context returns the owning Context.
func (op *Operation) Context() *Context {
	return op.ctx
}

func (op *Operation) String() string {
	if op.name == "" {
		return "Operation"
	}
	return fmt.Sprintf("Operation(name=%q)", op.name)
}
