// Package symbolic implements the define-by-run engine.
//
// Every handle is an *Expr built eagerly when the graph is constructed.
// Variables are sampled from their initializer at creation, so Initialize
// has nothing to do and may be called any number of times. A compiled
// Function is a closure that walks the expression trees on each call.
package symbolic

import (
	"fmt"
	"sync"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Name is the engine name reported by Backend.Name.
const Name = "symbolic"

type exprKind int

const (
	placeholderExpr exprKind = iota
	variableExpr
	constantExpr
	applyExpr
	updateExpr
)

// Expr is a node of an expression tree.
type Expr struct {
	owner *Backend
	id    int
	kind  exprKind

	op    backend.OpKind
	attrs backend.Attrs
	args  []*Expr

	shape tensor.PartialShape
	dtype tensor.DataType

	// value holds the current state of a variable, or a constant.
	value *tensor.Array

	assigns []assign
}

type assign struct {
	target *Expr
	value  *Expr
}

func (e *Expr) String() string {
	switch e.kind {
	case placeholderExpr:
		return fmt.Sprintf("placeholder#%d%s", e.id, e.shape)
	case variableExpr:
		return fmt.Sprintf("variable#%d%s", e.id, e.shape)
	case constantExpr:
		return fmt.Sprintf("constant#%d%s", e.id, e.shape)
	case updateExpr:
		return fmt.Sprintf("update#%d", e.id)
	default:
		return fmt.Sprintf("%s#%d", e.op, e.id)
	}
}

// Backend is the define-by-run engine.
type Backend struct {
	mu     sync.Mutex
	nextID int
	closed bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a symbolic backend.
func New() *Backend {
	return &Backend{}
}

// Name returns "symbolic".
func (b *Backend) Name() string {
	return Name
}

func (b *Backend) newExpr(kind exprKind) (*Expr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	b.nextID++
	return &Expr{owner: b, id: b.nextID, kind: kind}, nil
}

// Placeholder creates a feed point.
func (b *Backend) Placeholder(shape tensor.PartialShape, dtype tensor.DataType) (backend.Handle, error) {
	e, err := b.newExpr(placeholderExpr)
	if err != nil {
		return nil, err
	}
	e.shape = shape.Clone()
	e.dtype = dtype
	return e, nil
}

// Variable creates a variable and samples its value immediately.
func (b *Backend) Variable(shape tensor.Shape, dtype tensor.DataType, init backend.Initializer) (backend.Handle, error) {
	if init == nil {
		return nil, fmt.Errorf("variable %v: nil initializer", shape)
	}
	value, err := init.Sample(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("variable %v: %w", shape, err)
	}
	if !value.Shape().Equal(shape) {
		return nil, fmt.Errorf("variable %v: initializer produced shape %v", shape, value.Shape())
	}
	e, err := b.newExpr(variableExpr)
	if err != nil {
		return nil, err
	}
	e.shape = shape.Partial()
	e.dtype = dtype
	e.value = value
	return e, nil
}

// Constant embeds a copy of value.
func (b *Backend) Constant(value *tensor.Array) (backend.Handle, error) {
	e, err := b.newExpr(constantExpr)
	if err != nil {
		return nil, err
	}
	e.shape = value.Shape().Partial()
	e.dtype = value.DType()
	e.value = value.Clone()
	return e, nil
}

// Apply creates a derived expression.
func (b *Backend) Apply(op backend.OpKind, attrs backend.Attrs, inputs ...backend.Handle) (backend.Handle, error) {
	if len(inputs) != op.Arity() {
		return nil, fmt.Errorf("%s: expected %d inputs, got %d", op, op.Arity(), len(inputs))
	}
	args := make([]*Expr, len(inputs))
	for i, h := range inputs {
		e, err := b.expr(h)
		if err != nil {
			return nil, fmt.Errorf("%s: input %d: %w", op, i, err)
		}
		if e.kind == updateExpr {
			return nil, fmt.Errorf("%s: input %d is an update", op, i)
		}
		args[i] = e
	}
	e, err := b.newExpr(applyExpr)
	if err != nil {
		return nil, err
	}
	e.op = op
	e.attrs = attrs
	e.args = args
	e.dtype = args[0].dtype
	return e, nil
}

// NewUpdate groups assignments.
func (b *Backend) NewUpdate(updates []backend.Update) (backend.Handle, error) {
	assigns := make([]assign, len(updates))
	for i, u := range updates {
		target, err := b.expr(u.Target)
		if err != nil {
			return nil, fmt.Errorf("update %d target: %w", i, err)
		}
		if target.kind != variableExpr {
			return nil, fmt.Errorf("update %d: %w", i, backend.ErrNotVariable)
		}
		value, err := b.expr(u.Value)
		if err != nil {
			return nil, fmt.Errorf("update %d value: %w", i, err)
		}
		assigns[i] = assign{target: target, value: value}
	}
	e, err := b.newExpr(updateExpr)
	if err != nil {
		return nil, err
	}
	e.assigns = assigns
	return e, nil
}

// Initialize is a no-op; variables already hold their sampled values.
func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	return nil
}

// Close marks the backend closed. It is safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) expr(h backend.Handle) (*Expr, error) {
	e, ok := h.(*Expr)
	if !ok || e == nil || e.owner != b {
		return nil, fmt.Errorf("%w: %v", backend.ErrForeignHandle, h)
	}
	return e, nil
}
