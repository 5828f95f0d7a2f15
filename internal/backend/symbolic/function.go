package symbolic

import (
	"fmt"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

type function struct {
	owner   *Backend
	inputs  []*Expr
	outputs []*Expr
	assigns []assign
	givens  map[*Expr]*Expr
}

// Compile checks that every placeholder reachable from the outputs and
// update values is fed or given, and returns a closure over the trees.
func (b *Backend) Compile(spec backend.FunctionSpec) (backend.Function, error) {
	f := &function{owner: b, givens: make(map[*Expr]*Expr, len(spec.Givens))}

	fed := make(map[*Expr]bool, len(spec.Inputs))
	for i, h := range spec.Inputs {
		e, err := b.expr(h)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if e.kind != placeholderExpr {
			return nil, fmt.Errorf("input %d: %v is not a placeholder", i, e)
		}
		f.inputs = append(f.inputs, e)
		fed[e] = true
	}
	for from, to := range spec.Givens {
		src, err := b.expr(from)
		if err != nil {
			return nil, fmt.Errorf("given key: %w", err)
		}
		dst, err := b.expr(to)
		if err != nil {
			return nil, fmt.Errorf("given value: %w", err)
		}
		f.givens[src] = dst
	}
	for i, h := range spec.Outputs {
		e, err := b.expr(h)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if e.kind == updateExpr {
			return nil, fmt.Errorf("output %d: %v is an update", i, e)
		}
		f.outputs = append(f.outputs, e)
	}

	targets := make(map[*Expr]bool)
	for i, h := range spec.Updates {
		e, err := b.expr(h)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		if e.kind != updateExpr {
			return nil, fmt.Errorf("update %d: %v is not an update", i, e)
		}
		for _, a := range e.assigns {
			if targets[a.target] {
				return nil, fmt.Errorf("%w: %v", backend.ErrDuplicateTarget, a.target)
			}
			targets[a.target] = true
			f.assigns = append(f.assigns, a)
		}
	}

	state := make(map[*Expr]int)
	roots := append([]*Expr(nil), f.outputs...)
	for _, a := range f.assigns {
		roots = append(roots, a.value)
	}
	for _, e := range roots {
		if err := f.checkFed(e, fed, state); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *function) resolve(e *Expr) *Expr {
	if g, ok := f.givens[e]; ok {
		return g
	}
	return e
}

const (
	visiting = iota + 1
	visited
)

// checkFed walks the tree under e after given substitution. It fails on an
// unfed placeholder or on a cycle introduced by givens.
func (f *function) checkFed(e *Expr, fed map[*Expr]bool, state map[*Expr]int) error {
	e = f.resolve(e)
	switch state[e] {
	case visited:
		return nil
	case visiting:
		return fmt.Errorf("%v could not be computed (cycle in computation graph)", e)
	}
	state[e] = visiting
	if e.kind == placeholderExpr && !fed[e] {
		return fmt.Errorf("%w: %v", backend.ErrUnfedPlaceholder, e)
	}
	for _, arg := range e.args {
		if err := f.checkFed(arg, fed, state); err != nil {
			return err
		}
	}
	state[e] = visited
	return nil
}

// Call evaluates outputs and update values against the current state, then
// writes the updates.
func (f *function) Call(feeds []*tensor.Array) ([]*tensor.Array, error) {
	b := f.owner
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	if len(feeds) != len(f.inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", backend.ErrFeedCount, len(feeds), len(f.inputs))
	}

	ev := &evaluator{f: f, memo: make(map[*Expr]*tensor.Array), feeds: make(map[*Expr]*tensor.Array, len(feeds))}
	for i, in := range f.inputs {
		if feeds[i] == nil || !in.shape.Compatible(feeds[i].Shape()) {
			return nil, fmt.Errorf("feed %d for %v has incompatible shape", i, in)
		}
		ev.feeds[in] = feeds[i].Cast(in.dtype)
	}

	outputs := make([]*tensor.Array, len(f.outputs))
	for i, e := range f.outputs {
		v, err := ev.eval(e)
		if err != nil {
			return nil, err
		}
		outputs[i] = v.Clone()
	}

	values := make([]*tensor.Array, len(f.assigns))
	for i, a := range f.assigns {
		v, err := ev.eval(a.value)
		if err != nil {
			return nil, err
		}
		if !a.target.value.Shape().Equal(v.Shape()) {
			return nil, fmt.Errorf("update of %v: value shape %v does not match %v", a.target, v.Shape(), a.target.value.Shape())
		}
		values[i] = v.Cast(a.target.dtype)
	}
	for i, a := range f.assigns {
		a.target.value = values[i]
	}
	return outputs, nil
}

type evaluator struct {
	f     *function
	memo  map[*Expr]*tensor.Array
	feeds map[*Expr]*tensor.Array
}

func (ev *evaluator) eval(e *Expr) (*tensor.Array, error) {
	e = ev.f.resolve(e)
	if v, ok := ev.memo[e]; ok {
		return v, nil
	}
	var (
		v   *tensor.Array
		err error
	)
	switch e.kind {
	case placeholderExpr:
		var ok bool
		if v, ok = ev.feeds[e]; !ok {
			return nil, fmt.Errorf("%w: %v", backend.ErrUnfedPlaceholder, e)
		}
	case variableExpr, constantExpr:
		v = e.value
	case applyExpr:
		args := make([]*tensor.Array, len(e.args))
		for i, arg := range e.args {
			if args[i], err = ev.eval(arg); err != nil {
				return nil, err
			}
		}
		if v, err = compute(e.op, e.attrs, args); err != nil {
			return nil, fmt.Errorf("evaluating %v: %w", e, err)
		}
	default:
		return nil, fmt.Errorf("cannot evaluate %v", e)
	}
	ev.memo[e] = v
	return v, nil
}
