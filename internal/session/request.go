package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// request is a validated RunOptions.
type request struct {
	spec   backend.FunctionSpec
	sig    signature
	inputs []*graph.Input
	feeds  map[*graph.Input]*tensor.Array
}

func (s *Session) newRequest(opts RunOptions) (*request, error) {
	req := &request{feeds: make(map[*graph.Input]*tensor.Array, len(opts.Inputs))}

	for i, f := range opts.Inputs {
		if f.Input == nil || f.Value == nil {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "feed %d: nil input or value", i)
		}
		if f.Input.Context() != s.gctx {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "feed %d: %s belongs to another context", i, f.Input)
		}
		if _, dup := req.feeds[f.Input]; dup {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "feed %d: %s is fed twice", i, f.Input)
		}
		if !f.Input.Shape().Compatible(f.Value.Shape()) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument,
				"feed %d: value of shape %v does not fit %s", i, f.Value.Shape(), f.Input)
		}
		req.feeds[f.Input] = f.Value.Cast(f.Input.DType())
		req.inputs = append(req.inputs, f.Input)
		req.spec.Inputs = append(req.spec.Inputs, f.Input.Unwrap())
		req.sig.inputNames = append(req.sig.inputNames, label(f.Input))
	}

	for i, v := range opts.Outputs {
		if graph.IsNil(v) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "output %d is nil", i)
		}
		if v.Context() != s.gctx {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "output %d belongs to another context", i)
		}
		req.spec.Outputs = append(req.spec.Outputs, v.Unwrap())
		req.sig.outputNames = append(req.sig.outputNames, label(v))
	}

	for i, op := range opts.Updates {
		if op == nil {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "update %d is nil", i)
		}
		if op.Context() != s.gctx {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "update %d: %s belongs to another context", i, op)
		}
		req.spec.Updates = append(req.spec.Updates, op.Unwrap())
		req.sig.updateNames = append(req.sig.updateNames, label(op))
	}

	if len(opts.Givens) > 0 {
		req.spec.Givens = make(map[backend.Handle]backend.Handle, len(opts.Givens))
		for k, v := range opts.Givens {
			if graph.IsNil(k) || graph.IsNil(v) {
				return nil, errors.Wrap(graph.ErrInvalidArgument, "givens contain a nil value")
			}
			if k.Context() != s.gctx || v.Context() != s.gctx {
				return nil, errors.Wrap(graph.ErrInvalidArgument, "givens belong to another context")
			}
			req.spec.Givens[k.Unwrap()] = v.Unwrap()
		}
	}

	req.sig.inputs = req.spec.Inputs
	req.sig.outputs = req.spec.Outputs
	req.sig.updates = req.spec.Updates
	req.sig.givens = req.spec.Givens
	return req, nil
}

type named interface {
	Name() string
}

// label names a node for log and error messages.
func label(n named) string {
	if name := n.Name(); name != "" {
		return name
	}
	return fmt.Sprint(n)
}

// signature identifies what a function was compiled for. Only the handles
// take part in equal; the names are for messages.
type signature struct {
	inputs  []backend.Handle
	outputs []backend.Handle
	updates []backend.Handle
	givens  map[backend.Handle]backend.Handle

	inputNames  []string
	outputNames []string
	updateNames []string
}

func (s signature) equal(o signature) bool {
	if !sameHandles(s.inputs, o.inputs) || !sameHandles(s.outputs, o.outputs) || !sameHandles(s.updates, o.updates) {
		return false
	}
	if len(s.givens) != len(o.givens) {
		return false
	}
	for k, v := range s.givens {
		if w, ok := o.givens[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func (s signature) String() string {
	return fmt.Sprintf("inputs %q, outputs %q, updates %q, %d givens",
		s.inputNames, s.outputNames, s.updateNames, len(s.givens))
}

func sameHandles(a, b []backend.Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// compiled is a cached function and the inputs it reads, in feed order.
type compiled struct {
	fn     backend.Function
	sig    signature
	inputs []*graph.Input
}

// bind orders feeds the way the function was compiled.
func (c *compiled) bind(feeds map[*graph.Input]*tensor.Array) ([]*tensor.Array, error) {
	out := make([]*tensor.Array, len(c.inputs))
	for i, in := range c.inputs {
		v, ok := feeds[in]
		if !ok {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s is not fed", in)
		}
		out[i] = v
	}
	return out, nil
}
