package session

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/checkpoint"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/ops"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// LoadDataset assigns every value to the variable registered under its
// name, in one run. Unknown names fail with ErrNotFound and values that do
// not fit their variable with ErrInvalidArgument; either way no variable
// is written.
func (s *Session) LoadDataset(data map[string]*tensor.Array) error {
	if err := s.checkState(); err != nil {
		return err
	}
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	var op *graph.Operation
	err := s.gctx.VariableScope("", graph.AllowReuse, func() error {
		assigns := make([]ops.Assignment, 0, len(names))
		for _, name := range names {
			v, err := s.gctx.GetVariable(name)
			if err != nil {
				return err
			}
			value := data[name]
			if value == nil {
				return errors.Wrapf(graph.ErrInvalidArgument, "dataset entry %q is nil", name)
			}
			if !v.Shape().Compatible(value.Shape()) {
				return errors.Wrapf(graph.ErrInvalidArgument,
					"dataset entry %q of shape %v does not fit %s", name, value.Shape(), v)
			}
			c, err := ops.Constant(s.gctx, value.Cast(v.DType()), "")
			if err != nil {
				return err
			}
			assigns = append(assigns, ops.Assignment{Target: v, Value: c})
		}
		var err error
		op, err = ops.Group(s.gctx, "", assigns...)
		return err
	})
	if err != nil {
		return errors.WithMessage(err, "loading dataset")
	}
	if _, err := s.Run(RunOptions{Updates: []*graph.Operation{op}}); err != nil {
		return errors.WithMessage(err, "loading dataset")
	}
	klog.V(2).InfoS("Loaded dataset", "session", s.id, "variables", len(names))
	return nil
}

// Values returns the current value of every named variable.
func (s *Session) Values() (map[string]*tensor.Array, error) {
	var vars []*graph.Variable
	for _, v := range s.gctx.Variables() {
		if v.Name() != "" {
			vars = append(vars, v)
		}
	}
	outputs := make([]graph.Value, len(vars))
	for i, v := range vars {
		outputs[i] = v
	}
	values, err := s.Run(RunOptions{Outputs: outputs})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*tensor.Array, len(vars))
	for i, v := range vars {
		out[v.Name()] = values[i]
	}
	return out, nil
}

// SaveCheckpoint writes every named variable to store under key.
func (s *Session) SaveCheckpoint(ctx context.Context, store checkpoint.Store, key string) error {
	values, err := s.Values()
	if err != nil {
		return errors.WithMessage(err, "reading variables")
	}
	opts := checkpoint.WriteOptions{
		Backend:  s.gctx.Backend().Name(),
		Metadata: map[string]string{"session": s.id.String()},
	}
	if err := checkpoint.Save(ctx, store, key, values, opts); err != nil {
		return err
	}
	klog.FromContext(ctx).V(1).Info("Saved checkpoint", "session", s.id, "key", key, "variables", len(values))
	return nil
}

// LoadCheckpoint restores the variables stored under key. Every stored
// variable must exist in the session's context.
func (s *Session) LoadCheckpoint(ctx context.Context, store checkpoint.Store, key string) error {
	c, err := checkpoint.Load(ctx, store, key)
	if err != nil {
		return err
	}
	if err := s.LoadDataset(c.Tensors); err != nil {
		return errors.WithMessagef(err, "checkpoint %q", key)
	}
	klog.FromContext(ctx).V(1).Info("Loaded checkpoint", "session", s.id, "key", key, "backend", c.Header.Backend)
	return nil
}
