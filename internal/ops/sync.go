package ops

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Assignment writes Value into Target when the owning operation runs.
type Assignment struct {
	Target *graph.Variable
	Value  graph.Value
}

// Group creates one operation applying every assignment. All values are
// read before any target is written. The operation is registered when
// named.
func Group(ctx *graph.Context, name string, assigns ...Assignment) (*graph.Operation, error) {
	updates := make([]backend.Update, len(assigns))
	for i, a := range assigns {
		if a.Target == nil || graph.IsNil(a.Value) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "assignment %d: nil target or value", i)
		}
		if a.Target.Context() != ctx || a.Value.Context() != ctx {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "assignment %d belongs to another context", i)
		}
		if !compatible(a.Target.Shape(), a.Value.Shape()) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument,
				"assignment %d: cannot assign %s to %s of shape %s", i, a.Value.Shape(), a.Target.Name(), a.Target.Shape())
		}
		updates[i] = backend.Update{Target: a.Target.Unwrap(), Value: a.Value.Unwrap()}
	}
	h, err := ctx.Backend().NewUpdate(updates)
	if err != nil {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "group %q: %v", name, err)
	}
	return graph.NewOperation(ctx, h, name)
}

func compatible(a, b tensor.PartialShape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != tensor.Unknown && b[i] != tensor.Unknown && a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildSyncOp creates an operation copying each source into the target at
// the same position. With tau nil or zero the copy is exact; otherwise
//
//	target = tau * source + (1 - tau) * target
//
// tau must lie in [0, 1]. A zero tau does not leave targets unchanged: it
// is read as "no soft update", like nil. Targets that are not variables are
// skipped.
func BuildSyncOp(ctx *graph.Context, sources, targets []graph.Value, tau *float64, name string) (*graph.Operation, error) {
	if tau != nil && (*tau < 0 || *tau > 1) {
		return nil, errors.Wrapf(graph.ErrInvalidValue, "tau must be in [0, 1], got %v", *tau)
	}
	if len(sources) != len(targets) {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "got %d sources and %d targets", len(sources), len(targets))
	}

	var assigns []Assignment
	for i, src := range sources {
		tgt, ok := targets[i].(*graph.Variable)
		if !ok || tgt == nil {
			klog.V(2).InfoS("Skipping non-variable sync target", "index", i)
			continue
		}
		if graph.IsNil(src) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "source %d is nil", i)
		}
		if !compatible(src.Shape(), tgt.Shape()) {
			return nil, errors.Wrapf(graph.ErrInvalidArgument,
				"source %s %s does not match target %s %s", src.Name(), src.Shape(), tgt.Name(), tgt.Shape())
		}
		value := src
		if tau != nil && *tau != 0 {
			blended, err := blend(src, tgt, *tau)
			if err != nil {
				return nil, err
			}
			value = blended
		}
		assigns = append(assigns, Assignment{Target: tgt, Value: value})
	}
	return Group(ctx, name, assigns...)
}

func blend(src, tgt graph.Value, tau float64) (*graph.Tensor, error) {
	a, err := Scale(src, tau)
	if err != nil {
		return nil, err
	}
	b, err := Scale(tgt, 1-tau)
	if err != nil {
		return nil, err
	}
	return Add(a, b)
}
