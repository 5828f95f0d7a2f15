package layer

import (
	"github.com/pkg/errors"

	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/ops"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Flatten reshapes [batch, d1, d2, ...] into [batch, d1*d2*...].
//
// Every dimension but the batch dimension must be known.
type Flatten struct {
	name string
}

// NewFlatten creates a Flatten layer. An empty name defaults to "Flatten".
func NewFlatten(name string) *Flatten {
	return &Flatten{name: nameOr(name, "Flatten")}
}

// Name returns the layer name.
func (f *Flatten) Name() string {
	return f.name
}

// Build reshapes input to two dimensions.
func (f *Flatten) Build(ctx *graph.Context, input graph.Value) (*graph.Tensor, error) {
	if err := checkInput("Flatten", input); err != nil {
		return nil, err
	}
	shape := input.Shape()
	if len(shape) < 1 {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "flatten %q: scalar input", f.name)
	}
	features := 1
	for _, d := range shape[1:] {
		if d == tensor.Unknown {
			return nil, errors.Wrapf(graph.ErrInvalidArgument, "flatten %q: non-batch dimensions of %s must be known", f.name, shape)
		}
		features *= d
	}
	var out *graph.Tensor
	err := scoped(ctx, f.name, func() error {
		var err error
		out, err = ops.Reshape(input, tensor.Unknown, features)
		return err
	})
	return out, err
}

// Parameters returns nil.
func (f *Flatten) Parameters() []*graph.Variable {
	return nil
}

// Config returns the serialized form of the layer.
func (f *Flatten) Config() Config {
	return Config{Typename: "Flatten", Args: baseArgs(f.name)}
}

// transpose permutes the axes of a 4D input.
type transpose struct {
	typename string
	name     string
	perm     []int
}

// Name returns the layer name.
func (t *transpose) Name() string {
	return t.name
}

// Build permutes the axes of input, which must be 4D.
func (t *transpose) Build(ctx *graph.Context, input graph.Value) (*graph.Tensor, error) {
	if err := checkInput(t.typename, input); err != nil {
		return nil, err
	}
	if input.NDim() != 4 {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "%s %q: expected a 4D input, got %s", t.typename, t.name, input.Shape())
	}
	var out *graph.Tensor
	err := scoped(ctx, t.name, func() error {
		var err error
		out, err = ops.Transpose(input, t.perm...)
		return err
	})
	return out, err
}

// Parameters returns nil.
func (t *transpose) Parameters() []*graph.Variable {
	return nil
}

// Config returns the serialized form of the layer.
func (t *transpose) Config() Config {
	return Config{Typename: t.typename, Args: baseArgs(t.name)}
}

// NHWC2NCHW converts image batches from channel-last to channel-first.
type NHWC2NCHW struct {
	transpose
}

// NewNHWC2NCHW creates the layer. An empty name defaults to "NHWC2NCHW".
func NewNHWC2NCHW(name string) *NHWC2NCHW {
	return &NHWC2NCHW{transpose{typename: "NHWC2NCHW", name: nameOr(name, "NHWC2NCHW"), perm: []int{0, 3, 1, 2}}}
}

// NCHW2NHWC converts image batches from channel-first to channel-last.
type NCHW2NHWC struct {
	transpose
}

// NewNCHW2NHWC creates the layer. An empty name defaults to "NCHW2NHWC".
func NewNCHW2NHWC(name string) *NCHW2NHWC {
	return &NCHW2NHWC{transpose{typename: "NCHW2NHWC", name: nameOr(name, "NCHW2NHWC"), perm: []int{0, 2, 3, 1}}}
}
