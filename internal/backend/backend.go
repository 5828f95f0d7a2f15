// Package backend defines the contract shared by the graph engines.
//
// A Backend produces opaque handles for placeholders, variables, constants,
// derived values and grouped updates, and compiles sets of handles into
// callable Functions. Two implementations exist:
//   - symbolic: define-by-run expression trees evaluated on call
//   - static: a node arena compiled into a topologically ordered plan
//
// Callers choose one by constructing it and passing it to graph.NewContext.
package backend

import (
	"errors"

	"github.com/luchador-ml/luchador/internal/tensor"
)

// Handle is a backend-native reference to a graph node. Handles are
// comparable and only meaningful to the backend that created them.
type Handle any

// Errors reported by backends. Callers wrap them with their own taxonomy.
var (
	ErrForeignHandle     = errors.New("handle does not belong to this backend")
	ErrUnfedPlaceholder  = errors.New("placeholder is neither fed nor given")
	ErrNotVariable       = errors.New("update target is not a variable")
	ErrDuplicateTarget   = errors.New("variable is updated more than once")
	ErrUninitialized     = errors.New("variables are not initialized")
	ErrClosed            = errors.New("backend is closed")
	ErrFeedCount         = errors.New("number of feeds does not match compiled inputs")
	ErrUnsupportedOpKind = errors.New("unsupported op kind")
)

// Initializer samples the initial value of a variable.
type Initializer interface {
	Sample(shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error)
}

// Update assigns the value of Value to the variable Target.
type Update struct {
	Target Handle
	Value  Handle
}

// FunctionSpec describes what to compile.
type FunctionSpec struct {
	// Inputs are placeholders, in the order feeds are passed to Call.
	Inputs []Handle
	// Outputs are evaluated and returned in order.
	Outputs []Handle
	// Updates are handles returned by NewUpdate.
	Updates []Handle
	// Givens substitutes the value of the key with the value of the handle.
	Givens map[Handle]Handle
}

// Function is a compiled, callable artifact.
//
// Call computes every output and every update value from the state before
// the call, then writes the updates. If anything fails nothing is written.
type Function interface {
	Call(feeds []*tensor.Array) ([]*tensor.Array, error)
}

// Backend is a numerical engine.
type Backend interface {
	// Name returns the engine name.
	Name() string

	// Placeholder creates a feed point.
	Placeholder(shape tensor.PartialShape, dtype tensor.DataType) (Handle, error)

	// Variable creates persistent state sampled from init.
	Variable(shape tensor.Shape, dtype tensor.DataType, init Initializer) (Handle, error)

	// Constant embeds a fixed value.
	Constant(value *tensor.Array) (Handle, error)

	// Apply creates a derived value.
	Apply(op OpKind, attrs Attrs, inputs ...Handle) (Handle, error)

	// NewUpdate groups assignments into one update handle.
	NewUpdate(updates []Update) (Handle, error)

	// Compile builds a callable function.
	Compile(spec FunctionSpec) (Function, error)

	// Initialize materializes variable state.
	Initialize() error

	// Close releases resources. Further use fails with ErrClosed.
	Close() error
}
