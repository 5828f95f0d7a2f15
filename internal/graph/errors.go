package graph

import "github.com/pkg/errors"

// Sentinel errors. Callers attach context with errors.Wrapf and test with
// errors.Is.
var (
	// ErrDuplicateName is returned when a name is registered twice outside
	// an AllowReuse scope.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrNotFound is returned when a registry lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration is returned for malformed or unknown model, layer or
	// initializer configurations.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidArgument is returned for malformed arguments to a session
	// run or to an op builder.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidValue is returned for out of range values such as a sync tau.
	ErrInvalidValue = errors.New("invalid value")

	// ErrCompilation is returned when the backend cannot build a function.
	ErrCompilation = errors.New("compilation failed")

	// ErrNotInitialized is returned when a session runs before Initialize.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
)
