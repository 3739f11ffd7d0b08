package types

import "errors"

// Error classes. Concrete error types in the engine packages match one of
// these through errors.Is.
var (
	// ErrGraphStructure covers build time problems: missing endpoints, duplicate ids, missing entry or finish points
	ErrGraphStructure = errors.New("graph structure error")

	// ErrExecution is a node invocation failure
	ErrExecution = errors.New("execution error")

	// ErrTimeout is raised by node level and run level deadlines
	ErrTimeout = errors.New("timeout")

	// ErrInterrupt covers invalid, expired or missing resume tokens and interrupt points
	ErrInterrupt = errors.New("interrupt error")

	// ErrResourceLimit is raised when admission or usage ceilings are violated
	ErrResourceLimit = errors.New("resource limit exceeded")
)
