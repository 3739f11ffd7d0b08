package graph

import (
	"errors"
	"fmt"

	"github.com/avi3tal/graphflow/pkg/types"
)

var (
	// ErrInvalidNode is returned when a node fails validation
	ErrInvalidNode = errors.New("invalid node")

	// ErrDuplicateNode is returned when adding a node that already exists
	ErrDuplicateNode = errors.New("node with this ID already exists")

	// ErrNodeNotFound is returned when referencing a non-existent node
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when removing an edge that does not exist
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrInvalidEdge is returned when an edge definition is malformed
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrCyclicDependency is returned when a cycle is detected where an acyclic graph is required
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrNoEntryPoint is returned when validating a graph with no entry point
	ErrNoEntryPoint = errors.New("graph must have an entry point")

	// ErrNoFinishPoint is returned when validating a graph with no finish point
	ErrNoFinishPoint = errors.New("graph must have at least one finish point")

	// ErrInvalidCondition is returned when an edge condition is invalid
	ErrInvalidCondition = errors.New("invalid edge condition")

	// ErrConditionNotFound is returned when an edge names an unregistered condition
	ErrConditionNotFound = errors.New("condition not registered")
)

// GraphStructureError represents an error in the shape of the graph. It is
// never retried and matches types.ErrGraphStructure.
type GraphStructureError struct {
	// Op is the operation that failed
	Op string
	// Node is the ID of the node involved (if any)
	Node string
	// Err is the underlying error
	Err error
}

func (e *GraphStructureError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("graph structure: %s: node '%s': %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("graph structure: %s: %v", e.Op, e.Err)
}

func (e *GraphStructureError) Unwrap() error {
	return e.Err
}

func (e *GraphStructureError) Is(target error) bool {
	return target == types.ErrGraphStructure
}

// NewGraphStructureError creates a new GraphStructureError
func NewGraphStructureError(op string, node string, err error) error {
	return &GraphStructureError{
		Op:   op,
		Node: node,
		Err:  err,
	}
}
