package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/pkg/types"
)

var (
	// ErrDeadEnd is returned when a node that is not a finish point has no route out
	ErrDeadEnd = errors.New("no transition from node")

	// ErrMaxStepsExceeded is returned when a run executes more steps than allowed
	ErrMaxStepsExceeded = errors.New("max steps reached")

	// ErrNodeFailed is raised for a node that reports StatusFailed without an error
	ErrNodeFailed = errors.New("node reported failure")

	// ErrInterruptInBranch is returned when a parallel branch reaches an interrupt
	ErrInterruptInBranch = errors.New("interrupts are not supported inside parallel branches")

	// ErrNoCheckpointer is returned by ResumeFromCheckpoint when checkpointing is off
	ErrNoCheckpointer = errors.New("checkpointing is not enabled")
)

// Timeout scopes
const (
	ScopeNode = "node"
	ScopeRun  = "run"
)

// ExecutionError is a node failure after retries were exhausted or refused
type ExecutionError struct {
	Node     string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("failed to execute node %s after %d attempts: %v", e.Node, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to execute node %s: %v", e.Node, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == types.ErrExecution
}

// TimeoutError reports an exceeded node or run deadline
type TimeoutError struct {
	Node     string
	Scope    string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Scope == ScopeRun {
		return fmt.Sprintf("execution timed out after %s", e.Duration)
	}
	return fmt.Sprintf("node %s timed out after %s", e.Node, e.Duration)
}

func (e *TimeoutError) Is(target error) bool {
	return target == types.ErrTimeout
}
