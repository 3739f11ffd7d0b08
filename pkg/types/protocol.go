package types

import (
	"context"
	"time"

	"github.com/avi3tal/graphflow/pkg/state"
)

// Node is a unit of work the engine dispatches by id.
type Node interface {
	ID() string
	Metadata() NodeMetadata
	// Invoke runs the node against the shared state. Nodes should honour ctx
	// cancellation; the engine abandons its wait on timeout but cannot stop the work.
	Invoke(ctx context.Context, st state.State) (NodeOutput, error)
}

// Retryable is an optional Node capability. A node declares retries when MaxRetries is positive.
type Retryable interface {
	MaxRetries() int
	RetryDelay() time.Duration
	IsRetryableError(err error) bool
}

// Timeouter is an optional Node capability. A non-positive duration means no deadline.
type Timeouter interface {
	Timeout() time.Duration
}

// NodeOutput encapsulates the execution result
type NodeOutput struct {
	Status   NodeExecutionStatus `json:"status"`
	Message  string              `json:"message,omitempty"`
	Metadata map[string]any      `json:"metadata,omitempty"`
}

// Completed is the common successful output.
func Completed() NodeOutput {
	return NodeOutput{Status: StatusCompleted}
}

// Pending asks the engine to suspend after this node until a human resumes the run.
func Pending(message string) NodeOutput {
	return NodeOutput{Status: StatusPending, Message: message}
}

// NodeMetadata is the static description of a node used by the scheduler.
type NodeMetadata struct {
	Name                 string               `json:"name"`
	Description          string               `json:"description,omitempty"`
	Tags                 []string             `json:"tags,omitempty"`
	Priority             Priority             `json:"priority,omitempty"`
	ResourceRequirements ResourceRequirements `json:"resource_requirements"`
	ExpectedDurationMs   int64                `json:"expected_duration_ms,omitempty"`
}

// ResourceRequirements is what a node reserves from the resource manager while it runs.
type ResourceRequirements struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB float64 `json:"memory_mb"`
}

// IsZero reports whether no resources are requested.
func (r ResourceRequirements) IsZero() bool {
	return r.CPUCores == 0 && r.MemoryMB == 0
}

// Priority is a declared scheduling tier.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Score maps a tier to its numeric weight. Unknown or empty tiers count as normal.
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 1000
	case PriorityHigh:
		return 750
	case PriorityLow:
		return 250
	default:
		return 500
	}
}
