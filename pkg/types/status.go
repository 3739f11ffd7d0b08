package types

// NodeExecutionStatus represents the outcome a node reports for a single invocation
type NodeExecutionStatus string

const (
	StatusCompleted NodeExecutionStatus = "completed"
	StatusPending   NodeExecutionStatus = "pending" // Waiting for user input
	StatusReady     NodeExecutionStatus = "ready"   // Ready to execute
	StatusFailed    NodeExecutionStatus = "failed"
)

// AttemptStatus tracks one invocation attempt of a node
type AttemptStatus string

const (
	AttemptPending      AttemptStatus = "pending"
	AttemptRunning      AttemptStatus = "running"
	AttemptSucceeded    AttemptStatus = "succeeded"
	AttemptFailed       AttemptStatus = "failed"
	AttemptTimedOut     AttemptStatus = "timed_out"
	AttemptPendingRetry AttemptStatus = "pending_retry"
	AttemptAborted      AttemptStatus = "aborted"
)

// RunStatus is the lifecycle of a whole execution
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
	RunTimedOut    RunStatus = "timed_out"
)

// Terminal reports whether no further progress can be made without a resume
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunTimedOut:
		return true
	default:
		return false
	}
}
