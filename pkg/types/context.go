package types

import (
	"time"
)

// ExecutionContext records the progress of a single run. It is returned on every
// outcome so partial progress stays inspectable after a failure.
type ExecutionContext struct {
	ExecutionID   string         `json:"execution_id"`
	CurrentStep   int            `json:"current_step"`
	ExecutionPath []string       `json:"execution_path"`
	StartedAt     time.Time      `json:"started_at"`
	DurationMs    int64          `json:"duration_ms"`
	Status        RunStatus      `json:"status"`
	NodeAttempts  map[string]int `json:"node_attempts,omitempty"`
	Next          []string       `json:"next,omitempty"`
}

func NewExecutionContext(executionID string, now time.Time) ExecutionContext {
	return ExecutionContext{
		ExecutionID:   executionID,
		ExecutionPath: []string{},
		StartedAt:     now,
		Status:        RunPending,
		NodeAttempts:  make(map[string]int),
	}
}

// Clone returns a copy that shares no slices or maps with the receiver.
func (c ExecutionContext) Clone() ExecutionContext {
	out := c
	out.ExecutionPath = append([]string{}, c.ExecutionPath...)
	out.Next = append([]string(nil), c.Next...)
	out.NodeAttempts = make(map[string]int, len(c.NodeAttempts))
	for k, v := range c.NodeAttempts {
		out.NodeAttempts[k] = v
	}
	return out
}
