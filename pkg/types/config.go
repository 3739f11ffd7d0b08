package types

const (
	DefaultMaxConcurrency = 4
	DefaultMaxSteps       = 100
	DefaultStrategy       = "fifo"
)

// ExecutionConfig represents runtime configuration for graph execution
type ExecutionConfig struct {
	EnableParallel          bool   `json:"enable_parallel"`
	MaxExecutionTimeSeconds *int   `json:"max_execution_time_seconds,omitempty"` // nil means no run deadline
	MaxRetries              int    `json:"max_retries"`                          // default for nodes that do not declare Retryable
	StopOnError             bool   `json:"stop_on_error"`
	EnableCheckpointing     bool   `json:"enable_checkpointing"`
	MaxConcurrency          int    `json:"max_concurrency"` // concurrent node invocations when parallel
	MaxSteps                int    `json:"max_steps"`       // 0 disables the loop guard
	Strategy                string `json:"strategy"`        // scheduler strategy name
}

// DefaultExecutionConfig returns the configuration used when the caller supplies none.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		EnableParallel: true,
		StopOnError:    true,
		MaxConcurrency: DefaultMaxConcurrency,
		MaxSteps:       DefaultMaxSteps,
		Strategy:       DefaultStrategy,
	}
}

func (c *ExecutionConfig) Clone() ExecutionConfig {
	out := *c
	if c.MaxExecutionTimeSeconds != nil {
		v := *c.MaxExecutionTimeSeconds
		out.MaxExecutionTimeSeconds = &v
	}
	return out
}

// WithTimeoutSeconds returns a copy with a run level deadline.
func (c ExecutionConfig) WithTimeoutSeconds(seconds int) ExecutionConfig {
	out := c.Clone()
	out.MaxExecutionTimeSeconds = &seconds
	return out
}
