package agents

import (
	"context"
	"time"

	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

// Func is the body of a function agent. It mutates st in place.
type Func func(ctx context.Context, st state.State) (types.NodeOutput, error)

// BaseAgent is a straightforward in-process function agent.
type BaseAgent struct {
	id       string
	fn       Func
	metadata types.NodeMetadata

	maxRetries int
	retryDelay time.Duration
	retryIf    func(error) bool
	timeout    time.Duration
}

var (
	_ types.Node      = (*BaseAgent)(nil)
	_ types.Retryable = (*BaseAgent)(nil)
	_ types.Timeouter = (*BaseAgent)(nil)
)

// Option configures a BaseAgent
type Option func(*BaseAgent)

func WithDescription(desc string) Option {
	return func(a *BaseAgent) {
		a.metadata.Description = desc
	}
}

func WithTags(tags ...string) Option {
	return func(a *BaseAgent) {
		a.metadata.Tags = append(a.metadata.Tags, tags...)
	}
}

func WithPriority(p types.Priority) Option {
	return func(a *BaseAgent) {
		a.metadata.Priority = p
	}
}

// WithResources declares what the agent reserves while it runs
func WithResources(cpuCores, memoryMB float64) Option {
	return func(a *BaseAgent) {
		a.metadata.ResourceRequirements = types.ResourceRequirements{CPUCores: cpuCores, MemoryMB: memoryMB}
	}
}

// WithExpectedDuration feeds the duration based scheduling strategies
func WithExpectedDuration(d time.Duration) Option {
	return func(a *BaseAgent) {
		a.metadata.ExpectedDurationMs = d.Milliseconds()
	}
}

// WithRetry re-invokes the agent up to maxRetries more times, waiting delay between attempts
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(a *BaseAgent) {
		a.maxRetries = maxRetries
		a.retryDelay = delay
	}
}

// WithRetryIf restricts retries to errors accepted by fn
func WithRetryIf(fn func(error) bool) Option {
	return func(a *BaseAgent) {
		a.retryIf = fn
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *BaseAgent) {
		a.timeout = d
	}
}

// NewSimpleAgent helper to create an inline agent. A nil fn completes without touching the state.
func NewSimpleAgent(id string, fn Func, opts ...Option) *BaseAgent {
	a := &BaseAgent{
		id:       id,
		fn:       fn,
		metadata: types.NodeMetadata{Name: id, Priority: types.PriorityNormal},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewUpdateAgent wraps a plain state update that always completes on success
func NewUpdateAgent(id string, update func(st state.State) error, opts ...Option) *BaseAgent {
	return NewSimpleAgent(id, func(_ context.Context, st state.State) (types.NodeOutput, error) {
		if err := update(st); err != nil {
			return types.NodeOutput{Status: types.StatusFailed, Message: err.Error()}, err
		}
		return types.Completed(), nil
	}, opts...)
}

func (a *BaseAgent) ID() string {
	return a.id
}

func (a *BaseAgent) Metadata() types.NodeMetadata {
	md := a.metadata
	md.Tags = append([]string(nil), a.metadata.Tags...)
	return md
}

func (a *BaseAgent) Invoke(ctx context.Context, st state.State) (types.NodeOutput, error) {
	if a.fn == nil {
		return types.Completed(), nil
	}
	return a.fn(ctx, st)
}

// MaxRetries of zero leaves the decision to the engine's configured default
func (a *BaseAgent) MaxRetries() int {
	return a.maxRetries
}

func (a *BaseAgent) RetryDelay() time.Duration {
	return a.retryDelay
}

func (a *BaseAgent) IsRetryableError(err error) bool {
	if a.retryIf == nil {
		return true
	}
	return a.retryIf(err)
}

func (a *BaseAgent) Timeout() time.Duration {
	return a.timeout
}
