package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

type retryPolicy struct {
	maxRetries int
	delay      time.Duration
	retryable  func(error) bool
}

// retryPolicy takes the count and delay from a Retryable node when it sets a
// count, else the configured MaxRetries. A Retryable node always classifies
// its own errors.
func (r *run) retryPolicy(node types.Node) retryPolicy {
	policy := retryPolicy{
		maxRetries: max(0, r.e.config.MaxRetries),
		retryable:  defaultRetryable,
	}
	if rn, ok := node.(types.Retryable); ok {
		policy.retryable = rn.IsRetryableError
		if rn.MaxRetries() > 0 {
			policy.maxRetries = rn.MaxRetries()
			policy.delay = rn.RetryDelay()
		}
	}
	return policy
}

// defaultRetryable retries everything except deadlines, interrupts and limit violations
func defaultRetryable(err error) bool {
	return !errors.Is(err, types.ErrTimeout) &&
		!errors.Is(err, types.ErrInterrupt) &&
		!errors.Is(err, types.ErrResourceLimit) &&
		!errors.Is(err, context.Canceled)
}

// invoke runs node with its retry policy and returns the number of attempts made
func (r *run) invoke(ctx context.Context, node types.Node, st state.State) (types.NodeOutput, int, error) {
	id := node.ID()
	policy := r.retryPolicy(node)

	var (
		out     types.NodeOutput
		lastErr error
	)
	attempts := 0
	for {
		attempts++
		r.logger.Trace("invoking node", "node", id, "attempt", attempts, "status", types.AttemptRunning)

		var err error
		out, err = r.attempt(ctx, node, st)
		if err == nil && out.Status == types.StatusFailed {
			err = fmt.Errorf("%w: %s", ErrNodeFailed, out.Message)
		}
		if err == nil {
			return out, attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			r.logger.Debug("attempt aborted", "node", id, "attempt", attempts, "status", types.AttemptAborted)
			break
		}
		status := types.AttemptFailed
		if errors.Is(err, types.ErrTimeout) {
			status = types.AttemptTimedOut
		}
		if attempts > policy.maxRetries || !policy.retryable(err) {
			r.logger.Warn("node attempt failed", "node", id, "attempt", attempts, "status", status, "error", err)
			break
		}
		r.logger.Debug("node attempt failed, retrying", "node", id, "attempt", attempts, "status", types.AttemptPendingRetry, "delay", policy.delay, "error", err)

		if policy.delay > 0 {
			timer := time.NewTimer(policy.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, attempts, context.Cause(ctx)
			case <-timer.C:
			}
		}
	}

	if ctx.Err() != nil {
		return out, attempts, context.Cause(ctx)
	}
	var te *TimeoutError
	if errors.As(lastErr, &te) || errors.Is(lastErr, types.ErrResourceLimit) || errors.Is(lastErr, types.ErrInterrupt) {
		return out, attempts, lastErr
	}
	return out, attempts, &ExecutionError{Node: id, Attempts: attempts, Err: lastErr}
}

type attemptResult struct {
	out types.NodeOutput
	err error
}

// attempt invokes node once on a private copy of st. The copy is written back
// only on success. When a deadline applies, the invocation runs in its own
// goroutine and is abandoned if the deadline wins.
func (r *run) attempt(ctx context.Context, node types.Node, st state.State) (types.NodeOutput, error) {
	timeout := nodeTimeout(node)
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	work := st.Clone()
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptResult{err: fmt.Errorf("node %s panicked: %v", node.ID(), p)}
			}
		}()
		out, err := node.Invoke(actx, work)
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if timeout > 0 && actx.Err() != nil && ctx.Err() == nil {
				return res.out, &TimeoutError{Node: node.ID(), Scope: ScopeNode, Duration: timeout}
			}
			return res.out, res.err
		}
		if err := state.Restore(st, work.ToMap()); err != nil {
			return res.out, err
		}
		return res.out, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return types.NodeOutput{}, context.Cause(ctx)
		}
		r.logger.Warn("node timed out", "node", node.ID(), "timeout", timeout)
		return types.NodeOutput{}, &TimeoutError{Node: node.ID(), Scope: ScopeNode, Duration: timeout}
	}
}

func nodeTimeout(node types.Node) time.Duration {
	if tn, ok := node.(types.Timeouter); ok {
		return tn.Timeout()
	}
	return 0
}
