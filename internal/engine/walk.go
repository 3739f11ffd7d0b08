package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/internal/resources"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

// UsageMetadataKey lets a node report custom resource usage, as a
// map[string]float64 in NodeOutput.Metadata, to be checked against Limits.Custom.
const UsageMetadataKey = "resource_usage"

// walk executes frontier against st until every path reaches a finish point
// or a node in stop. It returns the stop nodes that were reached. On error the
// returned slice is the frontier that failed. Top level walks (branch false)
// may suspend and checkpoint after every step.
func (r *run) walk(ctx context.Context, st state.State, frontier []string, stop map[string]struct{}, branch bool) ([]string, *suspension, error) {
	var arrived []string
	for {
		var active []string
		for _, id := range frontier {
			if _, ok := stop[id]; ok {
				arrived = appendUnique(arrived, id)
				continue
			}
			active = appendUnique(active, id)
		}
		frontier = active
		if len(frontier) == 0 {
			return arrived, nil, nil
		}
		if ctx.Err() != nil {
			return frontier, nil, context.Cause(ctx)
		}

		var (
			next []string
			err  error
		)
		if len(frontier) == 1 {
			var susp *suspension
			next, susp, err = r.step(ctx, st, frontier[0], branch)
			if susp != nil {
				return frontier, susp, nil
			}
		} else {
			next, err = r.fanOut(ctx, st, frontier, stop)
		}
		if err != nil {
			return frontier, nil, err
		}

		if !branch {
			if err := r.checkpoint(ctx, st, types.RunRunning, next); err != nil {
				return next, nil, err
			}
		}
		frontier = next
	}
}

// step runs one node and resolves where the path goes next. A finish point
// ends the path, so it returns no successors.
func (r *run) step(ctx context.Context, st state.State, id string, branch bool) ([]string, *suspension, error) {
	node, ok := r.e.graph.Node(id)
	if !ok {
		return nil, nil, graph.NewGraphStructureError("execute", id, graph.ErrNodeNotFound)
	}

	if r.e.interrupts.IsInterruptPoint(id) && !r.consumeSkip(id) {
		if branch {
			return nil, nil, interrupt.NewInterruptError("execute", "", id, ErrInterruptInBranch)
		}
		return nil, &suspension{node: id, reason: "interrupt point reached", frontier: []string{id}, before: true}, nil
	}

	if err := r.checkSteps(id); err != nil {
		return nil, nil, err
	}

	out, err := r.execute(ctx, node, st)
	if err != nil {
		return nil, nil, err
	}

	var next []string
	if !r.e.graph.IsFinishPoint(id) {
		route, err := r.e.graph.Next(id, st)
		if err != nil {
			return nil, nil, &ExecutionError{Node: id, Attempts: 1, Err: err}
		}
		if route.Empty() {
			return nil, nil, &ExecutionError{Node: id, Attempts: 1, Err: ErrDeadEnd}
		}
		next = route.Targets
	}

	if out.Status == types.StatusPending {
		if branch {
			return nil, nil, interrupt.NewInterruptError("execute", "", id, ErrInterruptInBranch)
		}
		reason := out.Message
		if reason == "" {
			reason = "node requested input"
		}
		return nil, &suspension{node: id, reason: reason, frontier: next, message: out.Message}, nil
	}
	return next, nil, nil
}

func (r *run) consumeSkip(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skip != "" && r.skip == id {
		r.skip = ""
		return true
	}
	return false
}

func (r *run) checkSteps(id string) error {
	limit := r.e.config.MaxSteps
	if limit <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.execCtx.CurrentStep >= limit {
		return &ExecutionError{Node: id, Err: fmt.Errorf("%w (%d)", ErrMaxStepsExceeded, limit)}
	}
	return nil
}

// execute admits the node through the resource manager and the worker
// semaphore, invokes it with retries and records the completed step.
func (r *run) execute(ctx context.Context, node types.Node, st state.State) (types.NodeOutput, error) {
	id := node.ID()
	req := node.Metadata().ResourceRequirements

	release, err := r.e.resources.Acquire(ctx, id, req)
	if err != nil {
		if ctx.Err() != nil {
			return types.NodeOutput{}, context.Cause(ctx)
		}
		return types.NodeOutput{}, err
	}
	defer release()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return types.NodeOutput{}, context.Cause(ctx)
	}
	started := time.Now()
	out, attempts, err := r.invoke(ctx, node, st)
	elapsed := time.Since(started)
	r.sem.Release(1)

	r.mu.Lock()
	r.execCtx.NodeAttempts[id] += attempts
	if err == nil {
		r.execCtx.ExecutionPath = append(r.execCtx.ExecutionPath, id)
		r.execCtx.CurrentStep++
	}
	step := r.execCtx.CurrentStep
	r.mu.Unlock()
	if err != nil {
		return out, err
	}
	r.logger.Debug("node completed", "node", id, "step", step, "attempts", attempts, "duration", elapsed)

	usage := resources.Usage{ExecutionCount: 1, CPUTimeMs: elapsed.Milliseconds()}
	if custom, ok := out.Metadata[UsageMetadataKey].(map[string]float64); ok {
		usage.Custom = custom
	}
	r.e.resources.Record(id, usage)
	r.mu.Lock()
	r.usage.Add(usage)
	violations := r.e.resources.CheckUsage(r.usage)
	r.mu.Unlock()
	if len(violations) > 0 {
		return out, &resources.LimitError{Node: id, Violations: violations}
	}
	return out, nil
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
