package engine

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/avi3tal/graphflow/internal/channels"
	"github.com/avi3tal/graphflow/pkg/state"
)

// fanOut runs every target as a branch on its own copy of st. Branches stop
// at the join points of the group (nodes reachable from two or more targets)
// or at a stop node inherited from an enclosing group. Branch changes are
// merged into st in declaration order and the distinct arrival nodes are returned.
func (r *run) fanOut(ctx context.Context, st state.State, targets []string, inherited map[string]struct{}) ([]string, error) {
	var arrivals, branches []string
	for _, t := range targets {
		if _, ok := inherited[t]; ok {
			arrivals = appendUnique(arrivals, t)
			continue
		}
		branches = append(branches, t)
	}
	if len(branches) == 0 {
		return arrivals, nil
	}

	stop := make(map[string]struct{}, len(inherited))
	for id := range inherited {
		stop[id] = struct{}{}
	}
	// a target downstream of a sibling waits for it and runs once after the join
	deferred := r.downstreamTargets(branches)
	if len(deferred) > 0 {
		kept := branches[:0:0]
		for _, t := range branches {
			if _, ok := deferred[t]; ok {
				stop[t] = struct{}{}
				arrivals = appendUnique(arrivals, t)
				continue
			}
			kept = append(kept, t)
		}
		branches = kept
	}
	joins := r.joinPoints(branches)
	for _, id := range joins {
		stop[id] = struct{}{}
	}

	order, err := r.e.scheduler.Order(r.e.graph, branches, r.e.resources.Snapshot())
	if err != nil {
		return nil, err
	}
	r.logger.Debug("fan out", "branches", order, "joins", joins)

	barrier := channels.NewBarrier(branches)
	runBranch := func(ctx context.Context, target string) error {
		bst := st.Clone()
		next, _, err := r.walk(ctx, bst, []string{target}, stop, true)
		if err != nil {
			return err
		}
		return barrier.Write(target, channels.Arrival{State: bst, Next: next, Finished: len(next) == 0})
	}

	var runErr error
	switch {
	case !r.e.config.EnableParallel:
		runErr = r.runSequential(ctx, order, runBranch)
	case r.e.config.StopOnError:
		g, gctx := errgroup.WithContext(ctx)
		for _, target := range order {
			g.Go(func() error {
				return runBranch(gctx, target)
			})
		}
		runErr = g.Wait()
	default:
		var (
			g    errgroup.Group
			mu   sync.Mutex
			errs *multierror.Error
		)
		for _, target := range order {
			g.Go(func() error {
				if err := runBranch(ctx, target); err != nil {
					mu.Lock()
					errs = multierror.Append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		runErr = errs.ErrorOrNil()
	}

	collected := barrier.Collected()
	if runErr != nil {
		// keep what the successful branches did so partial progress is visible
		if len(collected) > 0 {
			if err := r.mergeArrivals(st, collected); err != nil {
				r.logger.Warn("failed to merge partial branch results", "error", err)
			}
		}
		return nil, runErr
	}

	collected, err = barrier.Read()
	if err != nil {
		return nil, err
	}
	if err := r.mergeArrivals(st, collected); err != nil {
		return nil, err
	}
	for _, a := range collected {
		for _, id := range a.Next {
			arrivals = appendUnique(arrivals, id)
		}
	}
	return arrivals, nil
}

func (r *run) runSequential(ctx context.Context, order []string, fn func(context.Context, string) error) error {
	var errs *multierror.Error
	for _, target := range order {
		if err := fn(ctx, target); err != nil {
			if r.e.config.StopOnError {
				return err
			}
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (r *run) mergeArrivals(st state.State, arrivals []channels.Arrival) error {
	base := st.Clone()
	branches := make([]BranchState, 0, len(arrivals))
	for _, a := range arrivals {
		branches = append(branches, BranchState{Target: a.Source, Changes: state.Diff(base, a.State)})
	}
	return errors.Wrap(r.e.merge(st, branches), "merge parallel branches")
}

// downstreamTargets returns the targets reachable from a sibling target that
// they cannot reach back. Targets on a common cycle still start as branches.
func (r *run) downstreamTargets(targets []string) map[string]struct{} {
	reach := make(map[string]map[string]struct{}, len(targets))
	for _, t := range targets {
		reach[t] = r.e.graph.Reachable(t)
	}
	out := make(map[string]struct{})
	for _, t := range targets {
		for _, u := range targets {
			if u == t {
				continue
			}
			_, fromSibling := reach[u][t]
			_, backToSibling := reach[t][u]
			if fromSibling && !backToSibling {
				out[t] = struct{}{}
				break
			}
		}
	}
	return out
}

// joinPoints returns, in node insertion order, the nodes other than the
// targets themselves that are reachable from at least two targets
func (r *run) joinPoints(targets []string) []string {
	isTarget := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		isTarget[t] = struct{}{}
	}
	counts := make(map[string]int)
	for _, t := range targets {
		for id := range r.e.graph.Reachable(t) {
			if _, ok := isTarget[id]; ok {
				continue
			}
			counts[id]++
		}
	}
	var joins []string
	for _, id := range r.e.graph.NodeIDs() {
		if counts[id] >= 2 {
			joins = append(joins, id)
		}
	}
	return joins
}
