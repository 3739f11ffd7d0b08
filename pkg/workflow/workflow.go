package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/state"
)

// Builder is the top-level DSL object. Wraps an internal graph.
type Builder struct {
	name  string
	graph *graph.Graph

	mu         sync.Mutex
	interrupts []interruptDecl
	errs       *multierror.Error
}

type interruptDecl struct {
	node          string
	typ           interrupt.Type
	requiresHuman bool
	timeout       time.Duration
	data          map[string]any
}

// NewBuilder creates a new DSL workflow with an underlying graph.
func NewBuilder(name string, opts ...graph.Option) *Builder {
	return &Builder{name: name, graph: graph.NewGraph(name, opts...)}
}

func (wf *Builder) Name() string {
	return wf.name
}

// Graph exposes the underlying graph for analysis and modification
func (wf *Builder) Graph() *graph.Graph {
	return wf.graph
}

// Err returns every error recorded while building, or nil
func (wf *Builder) Err() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.errs.ErrorOrNil()
}

func (wf *Builder) record(err error) error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.errs = multierror.Append(wf.errs, err)
	return err
}

// AddAgent adds a new agent (node) to the workflow.
func (wf *Builder) AddAgent(agent Agent) *FlowAgent {
	if err := ensureAgent(wf, agent); err != nil {
		return &FlowAgent{wf: wf, err: wf.record(fmt.Errorf("AddAgent failed: %w", err))}
	}
	return &FlowAgent{wf: wf, tails: []string{agent.ID()}}
}

// FlowAgent references the node(s) the chain continues from.
type FlowAgent struct {
	wf *Builder
	// tails are the nodes the next link starts from; more than one after ThenIf
	tails []string
	err   error
}

func (fa *FlowAgent) Err() error {
	return fa.err
}

// Tails returns the ids the chain currently continues from
func (fa *FlowAgent) Tails() []string {
	return append([]string(nil), fa.tails...)
}

func (fa *FlowAgent) fail(format string, err error) *FlowAgent {
	return &FlowAgent{wf: fa.wf, tails: fa.tails, err: fa.wf.record(fmt.Errorf(format, err))}
}

// AsEntryPoint marks the current agent as the graph's entry point.
func (fa *FlowAgent) AsEntryPoint() *FlowAgent {
	if fa.err != nil {
		return fa
	}
	for _, id := range fa.tails {
		if err := fa.wf.graph.AddEntryPoint(id); err != nil {
			return fa.fail("AsEntryPoint failed: %w", err)
		}
	}
	return fa
}

// Then creates a simple sequential link from every tail to next.
func (fa *FlowAgent) Then(next Agent) *FlowAgent {
	if fa.err != nil {
		return fa
	}
	if err := ensureAgent(fa.wf, next); err != nil {
		return fa.fail("Then failed: %w", err)
	}
	for _, tail := range fa.tails {
		if err := fa.wf.graph.AddEdge(graph.Simple(tail, next.ID())); err != nil {
			return fa.fail("Then failed: %w", err)
		}
	}
	return &FlowAgent{wf: fa.wf, tails: []string{next.ID()}}
}

// ThenIf registers predicate under name and branches to ifTrue or ifFalse.
// A nil side yields no route, so the next edge of the tail is tried. Targets
// already in the workflow before the call are jumps (loops) and the chain
// only continues from the new ones.
func (fa *FlowAgent) ThenIf(name string, predicate graph.Condition, ifTrue, ifFalse Agent) *FlowAgent {
	if fa.err != nil {
		return fa
	}
	if err := fa.wf.graph.RegisterCondition(name, predicate); err != nil {
		return fa.fail("ThenIf failed: %w", err)
	}

	var next []string
	side := func(a Agent) (string, error) {
		if a == nil {
			return "", nil
		}
		if !fa.wf.graph.HasNode(a.ID()) {
			next = append(next, a.ID())
		}
		return a.ID(), ensureAgent(fa.wf, a)
	}
	t, err := side(ifTrue)
	if err != nil {
		return fa.fail("ThenIf failed: %w", err)
	}
	f, err := side(ifFalse)
	if err != nil {
		return fa.fail("ThenIf failed: %w", err)
	}

	for _, tail := range fa.tails {
		if err := fa.wf.graph.AddEdge(graph.Conditional(tail, name, t, f)); err != nil {
			return fa.fail("ThenIf failed: %w", err)
		}
	}
	return &FlowAgent{wf: fa.wf, tails: next}
}

// OnCondition routes to the branch whose key selector returns. Every key
// becomes a conditional edge named "<name>=<key>" with an empty false side,
// tried in sorted key order. An unknown key yields no route.
func (fa *FlowAgent) OnCondition(name string, selector func(st state.State) string, branches map[string]Agent) *FlowAgent {
	if fa.err != nil {
		return fa
	}
	keys := make([]string, 0, len(branches))
	for k := range branches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var next []string
	for _, key := range keys {
		ag := branches[key]
		isNew := ag != nil && !fa.wf.graph.HasNode(ag.ID())
		if err := ensureAgent(fa.wf, ag); err != nil {
			return fa.fail("OnCondition failed: %w", err)
		}
		if isNew {
			next = append(next, ag.ID())
		}

		cond := name + "=" + key
		if err := fa.wf.graph.RegisterCondition(cond, func(st state.State) bool { return selector(st) == key }); err != nil {
			return fa.fail("OnCondition failed: %w", err)
		}
		for _, tail := range fa.tails {
			if err := fa.wf.graph.AddEdge(graph.Conditional(tail, cond, ag.ID(), "")); err != nil {
				return fa.fail("OnCondition failed: %w", err)
			}
		}
	}
	return &FlowAgent{wf: fa.wf, tails: next}
}

// ThenAll spawns multiple agents in parallel (similar to a "fork").
// Returns a ParallelBuilder for a subsequent Join or End.
func (fa *FlowAgent) ThenAll(parallelAgents ...Agent) *ParallelBuilder {
	pb := &ParallelBuilder{wf: fa.wf, err: fa.err}
	if fa.err != nil {
		return pb
	}
	if len(parallelAgents) == 0 {
		pb.err = fa.wf.record(fmt.Errorf("ThenAll failed: %w",
			graph.NewGraphStructureError("add_edge", "", fmt.Errorf("%w: no parallel targets", graph.ErrInvalidEdge))))
		return pb
	}

	for _, ag := range parallelAgents {
		if err := ensureAgent(fa.wf, ag); err != nil {
			pb.err = fa.wf.record(fmt.Errorf("ThenAll failed: %w", err))
			return pb
		}
		pb.branches = append(pb.branches, ag.ID())
	}
	for _, tail := range fa.tails {
		if err := fa.wf.graph.AddEdge(graph.Parallel(tail, pb.branches...)); err != nil {
			pb.err = fa.wf.record(fmt.Errorf("ThenAll failed: %w", err))
			return pb
		}
	}
	return pb
}

// ParallelBuilder holds references to the set of parallel agents.
type ParallelBuilder struct {
	wf       *Builder
	branches []string
	err      error
}

func (pb *ParallelBuilder) Err() error {
	return pb.err
}

// Join links every branch to join. The engine runs join once, after the
// branch states have been merged.
func (pb *ParallelBuilder) Join(join Agent) *FlowAgent {
	if pb.err != nil {
		return &FlowAgent{wf: pb.wf, err: pb.err}
	}
	if err := ensureAgent(pb.wf, join); err != nil {
		return &FlowAgent{wf: pb.wf, err: pb.wf.record(fmt.Errorf("Join failed: %w", err))}
	}
	for _, b := range pb.branches {
		if err := pb.wf.graph.AddEdge(graph.Simple(b, join.ID())); err != nil {
			return &FlowAgent{wf: pb.wf, err: pb.wf.record(fmt.Errorf("Join failed: %w", err))}
		}
	}
	return &FlowAgent{wf: pb.wf, tails: []string{join.ID()}}
}

// End marks every branch as a finish point
func (pb *ParallelBuilder) End() error {
	if pb.err != nil {
		return pb.err
	}
	return (&FlowAgent{wf: pb.wf, tails: pb.branches}).End()
}

// ThenSubWorkflow runs sub as a single node after the current one.
func (fa *FlowAgent) ThenSubWorkflow(sub *Builder, opts ...SubWorkflowOption) *FlowAgent {
	if fa.err != nil {
		return fa
	}
	return fa.Then(NewSubWorkflowAgent(sub, opts...))
}

// InterruptBefore suspends runs before the current node(s) execute.
func (fa *FlowAgent) InterruptBefore(typ interrupt.Type, requiresHuman bool, timeout time.Duration, data map[string]any) *FlowAgent {
	if fa.err != nil {
		return fa
	}
	fa.wf.mu.Lock()
	defer fa.wf.mu.Unlock()
	for _, id := range fa.tails {
		fa.wf.interrupts = append(fa.wf.interrupts, interruptDecl{
			node:          id,
			typ:           typ,
			requiresHuman: requiresHuman,
			timeout:       timeout,
			data:          data,
		})
	}
	return fa
}

// End marks the current node(s) as finish points.
func (fa *FlowAgent) End() error {
	if fa.err != nil {
		return fa.err
	}
	for _, id := range fa.tails {
		if err := fa.wf.graph.SetFinishPoint(id); err != nil {
			fa.err = fa.wf.record(fmt.Errorf("End failed: %w", err))
			return fa.err
		}
	}
	return nil
}
