package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

// ErrSubWorkflowInterrupted is returned when a sub-workflow suspends. Sub-workflows must run to completion.
var ErrSubWorkflowInterrupted = errors.New("sub-workflow interrupted")

// SubWorkflowAgent treats an entire sub-workflow as a single "agent".
type SubWorkflowAgent struct {
	id   string
	wf   *Builder
	opts []engine.Option
	meta types.NodeMetadata

	once sync.Once
	eng  *engine.Engine
	err  error
}

// SubWorkflowOption configures a SubWorkflowAgent
type SubWorkflowOption func(*SubWorkflowAgent)

// WithSubWorkflowID overrides the default "subworkflow:<name>" id
func WithSubWorkflowID(id string) SubWorkflowOption {
	return func(sw *SubWorkflowAgent) {
		sw.id = id
		sw.meta.Name = id
	}
}

// WithSubWorkflowEngineOptions configures the engine that runs the sub-workflow
func WithSubWorkflowEngineOptions(opts ...engine.Option) SubWorkflowOption {
	return func(sw *SubWorkflowAgent) {
		sw.opts = append(sw.opts, opts...)
	}
}

func NewSubWorkflowAgent(wf *Builder, opts ...SubWorkflowOption) *SubWorkflowAgent {
	id := "subworkflow:" + wf.name
	sw := &SubWorkflowAgent{
		id: id,
		wf: wf,
		meta: types.NodeMetadata{
			Name:        id,
			Description: fmt.Sprintf("runs workflow %q", wf.name),
			Tags:        []string{"subworkflow"},
		},
	}
	for _, o := range opts {
		o(sw)
	}
	return sw
}

func (sw *SubWorkflowAgent) ID() string {
	return sw.id
}

func (sw *SubWorkflowAgent) Metadata() types.NodeMetadata {
	return sw.meta
}

// Invoke runs the sub-workflow on the caller's state. The engine is built on first use.
func (sw *SubWorkflowAgent) Invoke(ctx context.Context, st state.State) (types.NodeOutput, error) {
	sw.once.Do(func() {
		if err := sw.wf.Err(); err != nil {
			sw.err = err
			return
		}
		sw.eng, sw.err = engine.New(sw.wf.graph, sw.opts...)
		if sw.err == nil {
			sw.err = registerInterrupts(sw.wf, sw.eng.Interrupts())
		}
	})
	if sw.err != nil {
		return types.NodeOutput{Status: types.StatusFailed}, errors.Wrapf(sw.err, "build sub-workflow %s", sw.wf.name)
	}

	res, err := sw.eng.Run(ctx, st)
	if err != nil {
		return types.NodeOutput{Status: types.StatusFailed}, errors.Wrapf(err, "sub-workflow %s", sw.wf.name)
	}
	if res.Status == types.RunInterrupted {
		_ = sw.eng.Interrupts().CancelInterrupt(res.Token.InterruptID)
		return types.NodeOutput{Status: types.StatusFailed},
			interrupt.NewInterruptError("subworkflow", res.Token.InterruptID, res.Token.NodeID, ErrSubWorkflowInterrupted)
	}
	return types.NodeOutput{
		Status:   types.StatusCompleted,
		Metadata: map[string]any{"execution_id": res.Context.ExecutionID, "steps": res.Context.CurrentStep},
	}, nil
}
