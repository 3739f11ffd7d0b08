package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/agents"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

func setter(id, key string, value any) *agents.BaseAgent {
	return agents.NewUpdateAgent(id, func(st state.State) error { return st.Set(key, value) })
}

func incrementer(id string) *agents.BaseAgent {
	return agents.NewUpdateAgent(id, func(st state.State) error { return st.Set("n", state.Int(st, "n")+1) })
}

func newApp(t *testing.T, wf *Builder, opts ...AppOption) *App {
	t.Helper()
	app, err := NewApp(wf, opts...)
	require.NoError(t, err)
	return app
}

func TestSequentialWorkflow(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("sequential")
	err := wf.AddAgent(setter("a", "a", 1)).
		AsEntryPoint().
		Then(setter("b", "b", 2)).
		Then(setter("c", "c", 3)).
		End()
	require.NoError(t, err)

	st := state.New()
	res, err := newApp(t, wf).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, []string{"a", "b", "c"}, res.Context.ExecutionPath)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, st.ToMap())
}

func TestThenIfLoop(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("counter")
	inc := incrementer("inc")
	flow := wf.AddAgent(inc).
		AsEntryPoint().
		ThenIf("more", func(st state.State) bool { return state.Int(st, "n") < 3 }, inc, setter("done", "done", true))
	assert.Equal(t, []string{"done"}, flow.Tails())
	require.NoError(t, flow.End())

	st := state.New()
	res, err := newApp(t, wf).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"inc", "inc", "inc", "done"}, res.Context.ExecutionPath)
	assert.Equal(t, 3, state.Int(st, "n"))
}

func TestThenIfBranches(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input int
		want  []string
	}{
		{name: "large", input: 10, want: []string{"classify", "big", "report"}},
		{name: "small", input: 1, want: []string{"classify", "small", "report"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wf := NewBuilder("branches")
			err := wf.AddAgent(agents.NewSimpleAgent("classify", nil)).
				AsEntryPoint().
				ThenIf("is_large", func(st state.State) bool { return state.Int(st, "input") > 5 },
					setter("big", "size", "big"), setter("small", "size", "small")).
				Then(agents.NewSimpleAgent("report", nil)).
				End()
			require.NoError(t, err)

			st := state.FromMap(map[string]any{"input": tt.input})
			res, err := newApp(t, wf).Invoke(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Context.ExecutionPath)
		})
	}
}

func TestOnCondition(t *testing.T) {
	t.Parallel()
	build := func(t *testing.T) *App {
		wf := NewBuilder("plans")
		flow := wf.AddAgent(agents.NewSimpleAgent("check", nil)).
			AsEntryPoint().
			OnCondition("plan", func(st state.State) string { return state.String(st, "plan") }, map[string]Agent{
				"free":       setter("upgrade", "offer", "upgrade"),
				"paid":       setter("welcome", "offer", "welcome"),
				"enterprise": setter("account_manager", "offer", "call"),
			})
		assert.Equal(t, []string{"account_manager", "upgrade", "welcome"}, flow.Tails())
		require.NoError(t, flow.End())
		return newApp(t, wf)
	}

	tests := []struct {
		plan      string
		wantOffer string
		wantErr   error
	}{
		{plan: "free", wantOffer: "upgrade"},
		{plan: "paid", wantOffer: "welcome"},
		{plan: "enterprise", wantOffer: "call"},
		{plan: "unknown", wantErr: engine.ErrDeadEnd},
	}
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			t.Parallel()
			st := state.FromMap(map[string]any{"plan": tt.plan})
			_, err := build(t).Invoke(context.Background(), st)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOffer, state.String(st, "offer"))
		})
	}
}

func TestThenAllJoin(t *testing.T) {
	t.Parallel()
	for _, parallel := range []bool{true, false} {
		t.Run(map[bool]string{true: "parallel", false: "sequential"}[parallel], func(t *testing.T) {
			t.Parallel()
			wf := NewBuilder("fan")
			sum := agents.NewUpdateAgent("sum", func(st state.State) error {
				return st.Set("sum", state.Int(st, "x")+state.Int(st, "y")+state.Int(st, "z"))
			})
			err := wf.AddAgent(agents.NewSimpleAgent("start", nil)).
				AsEntryPoint().
				ThenAll(setter("x", "x", 1), setter("y", "y", 10), setter("z", "z", 100)).
				Join(sum).
				End()
			require.NoError(t, err)

			cfg := types.DefaultExecutionConfig()
			cfg.EnableParallel = parallel
			st := state.New()
			res, err := newApp(t, wf, WithConfig(cfg)).Invoke(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, types.RunCompleted, res.Status)
			assert.Equal(t, 111, state.Int(st, "sum"))
			assert.Equal(t, "start", res.Context.ExecutionPath[0])
			assert.Equal(t, "sum", res.Context.ExecutionPath[len(res.Context.ExecutionPath)-1])
			assert.ElementsMatch(t, []string{"start", "x", "y", "z", "sum"}, res.Context.ExecutionPath)
		})
	}
}

func TestThenAllEnd(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("fan-end")
	err := wf.AddAgent(agents.NewSimpleAgent("start", nil)).
		AsEntryPoint().
		ThenAll(setter("x", "x", 1), setter("y", "y", 2)).
		End()
	require.NoError(t, err)

	st := state.New()
	res, err := newApp(t, wf).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, 1, state.Int(st, "x"))
	assert.Equal(t, 2, state.Int(st, "y"))
}

func TestInterruptBefore(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("approval")
	err := wf.AddAgent(setter("draft", "draft", "v1")).
		AsEntryPoint().
		Then(agents.NewUpdateAgent("publish", func(st state.State) error {
			if state.String(st, "approved_by") == "" {
				return errors.New("not approved")
			}
			return st.Set("published", true)
		})).
		InterruptBefore(interrupt.TypeApproval, true, time.Hour, map[string]any{"channel": "review"}).
		End()
	require.NoError(t, err)

	app := newApp(t, wf)
	res, err := app.Invoke(context.Background(), state.New())
	require.NoError(t, err)
	require.Equal(t, types.RunInterrupted, res.Status)
	require.NotNil(t, res.Token)
	assert.Equal(t, "publish", res.Token.NodeID)
	require.NotNil(t, res.Token.ExpiresAt)

	pending := app.Interrupts().Pending()
	require.Len(t, pending, 1)
	is, ok := app.Interrupts().Get(pending[0].InterruptID)
	require.True(t, ok)
	assert.Equal(t, "review", is.Interaction["channel"])

	st := state.FromMap(map[string]any{"approved_by": "alice"})
	res, err = app.Resume(context.Background(), *res.Token, st)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, []string{"draft", "publish"}, res.Context.ExecutionPath)
	assert.Equal(t, "v1", state.String(st, "draft"))
	assert.Equal(t, true, st.ToMap()["published"])
	assert.Empty(t, app.Interrupts().Pending())
}

func TestSubWorkflow(t *testing.T) {
	t.Parallel()
	sub := NewBuilder("enrich")
	require.NoError(t, sub.AddAgent(incrementer("sub-a")).AsEntryPoint().Then(incrementer("sub-b")).End())

	wf := NewBuilder("main")
	err := wf.AddAgent(incrementer("first")).
		AsEntryPoint().
		ThenSubWorkflow(sub).
		Then(incrementer("last")).
		End()
	require.NoError(t, err)

	st := state.New()
	res, err := newApp(t, wf).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "subworkflow:enrich", "last"}, res.Context.ExecutionPath)
	assert.Equal(t, 4, state.Int(st, "n"))
}

func TestSubWorkflowInterruptFails(t *testing.T) {
	t.Parallel()
	sub := NewBuilder("gated")
	require.NoError(t, sub.AddAgent(agents.NewSimpleAgent("gate", nil)).
		AsEntryPoint().
		InterruptBefore(interrupt.TypeInput, true, 0, nil).
		End())

	wf := NewBuilder("outer")
	require.NoError(t, wf.AddAgent(agents.NewSimpleAgent("start", nil)).
		AsEntryPoint().
		ThenSubWorkflow(sub, WithSubWorkflowID("gated-step")).
		End())

	res, err := newApp(t, wf).Invoke(context.Background(), state.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInterrupt)
	assert.ErrorIs(t, err, ErrSubWorkflowInterrupted)
	assert.Equal(t, types.RunFailed, res.Status)
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		build func(wf *Builder) error
	}{
		{
			name: "nil agent",
			build: func(wf *Builder) error {
				return wf.AddAgent(nil).End()
			},
		},
		{
			name: "empty condition name",
			build: func(wf *Builder) error {
				return wf.AddAgent(agents.NewSimpleAgent("a", nil)).
					ThenIf("", func(state.State) bool { return true }, agents.NewSimpleAgent("b", nil), nil).
					End()
			},
		},
		{
			name: "empty parallel group",
			build: func(wf *Builder) error {
				return wf.AddAgent(agents.NewSimpleAgent("a", nil)).ThenAll().End()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wf := NewBuilder(tt.name)
			err := tt.build(wf)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrGraphStructure)
			require.Error(t, wf.Err())

			_, err = NewApp(wf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid workflow")
		})
	}
}

func TestNewAppRejectsInvalidGraph(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("no-finish")
	require.NoError(t, wf.AddAgent(agents.NewSimpleAgent("a", nil)).AsEntryPoint().Err())

	_, err := NewApp(wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGraphStructure)
}

func TestResumeFromCheckpoint(t *testing.T) {
	t.Parallel()
	var healthy atomic.Bool
	flaky := agents.NewSimpleAgent("flaky", func(_ context.Context, st state.State) (types.NodeOutput, error) {
		if !healthy.Load() {
			return types.NodeOutput{}, errors.New("downstream unavailable")
		}
		return types.Completed(), st.Set("flaky", "ok")
	})

	wf := NewBuilder("checkpointed")
	require.NoError(t, wf.AddAgent(setter("prepare", "prepared", true)).AsEntryPoint().Then(flaky).End())

	cfg := types.DefaultExecutionConfig()
	cfg.EnableCheckpointing = true
	app := newApp(t, wf, WithConfig(cfg), WithCheckpointStore(checkpoints.NewMemoryStore()))

	res, err := app.Invoke(context.Background(), state.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExecution)
	assert.Equal(t, types.RunFailed, res.Status)
	assert.Equal(t, []string{"prepare"}, res.Context.ExecutionPath)

	healthy.Store(true)
	st := state.New()
	res, err = app.ResumeFromCheckpoint(context.Background(), res.Context.ExecutionID, st)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, []string{"prepare", "flaky"}, res.Context.ExecutionPath)
	assert.Equal(t, map[string]any{"prepared": true, "flaky": "ok"}, st.ToMap())
}

type recordingCallback struct {
	mu        sync.Mutex
	completed []types.RunStatus
	errs      []error
	done      chan struct{}
	want      int
}

func (c *recordingCallback) OnComplete(_ context.Context, _ state.State, res *engine.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, res.Status)
	if len(c.completed)+len(c.errs) == c.want {
		close(c.done)
	}
	return nil
}

func (c *recordingCallback) OnError(_ context.Context, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	if len(c.completed)+len(c.errs) == c.want {
		close(c.done)
	}
	return nil
}

type chanListener struct {
	events chan state.State
}

func (l *chanListener) WaitForEvent(ctx context.Context) (state.State, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev := <-l.events:
		return ev, nil
	}
}

func TestStart(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("listener")
	require.NoError(t, wf.AddAgent(agents.NewUpdateAgent("check", func(st state.State) error {
		if state.Int(st, "n") < 0 {
			return errors.New("negative input")
		}
		return st.Set("checked", true)
	})).AsEntryPoint().End())

	listener := &chanListener{events: make(chan state.State, 3)}
	cb := &recordingCallback{done: make(chan struct{}), want: 3}
	app := newApp(t, wf, WithListener(listener), WithCallback(cb))

	for _, n := range []int{1, -1, 2} {
		listener.events <- state.FromMap(map[string]any{"n": n})
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Start(ctx) }()

	select {
	case <-cb.done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener events were not processed")
	}
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, []types.RunStatus{types.RunCompleted, types.RunCompleted}, cb.completed)
	require.Len(t, cb.errs, 1)
	assert.ErrorIs(t, cb.errs[0], types.ErrExecution)
}

func TestStartWithoutListener(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("idle")
	require.NoError(t, wf.AddAgent(agents.NewSimpleAgent("a", nil)).AsEntryPoint().End())

	err := newApp(t, wf).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Listener is configured")
}

func TestGraphAccessors(t *testing.T) {
	t.Parallel()
	wf := NewBuilder("named workflow")
	require.NoError(t, wf.AddAgent(agents.NewSimpleAgent("a", nil)).AsEntryPoint().End())

	assert.Equal(t, "named workflow", wf.Name())
	assert.Equal(t, "named-workflow", wf.Graph().ID())
	assert.Equal(t, []string{"a"}, wf.Graph().EntryPoints())
	assert.True(t, wf.Graph().IsFinishPoint("a"))
	assert.Empty(t, wf.Graph().Edges("a"))
}
