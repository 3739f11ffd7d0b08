package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/internal/resources"
	"github.com/avi3tal/graphflow/internal/scheduler"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

// Keys of the context map stored with an interrupt
const (
	contextExecution = "execution"
	contextFrontier  = "frontier"
	contextSkip      = "skip"
)

// Engine drives runs of one validated graph
type Engine struct {
	graph        *graph.Graph
	config       types.ExecutionConfig
	scheduler    *scheduler.Scheduler
	resources    *resources.Manager
	interrupts   *interrupt.Manager
	checkpointer types.Checkpointer
	merge        MergeFunc
	logger       hclog.Logger
	now          func() time.Time
}

// Result is the terminal outcome of Run, Resume or ResumeFromCheckpoint.
// It is returned together with the error on failure so progress stays inspectable.
type Result struct {
	Status  types.RunStatus        `json:"status"`
	Context types.ExecutionContext `json:"context"`
	Token   *interrupt.ResumeToken `json:"token,omitempty"`
}

// New validates g and prepares an engine for it
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, graph.NewGraphStructureError("new_engine", "", graph.ErrInvalidNode)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		graph:  g,
		config: types.DefaultExecutionConfig(),
		merge:  DeclarationOrderMerge,
		logger: hclog.NewNullLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.Named("engine")

	if e.scheduler == nil {
		s, err := scheduler.New(scheduler.Strategy(e.config.Strategy))
		if err != nil {
			return nil, errors.Wrap(err, "create scheduler")
		}
		e.scheduler = s
	}
	if e.resources == nil {
		e.resources = resources.NewManager(resources.Capacity{}, resources.WithLogger(e.logger))
	}
	if e.interrupts == nil {
		e.interrupts = interrupt.NewManager(interrupt.WithLogger(e.logger))
	}
	if e.checkpointer == nil && e.config.EnableCheckpointing {
		e.checkpointer = checkpoints.NewStateCheckpointer(checkpoints.NewMemoryStore())
	}
	if e.merge == nil {
		e.merge = DeclarationOrderMerge
	}
	return e, nil
}

func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) Config() types.ExecutionConfig { return e.config.Clone() }

func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

func (e *Engine) Resources() *resources.Manager { return e.resources }

// Interrupts returns the arena holding this engine's interrupt points and suspended runs
func (e *Engine) Interrupts() *interrupt.Manager { return e.interrupts }

func (e *Engine) Checkpointer() types.Checkpointer { return e.checkpointer }

// Run executes the graph from its entry points against st, which is mutated in place
func (e *Engine) Run(ctx context.Context, st state.State) (*Result, error) {
	execCtx := types.NewExecutionContext(uuid.NewString(), e.now().UTC())
	r := e.newRun(execCtx)
	r.logger.Info("starting execution", "graph", e.graph.ID(), "entry_points", e.graph.EntryPoints())
	return r.drive(ctx, st, e.graph.EntryPoints())
}

// Resume consumes token, restores its snapshot into st and continues the
// suspended run with its original execution id, path and step counter.
func (e *Engine) Resume(ctx context.Context, token interrupt.ResumeToken, st state.State) (*Result, error) {
	is, err := e.interrupts.ResumeExecution(token)
	if err != nil {
		return nil, err
	}
	if err := restoreWithInput(st, is.State); err != nil {
		return nil, errors.Wrap(err, "restore interrupted state")
	}

	var execCtx types.ExecutionContext
	if err := decodeContext(is.Context, contextExecution, &execCtx); err != nil {
		return nil, interrupt.NewInterruptError("resume", token.InterruptID, token.NodeID, err)
	}
	var frontier []string
	if err := decodeContext(is.Context, contextFrontier, &frontier); err != nil {
		return nil, interrupt.NewInterruptError("resume", token.InterruptID, token.NodeID, err)
	}
	var skip string
	if _, ok := is.Context[contextSkip]; ok {
		if err := decodeContext(is.Context, contextSkip, &skip); err != nil {
			return nil, interrupt.NewInterruptError("resume", token.InterruptID, token.NodeID, err)
		}
	}
	if execCtx.NodeAttempts == nil {
		execCtx.NodeAttempts = make(map[string]int)
	}

	r := e.newRun(execCtx)
	r.skip = skip
	r.logger.Info("resuming execution", "node", token.NodeID, "frontier", frontier)
	return r.drive(ctx, st, frontier)
}

// ResumeFromCheckpoint loads the last checkpoint of executionID into st and
// continues from its node queue. A completed checkpoint returns immediately.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, executionID string, st state.State) (*Result, error) {
	if e.checkpointer == nil {
		return nil, ErrNoCheckpointer
	}
	key := types.CheckpointKey{GraphID: e.graph.ID(), ExecutionID: executionID}
	dp, err := e.checkpointer.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := restoreWithInput(st, dp.State); err != nil {
		return nil, errors.Wrap(err, "restore checkpoint state")
	}

	execCtx := dp.Context.Clone()
	execCtx.ExecutionID = executionID
	if dp.Status == types.RunCompleted {
		execCtx.Status = types.RunCompleted
		return &Result{Status: types.RunCompleted, Context: execCtx}, nil
	}

	r := e.newRun(execCtx)
	r.logger.Info("resuming from checkpoint", "status", dp.Status, "node_queue", dp.NodeQueue)
	return r.drive(ctx, st, dp.NodeQueue)
}

// run holds the bookkeeping of one execution
type run struct {
	e      *Engine
	logger hclog.Logger
	sem    *semaphore.Weighted

	mu      sync.Mutex
	execCtx types.ExecutionContext
	// usage is what this run (or resume) recorded, checked against the limits
	usage resources.Usage
	// skip disables the interrupt point check once, for the node being resumed
	skip string
}

func (e *Engine) newRun(execCtx types.ExecutionContext) *run {
	workers := int64(e.config.MaxConcurrency)
	if workers <= 0 || !e.config.EnableParallel {
		workers = 1
	}
	return &run{
		e:       e,
		logger:  e.logger.With("execution_id", execCtx.ExecutionID),
		sem:     semaphore.NewWeighted(workers),
		execCtx: execCtx,
	}
}

func (r *run) drive(ctx context.Context, st state.State, frontier []string) (*Result, error) {
	cfg := r.e.config
	if cfg.MaxExecutionTimeSeconds != nil && *cfg.MaxExecutionTimeSeconds > 0 {
		d := time.Duration(*cfg.MaxExecutionTimeSeconds) * time.Second
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d, &TimeoutError{Scope: ScopeRun, Duration: d})
		defer cancel()
	}

	started := time.Now()
	priorMs := r.execCtx.DurationMs
	r.setStatus(types.RunRunning)

	rest, susp, err := r.walk(ctx, st, frontier, nil, false)

	res := &Result{}
	switch {
	case err != nil:
		res.Status = types.RunFailed
		if errors.Is(err, types.ErrTimeout) {
			res.Status = types.RunTimedOut
		}
	case susp != nil:
		token, ierr := r.suspend(st, susp)
		if ierr != nil {
			err = ierr
			res.Status = types.RunFailed
			break
		}
		res.Status = types.RunInterrupted
		res.Token = &token
		rest = susp.frontier
	default:
		res.Status = types.RunCompleted
		rest = nil
	}

	r.mu.Lock()
	r.execCtx.Status = res.Status
	r.execCtx.DurationMs = priorMs + time.Since(started).Milliseconds()
	r.execCtx.Next = append([]string(nil), rest...)
	res.Context = r.execCtx.Clone()
	r.mu.Unlock()

	// persist the terminal state even when the run context is already done
	if cerr := r.checkpoint(context.WithoutCancel(ctx), st, res.Status, rest); cerr != nil && err == nil {
		err = cerr
		res.Status = types.RunFailed
		res.Context.Status = types.RunFailed
	}

	switch res.Status {
	case types.RunCompleted:
		r.logger.Info("execution completed", "steps", res.Context.CurrentStep, "duration_ms", res.Context.DurationMs)
	case types.RunInterrupted:
		r.logger.Info("execution interrupted", "node", res.Token.NodeID, "interrupt_id", res.Token.InterruptID)
	default:
		r.logger.Error("execution failed", "status", res.Status, "error", err)
	}
	return res, err
}

func (r *run) setStatus(s types.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execCtx.Status = s
}

func (r *run) snapshotContext() types.ExecutionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execCtx.Clone()
}

func (r *run) checkpoint(ctx context.Context, st state.State, status types.RunStatus, queue []string) error {
	cp := r.e.checkpointer
	if cp == nil || !r.e.config.EnableCheckpointing {
		return nil
	}
	execCtx := r.snapshotContext()
	execCtx.Status = status
	execCtx.Next = append([]string(nil), queue...)
	data := &types.DataPoint{
		State:     st.ToMap(),
		Context:   execCtx,
		Status:    status,
		NodeQueue: append([]string{}, queue...),
	}
	key := types.CheckpointKey{GraphID: r.e.graph.ID(), ExecutionID: execCtx.ExecutionID}
	if err := cp.Save(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// suspension describes where a top level walk stopped for an interrupt
type suspension struct {
	node     string
	reason   string
	frontier []string
	// before is set when the node has not executed yet
	before  bool
	message string
}

func (r *run) suspend(st state.State, s *suspension) (interrupt.ResumeToken, error) {
	execCtx := r.snapshotContext()
	execCtx.Status = types.RunInterrupted
	execCtx.Next = append([]string(nil), s.frontier...)

	ctxMap := map[string]any{
		contextExecution: execCtx,
		contextFrontier:  append([]string{}, s.frontier...),
	}
	opts := []interrupt.CreateOption{interrupt.WithContext(ctxMap)}
	if s.before {
		ctxMap[contextSkip] = s.node
	} else if !r.e.interrupts.IsInterruptPoint(s.node) {
		opts = append(opts, interrupt.WithType(interrupt.TypeInput, true))
	}
	if s.message != "" {
		opts = append(opts, interrupt.WithInteraction(map[string]any{"message": s.message}))
	}
	return r.e.interrupts.CreateInterrupt(execCtx.ExecutionID, s.node, st, s.reason, opts...)
}

// restoreWithInput loads snapshot into st and then re-applies what the caller
// put in st, so input supplied on resume wins over the snapshot.
func restoreWithInput(st state.State, snapshot map[string]any) error {
	input := st.ToMap()
	if err := state.Restore(st, snapshot); err != nil {
		return err
	}
	return state.Apply(st, state.Changes{Updated: input})
}

// decodeContext reads key from an interrupt context map into out. Values may be
// the original Go types or their JSON decoded form after an arena restore.
func decodeContext(m map[string]any, key string, out any) error {
	v, ok := m[key]
	if !ok {
		return fmt.Errorf("interrupt context is missing %q", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode interrupt context %q", key)
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decode interrupt context %q", key)
}
