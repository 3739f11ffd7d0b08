package workflow

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

// Listener is polled or awaited for new inputs to run in the workflow.
// For example, it might be reading from a queue, an HTTP endpoint, etc.
type Listener interface {
	// WaitForEvent blocks until a new event is available or context is done.
	// Returns the input state for the workflow.
	WaitForEvent(ctx context.Context) (state.State, error)
}

// Callback is invoked after execution (success or error). OnComplete also
// receives interrupted runs; the result status tells them apart.
type Callback interface {
	OnComplete(ctx context.Context, output state.State, res *engine.Result) error
	OnError(ctx context.Context, err error) error
}

// App represents a built workflow plus the engine that runs it.
type App struct {
	workflow *Builder
	engine   *engine.Engine
	listener Listener
	callback Callback

	engineOpts []engine.Option
	logger     hclog.Logger
}

// AppOption is a functional option that configures the App before finalizing.
type AppOption func(*App)

func WithListener(l Listener) AppOption {
	return func(a *App) {
		a.listener = l
	}
}

func WithCallback(cb Callback) AppOption {
	return func(a *App) {
		a.callback = cb
	}
}

// WithConfig sets the execution configuration of the engine
func WithConfig(cfg types.ExecutionConfig) AppOption {
	return func(a *App) {
		a.engineOpts = append(a.engineOpts, engine.WithConfig(cfg))
	}
}

func WithCheckpointStore(store types.CheckpointStore) AppOption {
	return func(a *App) {
		a.engineOpts = append(a.engineOpts, engine.WithCheckpointStore(store))
	}
}

// WithEngineOptions passes options straight to the engine
func WithEngineOptions(opts ...engine.Option) AppOption {
	return func(a *App) {
		a.engineOpts = append(a.engineOpts, opts...)
	}
}

func WithLogger(logger hclog.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewApp validates the Builder, creates the engine and registers the
// declared interrupt points.
func NewApp(wf *Builder, opts ...AppOption) (*App, error) {
	app := &App{workflow: wf, logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(app)
	}
	if err := wf.Err(); err != nil {
		return nil, fmt.Errorf("NewApp: invalid workflow %q: %w", wf.name, err)
	}

	engineOpts := append([]engine.Option{engine.WithLogger(app.logger)}, app.engineOpts...)
	e, err := engine.New(wf.graph, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewApp: failed to build workflow: %w", err)
	}
	if err := registerInterrupts(wf, e.Interrupts()); err != nil {
		return nil, fmt.Errorf("NewApp: %w", err)
	}
	app.engine = e
	app.logger = app.logger.Named("app")
	return app, nil
}

func registerInterrupts(wf *Builder, m *interrupt.Manager) error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	for _, d := range wf.interrupts {
		if err := m.RegisterInterruptPoint(d.node, d.typ, d.requiresHuman, d.timeout, d.data); err != nil {
			return errors.Wrapf(err, "register interrupt point %s", d.node)
		}
	}
	return nil
}

func (app *App) Engine() *engine.Engine {
	return app.engine
}

// Interrupts returns the arena holding suspended runs
func (app *App) Interrupts() *interrupt.Manager {
	return app.engine.Interrupts()
}

// Invoke runs the workflow *once* against st, which is mutated in place.
// If the App has a callback set, OnComplete/OnError is called here.
func (app *App) Invoke(ctx context.Context, st state.State) (*engine.Result, error) {
	res, err := app.engine.Run(ctx, st)
	return app.finish(ctx, "invoke", st, res, err)
}

// Resume continues a run suspended at an interrupt point
func (app *App) Resume(ctx context.Context, token interrupt.ResumeToken, st state.State) (*engine.Result, error) {
	res, err := app.engine.Resume(ctx, token, st)
	return app.finish(ctx, "resume", st, res, err)
}

// ResumeFromCheckpoint continues executionID from its last checkpoint
func (app *App) ResumeFromCheckpoint(ctx context.Context, executionID string, st state.State) (*engine.Result, error) {
	res, err := app.engine.ResumeFromCheckpoint(ctx, executionID, st)
	return app.finish(ctx, "resume from checkpoint", st, res, err)
}

func (app *App) finish(ctx context.Context, op string, st state.State, res *engine.Result, err error) (*engine.Result, error) {
	if err != nil {
		if app.callback != nil {
			if cbErr := app.callback.OnError(ctx, err); cbErr != nil {
				app.logger.Warn("callback OnError failed", "error", cbErr)
			}
		}
		return res, errors.Wrapf(err, "%s: workflow failed", op)
	}
	if app.callback != nil {
		if cbErr := app.callback.OnComplete(ctx, st, res); cbErr != nil {
			return res, fmt.Errorf("%s: callback OnComplete failed: %w", op, cbErr)
		}
	}
	return res, nil
}

// Start runs in a loop, continuously invoking the workflow for each incoming event from the Listener.
// It blocks until ctx is done.
func (app *App) Start(ctx context.Context) error {
	if app.listener == nil {
		return errors.New("start called, but no Listener is configured")
	}

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context is done")
		default:
		}

		input, err := app.listener.WaitForEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(ctx.Err(), "context is done")
			}
			app.logger.Warn("listener failed", "error", err)
			if app.callback != nil {
				_ = app.callback.OnError(ctx, err)
			}
			continue
		}

		// failures were already reported through OnError
		if _, err := app.Invoke(ctx, input); err != nil {
			app.logger.Debug("invocation failed", "error", err)
		}
	}
}
