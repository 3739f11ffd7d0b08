package engine

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/internal/resources"
	"github.com/avi3tal/graphflow/internal/scheduler"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/types"
)

// Option configures an Engine
type Option func(*Engine)

func WithConfig(cfg types.ExecutionConfig) Option {
	return func(e *Engine) {
		e.config = cfg.Clone()
	}
}

// WithScheduler overrides the scheduler built from ExecutionConfig.Strategy
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

func WithResourceManager(m *resources.Manager) Option {
	return func(e *Engine) {
		e.resources = m
	}
}

// WithInterruptManager shares an interrupt arena between engines
func WithInterruptManager(m *interrupt.Manager) Option {
	return func(e *Engine) {
		e.interrupts = m
	}
}

func WithCheckpointer(c types.Checkpointer) Option {
	return func(e *Engine) {
		e.checkpointer = c
	}
}

// WithCheckpointStore wraps store in a StateCheckpointer
func WithCheckpointStore(store types.CheckpointStore) Option {
	return func(e *Engine) {
		e.checkpointer = checkpoints.NewStateCheckpointer(store)
	}
}

// WithMergeFunc replaces DeclarationOrderMerge at parallel joins
func WithMergeFunc(fn MergeFunc) Option {
	return func(e *Engine) {
		e.merge = fn
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source of execution contexts
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
