package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/internal/resources"
	"github.com/avi3tal/graphflow/internal/scheduler"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/types"
)

// Checkpoint backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Log formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the resolved runtime configuration of an engine
type Config struct {
	Execution  types.ExecutionConfig
	Logging    Logging
	Resources  Resources
	Checkpoint Checkpoint
	Interrupts []Interrupt
}

type Logging struct {
	Level  string
	Format string
}

type Resources struct {
	Capacity resources.Capacity
	Limits   resources.Limits
}

type Checkpoint struct {
	Backend    string
	Path       string
	SyncWrites bool
}

// Interrupt is an interrupt point declared in configuration
type Interrupt struct {
	Node          string
	Type          interrupt.Type
	RequiresHuman bool
	Timeout       time.Duration
}

// hclFile is the top-level structure of a configuration file
type hclFile struct {
	Execution  *hclExecution   `hcl:"execution,block"`
	Logging    *hclLogging     `hcl:"logging,block"`
	Resources  *hclResources   `hcl:"resources,block"`
	Checkpoint *hclCheckpoint  `hcl:"checkpoint,block"`
	Interrupts []*hclInterrupt `hcl:"interrupt,block"`
}

type hclExecution struct {
	EnableParallel          *bool   `hcl:"enable_parallel,optional"`
	MaxExecutionTimeSeconds *int    `hcl:"max_execution_time_seconds,optional"`
	MaxRetries              *int    `hcl:"max_retries,optional"`
	StopOnError             *bool   `hcl:"stop_on_error,optional"`
	EnableCheckpointing     *bool   `hcl:"enable_checkpointing,optional"`
	MaxConcurrency          *int    `hcl:"max_concurrency,optional"`
	MaxSteps                *int    `hcl:"max_steps,optional"`
	Strategy                *string `hcl:"strategy,optional"`
}

type hclLogging struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type hclResources struct {
	CPUCores          *float64           `hcl:"cpu_cores,optional"`
	MemoryMB          *float64           `hcl:"memory_mb,optional"`
	MaxCPUTimeMs      *int64             `hcl:"max_cpu_time_ms,optional"`
	MaxMemoryBytes    *int64             `hcl:"max_memory_bytes,optional"`
	MaxExecutionCount *int64             `hcl:"max_execution_count,optional"`
	MaxNetworkBytes   *int64             `hcl:"max_network_bytes,optional"`
	MaxStorageBytes   *int64             `hcl:"max_storage_bytes,optional"`
	Custom            map[string]float64 `hcl:"custom,optional"`
}

type hclCheckpoint struct {
	Backend    *string `hcl:"backend,optional"`
	Path       *string `hcl:"path,optional"`
	SyncWrites *bool   `hcl:"sync_writes,optional"`
}

type hclInterrupt struct {
	Node           string  `hcl:"node,label"`
	Type           *string `hcl:"type,optional"`
	RequiresHuman  *bool   `hcl:"requires_human,optional"`
	TimeoutSeconds *int    `hcl:"timeout_seconds,optional"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Execution:  types.DefaultExecutionConfig(),
		Logging:    Logging{Level: "info", Format: FormatText},
		Checkpoint: Checkpoint{Backend: BackendMemory},
	}
}

// Load reads and decodes an HCL configuration file
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := Default()
	raw.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", filename)
	}
	return cfg, nil
}

func (f *hclFile) apply(cfg *Config) {
	if e := f.Execution; e != nil {
		x := &cfg.Execution
		setIfPresent(&x.EnableParallel, e.EnableParallel)
		setIfPresent(&x.MaxRetries, e.MaxRetries)
		setIfPresent(&x.StopOnError, e.StopOnError)
		setIfPresent(&x.EnableCheckpointing, e.EnableCheckpointing)
		setIfPresent(&x.MaxConcurrency, e.MaxConcurrency)
		setIfPresent(&x.MaxSteps, e.MaxSteps)
		setIfPresent(&x.Strategy, e.Strategy)
		if e.MaxExecutionTimeSeconds != nil {
			v := *e.MaxExecutionTimeSeconds
			x.MaxExecutionTimeSeconds = &v
		}
	}
	if l := f.Logging; l != nil {
		setIfPresent(&cfg.Logging.Level, l.Level)
		setIfPresent(&cfg.Logging.Format, l.Format)
	}
	if r := f.Resources; r != nil {
		setIfPresent(&cfg.Resources.Capacity.CPUCores, r.CPUCores)
		setIfPresent(&cfg.Resources.Capacity.MemoryMB, r.MemoryMB)
		cfg.Resources.Limits = resources.Limits{
			MaxCPUTimeMs:      r.MaxCPUTimeMs,
			MaxMemoryBytes:    r.MaxMemoryBytes,
			MaxExecutionCount: r.MaxExecutionCount,
			MaxNetworkBytes:   r.MaxNetworkBytes,
			MaxStorageBytes:   r.MaxStorageBytes,
			Custom:            r.Custom,
		}
	}
	if c := f.Checkpoint; c != nil {
		setIfPresent(&cfg.Checkpoint.Backend, c.Backend)
		setIfPresent(&cfg.Checkpoint.Path, c.Path)
		setIfPresent(&cfg.Checkpoint.SyncWrites, c.SyncWrites)
	}
	for _, i := range f.Interrupts {
		in := Interrupt{Node: i.Node, Type: interrupt.TypeApproval, RequiresHuman: true}
		if i.Type != nil {
			in.Type = interrupt.Type(*i.Type)
		}
		setIfPresent(&in.RequiresHuman, i.RequiresHuman)
		if i.TimeoutSeconds != nil {
			in.Timeout = time.Duration(*i.TimeoutSeconds) * time.Second
		}
		cfg.Interrupts = append(cfg.Interrupts, in)
	}
}

func setIfPresent[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks values that HCL decoding cannot
func (c *Config) Validate() error {
	if _, err := scheduler.ParseStrategy(c.Execution.Strategy); err != nil {
		return err
	}
	if c.Execution.MaxConcurrency < 0 || c.Execution.MaxSteps < 0 || c.Execution.MaxRetries < 0 {
		return errors.New("execution limits cannot be negative")
	}
	if hclog.LevelFromString(c.Logging.Level) == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	switch c.Checkpoint.Backend {
	case BackendNone, BackendMemory, BackendBadger:
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	seen := make(map[string]struct{}, len(c.Interrupts))
	for _, i := range c.Interrupts {
		switch i.Type {
		case interrupt.TypeApproval, interrupt.TypeInput, interrupt.TypeReview, interrupt.TypeCustom:
		default:
			return fmt.Errorf("interrupt %q: unknown type %q", i.Node, i.Type)
		}
		if _, ok := seen[i.Node]; ok {
			return fmt.Errorf("interrupt %q declared twice", i.Node)
		}
		seen[i.Node] = struct{}{}
	}
	return nil
}

// NewLogger builds an hclog logger writing to w
func NewLogger(name, level, format string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: strings.EqualFold(format, FormatJSON),
		Output:     w,
	})
}

// Logger builds the logger described by the logging block
func (c *Config) Logger(name string, w io.Writer) hclog.Logger {
	return NewLogger(name, c.Logging.Level, c.Logging.Format, w)
}

func (c *Config) NewResourceManager(logger hclog.Logger) *resources.Manager {
	return resources.NewManager(c.Resources.Capacity,
		resources.WithLimits(c.Resources.Limits),
		resources.WithLogger(logger),
	)
}

// RegisterInterrupts declares every configured interrupt point on m
func (c *Config) RegisterInterrupts(m *interrupt.Manager) error {
	for _, i := range c.Interrupts {
		if err := m.RegisterInterruptPoint(i.Node, i.Type, i.RequiresHuman, i.Timeout, nil); err != nil {
			return err
		}
	}
	return nil
}

// NewCheckpointStore opens the configured backend. The returned close
// function releases it and is never nil. A nil store means checkpointing is off.
func (c *Config) NewCheckpointStore(logger hclog.Logger) (types.CheckpointStore, func() error, error) {
	noop := func() error { return nil }
	switch c.Checkpoint.Backend {
	case BackendNone:
		return nil, noop, nil
	case BackendBadger:
		opts := []checkpoints.BadgerOption{
			checkpoints.WithBadgerLogger(logger),
			checkpoints.WithSyncWrites(c.Checkpoint.SyncWrites),
		}
		store, err := checkpoints.NewBadgerStore(c.Checkpoint.Path, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return checkpoints.NewMemoryStore(), noop, nil
	}
}

// EngineOptions wires the configuration into engine options. The close
// function releases the checkpoint backend.
func (c *Config) EngineOptions(logger hclog.Logger) ([]engine.Option, func() error, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	im := interrupt.NewManager(interrupt.WithLogger(logger))
	if err := c.RegisterInterrupts(im); err != nil {
		return nil, nil, err
	}
	opts := []engine.Option{
		engine.WithConfig(c.Execution),
		engine.WithLogger(logger),
		engine.WithResourceManager(c.NewResourceManager(logger)),
		engine.WithInterruptManager(im),
	}

	closeFn := func() error { return nil }
	if c.Execution.EnableCheckpointing {
		store, closer, err := c.NewCheckpointStore(logger)
		if err != nil {
			return nil, nil, err
		}
		if store != nil {
			opts = append(opts, engine.WithCheckpointStore(store))
		}
		closeFn = closer
	}
	return opts, closeFn, nil
}
