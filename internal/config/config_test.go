package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/internal/engine"
	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/interrupt"
	"github.com/avi3tal/graphflow/pkg/checkpoints"
	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

const sample = `
execution {
  enable_parallel            = false
  max_execution_time_seconds = 30
  max_retries                = 2
  stop_on_error              = false
  enable_checkpointing       = true
  max_concurrency            = 8
  max_steps                  = 50
  strategy                   = "critical-path"
}

logging {
  level  = "debug"
  format = "json"
}

resources {
  cpu_cores           = 4
  memory_mb           = 2048
  max_execution_count = 10
  custom = {
    tokens = 1000
  }
}

checkpoint {
  backend = "badger"
}

interrupt "review" {
  type            = "review"
  requires_human  = false
  timeout_seconds = 60
}

interrupt "approve" {}
`

func TestParse(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)

	x := cfg.Execution
	assert.False(t, x.EnableParallel)
	require.NotNil(t, x.MaxExecutionTimeSeconds)
	assert.Equal(t, 30, *x.MaxExecutionTimeSeconds)
	assert.Equal(t, 2, x.MaxRetries)
	assert.False(t, x.StopOnError)
	assert.True(t, x.EnableCheckpointing)
	assert.Equal(t, 8, x.MaxConcurrency)
	assert.Equal(t, 50, x.MaxSteps)
	assert.Equal(t, "critical-path", x.Strategy)

	assert.Equal(t, Logging{Level: "debug", Format: FormatJSON}, cfg.Logging)

	assert.Equal(t, 4.0, cfg.Resources.Capacity.CPUCores)
	assert.Equal(t, 2048.0, cfg.Resources.Capacity.MemoryMB)
	require.NotNil(t, cfg.Resources.Limits.MaxExecutionCount)
	assert.Equal(t, int64(10), *cfg.Resources.Limits.MaxExecutionCount)
	assert.Nil(t, cfg.Resources.Limits.MaxCPUTimeMs)
	assert.Equal(t, map[string]float64{"tokens": 1000}, cfg.Resources.Limits.Custom)

	assert.Equal(t, BackendBadger, cfg.Checkpoint.Backend)

	assert.Equal(t, []Interrupt{
		{Node: "review", Type: interrupt.TypeReview, RequiresHuman: false, Timeout: time.Minute},
		{Node: "approve", Type: interrupt.TypeApproval, RequiresHuman: true},
	}, cfg.Interrupts)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil, "empty.hcl")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, types.DefaultExecutionConfig(), cfg.Execution)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax", src: `execution {`, want: "failed to parse HCL file"},
		{name: "unknown attribute", src: `execution { colour = "red" }`, want: "failed to decode HCL file"},
		{name: "unknown block", src: `network {}`, want: "failed to decode HCL file"},
		{name: "strategy", src: `execution { strategy = "random" }`, want: "unknown scheduling strategy"},
		{name: "negative", src: `execution { max_steps = -1 }`, want: "cannot be negative"},
		{name: "log level", src: `logging { level = "loud" }`, want: "unknown log level"},
		{name: "log format", src: `logging { format = "xml" }`, want: "unknown log format"},
		{name: "backend", src: `checkpoint { backend = "s3" }`, want: "unknown checkpoint backend"},
		{name: "interrupt type", src: `interrupt "a" { type = "vote" }`, want: "unknown type"},
		{name: "duplicate interrupt", src: "interrupt \"a\" {}\ninterrupt \"a\" {}", want: "declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src), tt.name+".hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "graphflow.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Execution.MaxSteps)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewLogger("graphflow", "warn", FormatJSON, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "node", "a")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"@message":"shown"`)
	assert.Contains(t, out, `"node":"a"`)
}

func TestNewCheckpointStore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		backend string
		check   func(t *testing.T, store types.CheckpointStore)
	}{
		{backend: BackendNone, check: func(t *testing.T, store types.CheckpointStore) { assert.Nil(t, store) }},
		{backend: BackendMemory, check: func(t *testing.T, store types.CheckpointStore) {
			assert.IsType(t, &checkpoints.MemoryStore{}, store)
		}},
		{backend: BackendBadger, check: func(t *testing.T, store types.CheckpointStore) {
			assert.IsType(t, &checkpoints.BadgerStore{}, store)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Checkpoint.Backend = tt.backend
			store, closeFn, err := cfg.NewCheckpointStore(nil)
			require.NoError(t, err)
			require.NotNil(t, closeFn)
			t.Cleanup(func() { assert.NoError(t, closeFn()) })
			tt.check(t, store)
		})
	}
}

func TestRegisterInterrupts(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)

	m := interrupt.NewManager()
	require.NoError(t, cfg.RegisterInterrupts(m))
	assert.True(t, m.IsInterruptPoint("review"))
	assert.True(t, m.IsInterruptPoint("approve"))

	p, ok := m.Point("review")
	require.True(t, ok)
	assert.Equal(t, interrupt.TypeReview, p.Type)
	assert.Equal(t, time.Minute, p.Timeout)
}

type stepNode struct{ id string }

func (n stepNode) ID() string                   { return n.id }
func (n stepNode) Metadata() types.NodeMetadata { return types.NodeMetadata{Name: n.id} }
func (n stepNode) Invoke(_ context.Context, st state.State) (types.NodeOutput, error) {
	return types.Completed(), st.Set(n.id, true)
}

func TestEngineOptions(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
execution {
  enable_checkpointing = true
}
interrupt "b" {}
`), "engine.hcl")
	require.NoError(t, err)

	g := graph.NewGraph("config-test")
	for _, id := range []string{"a", "b"} {
		require.NoError(t, g.AddNode(stepNode{id: id}))
	}
	require.NoError(t, g.AddEdge(graph.Simple("a", "b")))
	require.NoError(t, g.SetEntryPoint("a"))
	require.NoError(t, g.SetFinishPoint("b"))

	opts, closeFn, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, closeFn()) })

	e, err := engine.New(g, opts...)
	require.NoError(t, err)
	require.NotNil(t, e.Checkpointer())

	res, err := e.Run(context.Background(), state.New())
	require.NoError(t, err)
	assert.Equal(t, types.RunInterrupted, res.Status)
	require.NotNil(t, res.Token)
	assert.Equal(t, "b", res.Token.NodeID)

	res, err = e.Resume(context.Background(), *res.Token, state.New())
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, []string{"a", "b"}, res.Context.ExecutionPath)
}
