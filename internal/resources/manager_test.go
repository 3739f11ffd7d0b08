package resources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/pkg/types"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()
	m := NewManager(Capacity{CPUCores: 4, MemoryMB: 1000})

	release, err := m.Acquire(context.Background(), "a", types.ResourceRequirements{CPUCores: 1, MemoryMB: 250})
	require.NoError(t, err)

	s := m.Snapshot()
	assert.Equal(t, Capacity{CPUCores: 3, MemoryMB: 750}, s.Available)
	assert.InDelta(t, 0.25, s.CPULoad, 1e-9)
	assert.InDelta(t, 0.25, s.MemoryLoad, 1e-9)
	assert.Equal(t, 1, s.Running)

	release()
	release() // idempotent
	s = m.Snapshot()
	assert.Equal(t, Capacity{CPUCores: 4, MemoryMB: 1000}, s.Available)
	assert.Equal(t, 0, s.Running)
}

func TestUnboundedCapacity(t *testing.T) {
	t.Parallel()
	m := NewManager(Capacity{})
	req := types.ResourceRequirements{CPUCores: 64, MemoryMB: 1 << 20}
	require.True(t, m.CanAdmit(req))

	release, err := m.Acquire(context.Background(), "big", req)
	require.NoError(t, err)
	defer release()

	cpu, mem := m.Snapshot().Ratios(req)
	require.Zero(t, cpu)
	require.Zero(t, mem)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	t.Parallel()
	m := NewManager(Capacity{CPUCores: 2})
	req := types.ResourceRequirements{CPUCores: 2}

	release, err := m.Acquire(context.Background(), "first", req)
	require.NoError(t, err)
	require.False(t, m.CanAdmit(req))

	acquired := make(chan struct{})
	go func() {
		rel, err := m.Acquire(context.Background(), "second", req)
		if err == nil {
			rel()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while capacity is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire was not woken by release")
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()
	m := NewManager(Capacity{MemoryMB: 100})
	release, err := m.Acquire(context.Background(), "hog", types.ResourceRequirements{MemoryMB: 100})
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "late", types.ResourceRequirements{MemoryMB: 10})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireRejectsOversizedRequest(t *testing.T) {
	t.Parallel()
	m := NewManager(Capacity{CPUCores: 1})
	_, err := m.Acquire(context.Background(), "huge", types.ResourceRequirements{CPUCores: 8})
	require.ErrorIs(t, err, types.ErrResourceLimit)

	var le *LimitError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "cpu_cores", le.Violations[0].Resource)
}

func TestUsageAndLimits(t *testing.T) {
	t.Parallel()
	maxExec := int64(2)
	m := NewManager(Capacity{}, WithLimits(Limits{
		MaxExecutionCount: &maxExec,
		Custom:            map[string]float64{"tokens": 100},
	}))

	m.Record("a", Usage{ExecutionCount: 1, CPUTimeMs: 5, Custom: map[string]float64{"tokens": 40}})
	m.Record("b", Usage{ExecutionCount: 1, CPUTimeMs: 7, Custom: map[string]float64{"tokens": 40}})
	require.Empty(t, m.CheckLimits())

	m.Record("c", Usage{ExecutionCount: 1, Custom: map[string]float64{"tokens": 40}})
	violations := m.CheckLimits()
	require.Len(t, violations, 2)
	require.Equal(t, "execution_count", violations[0].Resource)
	require.Equal(t, "tokens", violations[1].Resource)
	require.InDelta(t, 120, violations[1].Actual, 1e-9)

	u := m.Usage()
	require.Equal(t, int64(12), u.CPUTimeMs)
	require.Equal(t, int64(3), u.ExecutionCount)

	m.Reset()
	require.Empty(t, m.CheckLimits())
}

func TestCheckUsage(t *testing.T) {
	t.Parallel()
	maxExec := int64(1)
	m := NewManager(Capacity{}, WithLimits(Limits{MaxExecutionCount: &maxExec}))
	m.Record("a", Usage{ExecutionCount: 5})

	var run Usage
	run.Add(Usage{ExecutionCount: 1, Custom: map[string]float64{"tokens": 3}})
	require.Empty(t, m.CheckUsage(run))
	require.InDelta(t, 3, run.Custom["tokens"], 1e-9)

	run.Add(Usage{ExecutionCount: 1})
	violations := m.CheckUsage(run)
	require.Len(t, violations, 1)
	require.Equal(t, "execution_count", violations[0].Resource)
}
