package resources

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/avi3tal/graphflow/pkg/types"
)

// Manager tracks capacity, admitted work and accumulated usage.
// Reads dominate, so state is guarded by a RWMutex.
type Manager struct {
	mu        sync.RWMutex
	capacity  Capacity
	allocated Capacity
	running   map[string]int
	usage     Usage
	limits    Limits

	// notify is closed and replaced on every release to wake blocked admissions
	notify chan struct{}
	logger hclog.Logger
}

// Option configures a Manager
type Option func(*Manager)

func WithLogger(logger hclog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLimits sets the ceilings. The engine enforces them per execution with
// CheckUsage, so one run exceeding a ceiling does not fail later runs.
func WithLimits(limits Limits) Option {
	return func(m *Manager) {
		m.limits = limits
	}
}

// NewManager creates a manager for the given capacity. Use a zero Capacity for unbounded admission.
func NewManager(capacity Capacity, opts ...Option) *Manager {
	m := &Manager{
		capacity: capacity,
		running:  make(map[string]int),
		notify:   make(chan struct{}),
		logger:   hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.Named("resources")
	return m
}

// Snapshot returns the current capacity view
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		Total:     m.capacity,
		Allocated: m.allocated,
		Available: Capacity{
			CPUCores: max(0, m.capacity.CPUCores-m.allocated.CPUCores),
			MemoryMB: max(0, m.capacity.MemoryMB-m.allocated.MemoryMB),
		},
	}
	if m.capacity.CPUCores > 0 {
		s.CPULoad = m.allocated.CPUCores / m.capacity.CPUCores
	}
	if m.capacity.MemoryMB > 0 {
		s.MemoryLoad = m.allocated.MemoryMB / m.capacity.MemoryMB
	}
	for _, n := range m.running {
		s.Running += n
	}
	return s
}

// CanAdmit reports whether req fits right now without reserving anything
func (m *Manager) CanAdmit(req types.ResourceRequirements) bool {
	return m.Snapshot().Fits(req)
}

// Acquire reserves req for node, blocking until enough capacity is released
// or ctx ends. Requests larger than the total capacity fail immediately.
// The returned release func is idempotent.
func (m *Manager) Acquire(ctx context.Context, node string, req types.ResourceRequirements) (func(), error) {
	if v := m.exceedsCapacity(req); len(v) > 0 {
		return nil, &LimitError{Node: node, Violations: v}
	}

	for {
		m.mu.Lock()
		if m.snapshotLocked().Fits(req) {
			m.allocated.CPUCores += req.CPUCores
			m.allocated.MemoryMB += req.MemoryMB
			m.running[node]++
			m.mu.Unlock()

			m.logger.Trace("resources acquired", "node", node, "cpu_cores", req.CPUCores, "memory_mb", req.MemoryMB)
			var once sync.Once
			return func() { once.Do(func() { m.release(node, req) }) }, nil
		}
		wait := m.notify
		m.mu.Unlock()

		m.logger.Debug("waiting for resources", "node", node, "cpu_cores", req.CPUCores, "memory_mb", req.MemoryMB)
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-wait:
		}
	}
}

func (m *Manager) release(node string, req types.ResourceRequirements) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocated.CPUCores = max(0, m.allocated.CPUCores-req.CPUCores)
	m.allocated.MemoryMB = max(0, m.allocated.MemoryMB-req.MemoryMB)
	if m.running[node] <= 1 {
		delete(m.running, node)
	} else {
		m.running[node]--
	}

	close(m.notify)
	m.notify = make(chan struct{})
	m.logger.Trace("resources released", "node", node)
}

func (m *Manager) exceedsCapacity(req types.ResourceRequirements) []Violation {
	var out []Violation
	if m.capacity.CPUCores > 0 && req.CPUCores > m.capacity.CPUCores {
		out = append(out, Violation{Resource: "cpu_cores", Limit: m.capacity.CPUCores, Actual: req.CPUCores})
	}
	if m.capacity.MemoryMB > 0 && req.MemoryMB > m.capacity.MemoryMB {
		out = append(out, Violation{Resource: "memory_mb", Limit: m.capacity.MemoryMB, Actual: req.MemoryMB})
	}
	return out
}

// Record adds the usage of one execution
func (m *Manager) Record(node string, u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Add(u)
	m.logger.Trace("usage recorded", "node", node, "cpu_time_ms", u.CPUTimeMs, "executions", m.usage.ExecutionCount)
}

// Usage returns a copy of the accumulated usage
func (m *Manager) Usage() Usage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage.clone()
}

// SetLimits replaces the enforced ceilings
func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = l
}

// CheckLimits compares the usage accumulated by every caller since the last
// Reset with the ceilings
func (m *Manager) CheckLimits() []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits.Check(m.usage)
}

// CheckUsage compares u, typically the usage of a single execution, with the ceilings
func (m *Manager) CheckUsage(u Usage) []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits.Check(u)
}

// Reset clears accumulated usage
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = Usage{}
}
