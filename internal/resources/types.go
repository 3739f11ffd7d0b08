package resources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avi3tal/graphflow/pkg/types"
)

// Capacity is an amount of schedulable resources. A zero dimension is unbounded.
type Capacity struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB float64 `json:"memory_mb"`
}

// Snapshot is a point-in-time view handed to the scheduler
type Snapshot struct {
	Total     Capacity `json:"total"`
	Allocated Capacity `json:"allocated"`
	Available Capacity `json:"available"`
	// CPULoad and MemoryLoad are allocated / total in [0,1]; zero for unbounded dimensions
	CPULoad    float64 `json:"cpu_load"`
	MemoryLoad float64 `json:"memory_load"`
	Running    int     `json:"running"`
}

// Fits reports whether req can be admitted right now
func (s Snapshot) Fits(req types.ResourceRequirements) bool {
	if s.Total.CPUCores > 0 && req.CPUCores > s.Available.CPUCores {
		return false
	}
	if s.Total.MemoryMB > 0 && req.MemoryMB > s.Available.MemoryMB {
		return false
	}
	return true
}

// Ratios returns requirement / available per dimension; unbounded dimensions yield 0
func (s Snapshot) Ratios(req types.ResourceRequirements) (cpu, mem float64) {
	if s.Total.CPUCores > 0 && s.Available.CPUCores > 0 {
		cpu = req.CPUCores / s.Available.CPUCores
	}
	if s.Total.MemoryMB > 0 && s.Available.MemoryMB > 0 {
		mem = req.MemoryMB / s.Available.MemoryMB
	}
	return cpu, mem
}

// Usage accumulates what executions consumed
type Usage struct {
	CPUTimeMs      int64              `json:"cpu_time_ms"`
	MemoryBytes    int64              `json:"memory_bytes"`
	ExecutionCount int64              `json:"execution_count"`
	NetworkBytes   int64              `json:"network_bytes"`
	StorageBytes   int64              `json:"storage_bytes"`
	Custom         map[string]float64 `json:"custom,omitempty"`
}

// Add accumulates o into u
func (u *Usage) Add(o Usage) {
	u.CPUTimeMs += o.CPUTimeMs
	u.MemoryBytes += o.MemoryBytes
	u.ExecutionCount += o.ExecutionCount
	u.NetworkBytes += o.NetworkBytes
	u.StorageBytes += o.StorageBytes
	for k, v := range o.Custom {
		if u.Custom == nil {
			u.Custom = make(map[string]float64)
		}
		u.Custom[k] += v
	}
}

func (u Usage) clone() Usage {
	out := u
	if u.Custom != nil {
		out.Custom = make(map[string]float64, len(u.Custom))
		for k, v := range u.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// Limits holds optional ceilings; nil fields are not enforced
type Limits struct {
	MaxCPUTimeMs      *int64             `json:"max_cpu_time_ms,omitempty"`
	MaxMemoryBytes    *int64             `json:"max_memory_bytes,omitempty"`
	MaxExecutionCount *int64             `json:"max_execution_count,omitempty"`
	MaxNetworkBytes   *int64             `json:"max_network_bytes,omitempty"`
	MaxStorageBytes   *int64             `json:"max_storage_bytes,omitempty"`
	Custom            map[string]float64 `json:"custom,omitempty"`
}

// Violation describes one exceeded ceiling
type Violation struct {
	Resource string  `json:"resource"`
	Limit    float64 `json:"limit"`
	Actual   float64 `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %g > %g", v.Resource, v.Actual, v.Limit)
}

// Check compares usage against the limits
func (l Limits) Check(u Usage) []Violation {
	var out []Violation
	check := func(name string, limit *int64, actual int64) {
		if limit != nil && actual > *limit {
			out = append(out, Violation{Resource: name, Limit: float64(*limit), Actual: float64(actual)})
		}
	}
	check("cpu_time_ms", l.MaxCPUTimeMs, u.CPUTimeMs)
	check("memory_bytes", l.MaxMemoryBytes, u.MemoryBytes)
	check("execution_count", l.MaxExecutionCount, u.ExecutionCount)
	check("network_bytes", l.MaxNetworkBytes, u.NetworkBytes)
	check("storage_bytes", l.MaxStorageBytes, u.StorageBytes)

	keys := make([]string, 0, len(l.Custom))
	for k := range l.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if actual := u.Custom[k]; actual > l.Custom[k] {
			out = append(out, Violation{Resource: k, Limit: l.Custom[k], Actual: actual})
		}
	}
	return out
}

// LimitError is returned when admission or usage ceilings are violated
type LimitError struct {
	Node       string
	Violations []Violation
}

func (e *LimitError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	if e.Node != "" {
		return fmt.Sprintf("resource limit exceeded: node '%s': %s", e.Node, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("resource limit exceeded: %s", strings.Join(parts, ", "))
}

func (e *LimitError) Is(target error) bool {
	return target == types.ErrResourceLimit
}
