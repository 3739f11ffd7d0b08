package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/resources"
	"github.com/avi3tal/graphflow/pkg/types"
)

// DefaultDurationMs is assumed for nodes that declare no expected duration
const DefaultDurationMs int64 = 1000

// ErrUnknownStrategy is returned by ParseStrategy
var ErrUnknownStrategy = errors.New("unknown scheduling strategy")

// Strategy selects how a ready set is ordered
type Strategy string

const (
	FIFO             Strategy = "fifo"
	Priority         Strategy = "priority"
	ShortestJobFirst Strategy = "shortest_job_first"
	ResourceAware    Strategy = "resource_aware"
	CriticalPath     Strategy = "critical_path"
	LoadBalanced     Strategy = "load_balanced"
)

// Strategies lists every supported strategy
func Strategies() []Strategy {
	return []Strategy{FIFO, Priority, ShortestJobFirst, ResourceAware, CriticalPath, LoadBalanced}
}

// ParseStrategy accepts the canonical names case-insensitively, with '-' or '_'
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if normalized == "" {
		return FIFO, nil
	}
	for _, s := range Strategies() {
		if string(s) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// ScheduledTask is one entry of a dispatch plan
type ScheduledTask struct {
	NodeID string `json:"node_id"`
	// Priority is the declared tier score
	Priority int `json:"priority"`
	// Score is strategy specific; higher dispatches sooner
	Score                float64                    `json:"score"`
	EstimatedDurationMs  int64                      `json:"estimated_duration_ms"`
	ResourceRequirements types.ResourceRequirements `json:"resource_requirements"`
	Dependencies         []string                   `json:"dependencies"`
	ScheduledAt          time.Time                  `json:"scheduled_at"`
}

// Scheduler orders ready nodes. It never mutates the graph or the resource manager.
type Scheduler struct {
	strategy Strategy
	now      func() time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the time source used for ScheduledAt
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler for strategy; an empty strategy means FIFO
func New(strategy Strategy, opts ...Option) (*Scheduler, error) {
	parsed, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	s := &Scheduler{strategy: parsed, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Strategy returns the configured strategy
func (s *Scheduler) Strategy() Strategy {
	return s.strategy
}

// Schedule turns ready into a dispatch plan ordered by descending score.
// Ties keep input order. ResourceAware may drop nodes that cannot fit.
func (s *Scheduler) Schedule(g *graph.Graph, ready []string, snap resources.Snapshot) ([]ScheduledTask, error) {
	now := s.now().UTC()
	tasks := make([]ScheduledTask, 0, len(ready))
	for _, id := range ready {
		node, ok := g.Node(id)
		if !ok {
			return nil, graph.NewGraphStructureError("schedule", id, graph.ErrNodeNotFound)
		}
		meta := node.Metadata()
		duration := meta.ExpectedDurationMs
		if duration <= 0 {
			duration = DefaultDurationMs
		}
		deps := g.Predecessors(id)
		if deps == nil {
			deps = []string{}
		}
		tasks = append(tasks, ScheduledTask{
			NodeID:               id,
			Priority:             meta.Priority.Score(),
			EstimatedDurationMs:  duration,
			ResourceRequirements: meta.ResourceRequirements,
			Dependencies:         deps,
			ScheduledAt:          now,
		})
	}

	tasks = s.score(g, tasks, snap)
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Score > tasks[j].Score
	})
	return tasks, nil
}

// Order is Schedule reduced to node ids. Nodes the strategy dropped are
// appended after the scheduled ones so the caller can defer rather than lose them.
func (s *Scheduler) Order(g *graph.Graph, ready []string, snap resources.Snapshot) ([]string, error) {
	tasks, err := s.Schedule(g, ready, snap)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ready))
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		out = append(out, t.NodeID)
		seen[t.NodeID] = struct{}{}
	}
	for _, id := range ready {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}
