package types

import (
	"context"
	"time"
)

// CheckpointKey addresses one run of one graph
type CheckpointKey struct {
	GraphID     string `json:"graph_id"`
	ExecutionID string `json:"execution_id"`
}

// CheckpointMeta is the bookkeeping stored next to the state
type CheckpointMeta struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Steps     int       `json:"steps"`
	Status    RunStatus `json:"status"`
	NodeQueue []string  `json:"node_queue"`
}

// Checkpoint is the persisted form of a run
type Checkpoint struct {
	Key     CheckpointKey    `json:"key"`
	Meta    CheckpointMeta   `json:"meta"`
	State   map[string]any   `json:"state"`
	Context ExecutionContext `json:"context"`
}

// DataPoint is what the engine hands to a Checkpointer after a step
type DataPoint struct {
	State     map[string]any   `json:"state"`
	Context   ExecutionContext `json:"context"`
	Status    RunStatus        `json:"status"`
	NodeQueue []string         `json:"node_queue"`
}

// CheckpointStore is the storage backend behind a Checkpointer
type CheckpointStore interface {
	Save(ctx context.Context, checkpoint Checkpoint) error
	Load(ctx context.Context, key CheckpointKey) (*Checkpoint, error)
	Delete(ctx context.Context, key CheckpointKey) error
	List(ctx context.Context, graphID string) ([]CheckpointKey, error)
}

// Checkpointer persists run state for crash recovery
type Checkpointer interface {
	Save(ctx context.Context, key CheckpointKey, data *DataPoint) error
	Load(ctx context.Context, key CheckpointKey) (*DataPoint, error)
}
