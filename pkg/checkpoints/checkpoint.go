package checkpoints

import (
	"context"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/pkg/types"
)

// StateCheckpointer manages execution state persistence
type StateCheckpointer struct {
	store types.CheckpointStore
	now   func() time.Time
}

var _ types.Checkpointer = (*StateCheckpointer)(nil)

func NewStateCheckpointer(store types.CheckpointStore) *StateCheckpointer {
	return &StateCheckpointer{
		store: store,
		now:   time.Now,
	}
}

// Store returns the backend the checkpointer writes to
func (sc *StateCheckpointer) Store() types.CheckpointStore {
	return sc.store
}

func (sc *StateCheckpointer) Save(ctx context.Context, key types.CheckpointKey, data *types.DataPoint) error {
	now := sc.now().UTC()
	createdAt := now
	if existing, err := sc.store.Load(ctx, key); err == nil && !existing.Meta.CreatedAt.IsZero() {
		createdAt = existing.Meta.CreatedAt
	}

	cp := types.Checkpoint{
		Key: key,
		Meta: types.CheckpointMeta{
			CreatedAt: createdAt,
			UpdatedAt: now,
			Steps:     data.Context.CurrentStep,
			Status:    data.Status,
			NodeQueue: append([]string(nil), data.NodeQueue...),
		},
		State:   data.State,
		Context: data.Context.Clone(),
	}

	if err := sc.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint for GraphID %s and ExecutionID %s: %w", key.GraphID, key.ExecutionID, err)
	}
	return nil
}

func (sc *StateCheckpointer) Load(ctx context.Context, key types.CheckpointKey) (*types.DataPoint, error) {
	cp, err := sc.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for GraphID %s and ExecutionID %s: %w", key.GraphID, key.ExecutionID, err)
	}

	data := &types.DataPoint{
		State:     cp.State,
		Context:   cp.Context.Clone(),
		Status:    cp.Meta.Status,
		NodeQueue: cp.Meta.NodeQueue,
	}

	return data, nil
}
