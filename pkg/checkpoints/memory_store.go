package checkpoints

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avi3tal/graphflow/pkg/types"
)

// ErrCheckpointNotFound is returned when no checkpoint exists for a key
var ErrCheckpointNotFound = fmt.Errorf("checkpoint not found")

type MemoryStore struct {
	checkpoints map[types.CheckpointKey]*types.Checkpoint
	mu          sync.RWMutex
}

var _ types.CheckpointStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[types.CheckpointKey]*types.Checkpoint),
	}
}

func (m *MemoryStore) Save(_ context.Context, checkpoint types.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoint.Context = checkpoint.Context.Clone()
	m.checkpoints[checkpoint.Key] = &checkpoint
	return nil
}

func (m *MemoryStore) Load(_ context.Context, key types.CheckpointKey) (*types.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, exists := m.checkpoints[key]
	if !exists {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointNotFound, key)
	}
	out := *cp
	out.Context = cp.Context.Clone()
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, key types.CheckpointKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, graphID string) ([]types.CheckpointKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []types.CheckpointKey
	for k := range m.checkpoints {
		if k.GraphID == graphID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ExecutionID < keys[j].ExecutionID })
	return keys, nil
}
