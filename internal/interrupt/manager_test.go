package interrupt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func TestCreateAndResume(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.RegisterInterruptPoint("review", TypeReview, true, 0, map[string]any{"form": "approve"}))

	st := state.FromMap(map[string]any{"draft": "v1", "score": 3})
	token, err := m.CreateInterrupt("exec-1", "review", st, "needs approval",
		WithContext(map[string]any{"frontier": []string{"review"}}))
	require.NoError(t, err)
	require.NotEmpty(t, token.InterruptID)
	require.Nil(t, token.ExpiresAt)

	// later writes to the live state do not leak into the snapshot
	require.NoError(t, st.Set("draft", "v2"))

	got, err := m.ResumeExecution(token)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"draft": "v1", "score": 3}, got.State)
	assert.Equal(t, TypeReview, got.Type)
	assert.True(t, got.RequiresHuman)
	assert.Equal(t, "needs approval", got.Reason)
	assert.Equal(t, map[string]any{"form": "approve"}, got.Interaction)
	assert.Equal(t, []string{"review"}, got.Context["frontier"])

	_, err = m.ResumeExecution(token)
	require.ErrorIs(t, err, ErrInterruptNotFound)
	require.ErrorIs(t, err, types.ErrInterrupt)

	s := m.Stats()
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 1, s.Resumed)
	assert.Equal(t, 0, s.Pending)
}

func TestResumeRejectsMismatchedExecution(t *testing.T) {
	t.Parallel()
	m := NewManager()
	token, err := m.CreateInterrupt("exec-1", "a", state.New(), "manual")
	require.NoError(t, err)

	forged := token
	forged.ExecutionID = "exec-2"
	_, err = m.ResumeExecution(forged)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, types.ErrInterrupt)

	// the genuine token still works
	_, err = m.ResumeExecution(token)
	require.NoError(t, err)
}

func TestExpiredInterrupt(t *testing.T) {
	t.Parallel()
	clock := newClock()
	m := NewManager(WithClock(clock.Now))
	require.NoError(t, m.RegisterInterruptPoint("approve", TypeApproval, true, time.Minute, nil))

	token, err := m.CreateInterrupt("exec-1", "approve", state.New(), "wait")
	require.NoError(t, err)
	require.NotNil(t, token.ExpiresAt)
	require.Equal(t, clock.Now().Add(time.Minute), *token.ExpiresAt)

	clock.Advance(2 * time.Minute)
	_, err = m.ResumeExecution(token)
	require.ErrorIs(t, err, ErrInterruptExpired)
	require.ErrorIs(t, err, types.ErrTimeout)
	require.ErrorIs(t, err, types.ErrInterrupt)

	// the expired entry was dropped
	_, err = m.ResumeExecution(token)
	require.ErrorIs(t, err, ErrInterruptNotFound)
	require.Equal(t, 1, m.Stats().Expired)
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()
	clock := newClock()
	m := NewManager(WithClock(clock.Now))
	require.NoError(t, m.RegisterInterruptPoint("short", TypeInput, false, time.Second, nil))
	require.NoError(t, m.RegisterInterruptPoint("long", TypeInput, false, time.Hour, nil))

	for _, node := range []string{"short", "short", "long"} {
		_, err := m.CreateInterrupt("exec", node, state.New(), "wait")
		require.NoError(t, err)
	}
	_, err := m.CreateInterrupt("exec", "unregistered", state.New(), "wait")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.Equal(t, 2, m.CleanupExpired())
	require.Len(t, m.Pending(), 2)
	require.Equal(t, 0, m.CleanupExpired())
}

func TestCancelInterrupt(t *testing.T) {
	t.Parallel()
	m := NewManager()
	token, err := m.CreateInterrupt("exec", "a", state.New(), "wait")
	require.NoError(t, err)

	require.NoError(t, m.CancelInterrupt(token.InterruptID))
	require.ErrorIs(t, m.CancelInterrupt(token.InterruptID), ErrInterruptNotFound)
	_, err = m.ResumeExecution(token)
	require.ErrorIs(t, err, ErrInterruptNotFound)
	require.Equal(t, 1, m.Stats().Cancelled)
}

func TestInterruptPoints(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.Error(t, m.RegisterInterruptPoint("", TypeApproval, true, 0, nil))
	require.NoError(t, m.RegisterInterruptPoint("b", "", true, 0, nil))
	require.NoError(t, m.RegisterInterruptPoint("a", TypeInput, false, 0, nil))

	require.True(t, m.IsInterruptPoint("a"))
	p, ok := m.Point("b")
	require.True(t, ok)
	require.Equal(t, TypeApproval, p.Type)

	points := m.Points()
	require.Len(t, points, 2)
	require.Equal(t, "a", points[0].NodeID)

	require.NoError(t, m.UnregisterInterruptPoint("a"))
	require.False(t, m.IsInterruptPoint("a"))
	require.ErrorIs(t, m.UnregisterInterruptPoint("a"), ErrInterruptPointNotFound)
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.RegisterInterruptPoint("gate", TypeApproval, true, 30*time.Second, nil))
	token, err := m.CreateInterrupt("exec-9", "gate", state.FromMap(map[string]any{"n": 1}), "hold")
	require.NoError(t, err)

	data, err := m.Snapshot()
	require.NoError(t, err)

	restored := NewManager()
	require.NoError(t, restored.Restore(data))

	p, ok := restored.Point("gate")
	require.True(t, ok)
	require.Equal(t, 30*time.Second, p.Timeout)

	got, err := restored.ResumeExecution(token)
	require.NoError(t, err)
	// numbers come back as float64 after the JSON round trip
	require.Equal(t, map[string]any{"n": float64(1)}, got.State)
}
