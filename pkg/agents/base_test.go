package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

func TestNewSimpleAgentMetadata(t *testing.T) {
	t.Parallel()
	a := NewSimpleAgent("fetch", nil,
		WithDescription("fetch remote data"),
		WithTags("io", "network"),
		WithPriority(types.PriorityHigh),
		WithResources(0.5, 256),
		WithExpectedDuration(1500*time.Millisecond),
	)

	md := a.Metadata()
	assert.Equal(t, "fetch", a.ID())
	assert.Equal(t, types.NodeMetadata{
		Name:                 "fetch",
		Description:          "fetch remote data",
		Tags:                 []string{"io", "network"},
		Priority:             types.PriorityHigh,
		ResourceRequirements: types.ResourceRequirements{CPUCores: 0.5, MemoryMB: 256},
		ExpectedDurationMs:   1500,
	}, md)

	md.Tags[0] = "changed"
	assert.Equal(t, []string{"io", "network"}, a.Metadata().Tags)
}

func TestInvoke(t *testing.T) {
	t.Parallel()
	t.Run("nil func completes", func(t *testing.T) {
		t.Parallel()
		out, err := NewSimpleAgent("noop", nil).Invoke(context.Background(), state.New())
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, out.Status)
	})

	t.Run("func mutates state", func(t *testing.T) {
		t.Parallel()
		st := state.New()
		a := NewSimpleAgent("set", func(_ context.Context, st state.State) (types.NodeOutput, error) {
			return types.Pending("waiting"), st.Set("k", "v")
		})
		out, err := a.Invoke(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, out.Status)
		assert.Equal(t, "v", state.String(st, "k"))
	})

	t.Run("update agent", func(t *testing.T) {
		t.Parallel()
		st := state.New()
		ok := NewUpdateAgent("ok", func(st state.State) error { return st.Set("n", 1) })
		out, err := ok.Invoke(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, out.Status)
		assert.Equal(t, 1, state.Int(st, "n"))

		boom := errors.New("boom")
		bad := NewUpdateAgent("bad", func(state.State) error { return boom })
		out, err = bad.Invoke(context.Background(), st)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, types.StatusFailed, out.Status)
		assert.Equal(t, "boom", out.Message)
	})
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	transient := errors.New("transient")
	tests := []struct {
		name        string
		opts        []Option
		wantRetries int
		wantDelay   time.Duration
		wantTimeout time.Duration
		retryable   map[error]bool
	}{
		{
			name:      "defaults",
			retryable: map[error]bool{transient: true},
		},
		{
			name:        "retry and timeout",
			opts:        []Option{WithRetry(3, 10*time.Millisecond), WithTimeout(time.Second)},
			wantRetries: 3,
			wantDelay:   10 * time.Millisecond,
			wantTimeout: time.Second,
			retryable:   map[error]bool{transient: true},
		},
		{
			name: "retry filter",
			opts: []Option{
				WithRetry(2, 0),
				WithRetryIf(func(err error) bool { return errors.Is(err, transient) }),
			},
			wantRetries: 2,
			retryable:   map[error]bool{transient: true, errors.New("fatal"): false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var node types.Node = NewSimpleAgent("n", nil, tt.opts...)

			r, ok := node.(types.Retryable)
			require.True(t, ok)
			assert.Equal(t, tt.wantRetries, r.MaxRetries())
			assert.Equal(t, tt.wantDelay, r.RetryDelay())
			for err, want := range tt.retryable {
				assert.Equal(t, want, r.IsRetryableError(err), err.Error())
			}

			to, ok := node.(types.Timeouter)
			require.True(t, ok)
			assert.Equal(t, tt.wantTimeout, to.Timeout())
		})
	}
}
