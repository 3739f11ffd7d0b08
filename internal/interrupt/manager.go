package interrupt

import (
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/pkg/state"
)

// Manager is the arena of interrupt points and suspended runs. A stored
// interrupt is removed when it is resumed, cancelled or found expired.
type Manager struct {
	mu         sync.RWMutex
	points     map[string]Point
	interrupts map[string]*InterruptState
	stats      Stats

	now    func() time.Time
	logger hclog.Logger
}

// Option configures a Manager
type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		points:     make(map[string]Point),
		interrupts: make(map[string]*InterruptState),
		now:        time.Now,
		logger:     hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.Named("interrupt")
	return m
}

// RegisterInterruptPoint makes the engine suspend before nodeID runs.
// Registering the same node again replaces the previous point.
func (m *Manager) RegisterInterruptPoint(nodeID string, typ Type, requiresHuman bool, timeout time.Duration, data map[string]any) error {
	if nodeID == "" {
		return NewInterruptError("register", "", nodeID, errors.New("node id cannot be empty"))
	}
	if typ == "" {
		typ = TypeApproval
	}
	p := Point{
		NodeID:        nodeID,
		Type:          typ,
		RequiresHuman: requiresHuman,
		Timeout:       timeout,
		TimeoutMs:     timeout.Milliseconds(),
		Data:          data,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[nodeID] = p
	m.logger.Debug("registered interrupt point", "node", nodeID, "type", typ)
	return nil
}

func (m *Manager) UnregisterInterruptPoint(nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[nodeID]; !ok {
		return NewInterruptError("unregister", "", nodeID, ErrInterruptPointNotFound)
	}
	delete(m.points, nodeID)
	return nil
}

func (m *Manager) IsInterruptPoint(nodeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.points[nodeID]
	return ok
}

func (m *Manager) Point(nodeID string) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[nodeID]
	return p, ok
}

// Points returns the registered points ordered by node id
func (m *Manager) Points() []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Point, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// CreateOption configures one suspended run
type CreateOption func(*InterruptState)

// WithContext stores engine bookkeeping next to the state
func WithContext(ctx map[string]any) CreateOption {
	return func(s *InterruptState) {
		s.Context = ctx
	}
}

// WithInteraction attaches the payload a human needs to act on the interrupt
func WithInteraction(data map[string]any) CreateOption {
	return func(s *InterruptState) {
		s.Interaction = data
	}
}

// WithType overrides the interrupt type when nodeID has no registered point
func WithType(typ Type, requiresHuman bool) CreateOption {
	return func(s *InterruptState) {
		s.Type = typ
		s.RequiresHuman = requiresHuman
	}
}

// CreateInterrupt snapshots st and returns the token that resumes it.
// Expiry comes from the registered point's timeout, when there is one.
func (m *Manager) CreateInterrupt(executionID, nodeID string, st state.State, reason string, opts ...CreateOption) (ResumeToken, error) {
	if executionID == "" {
		return ResumeToken{}, NewInterruptError("create", "", nodeID, errors.New("execution id cannot be empty"))
	}
	now := m.now().UTC()
	token := ResumeToken{
		InterruptID:   uuid.NewString(),
		ExecutionID:   executionID,
		NodeID:        nodeID,
		InterruptedAt: now,
	}
	is := &InterruptState{
		Token:  token,
		State:  st.ToMap(),
		Reason: reason,
		Type:   TypeCustom,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.points[nodeID]; ok {
		is.Type = p.Type
		is.RequiresHuman = p.RequiresHuman
		if len(p.Data) > 0 {
			is.Interaction = copyMap(p.Data)
		}
		if p.Timeout > 0 {
			exp := now.Add(p.Timeout)
			token.ExpiresAt = &exp
			is.Token = token
		}
	}
	for _, o := range opts {
		o(is)
	}

	m.interrupts[token.InterruptID] = is
	m.stats.Created++
	m.logger.Info("execution interrupted", "execution_id", executionID, "node", nodeID, "interrupt_id", token.InterruptID, "reason", reason)
	return token, nil
}

// ResumeExecution consumes token and returns the stored snapshot. A token
// can be resumed only once.
func (m *Manager) ResumeExecution(token ResumeToken) (*InterruptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	is, ok := m.interrupts[token.InterruptID]
	if !ok {
		return nil, NewInterruptError("resume", token.InterruptID, "", ErrInterruptNotFound)
	}
	if is.Token.ExecutionID != token.ExecutionID {
		return nil, NewInterruptError("resume", token.InterruptID, "", ErrInvalidToken)
	}
	if is.Token.Expired(m.now()) {
		delete(m.interrupts, token.InterruptID)
		m.stats.Expired++
		m.logger.Warn("interrupt expired", "interrupt_id", token.InterruptID, "node", is.Token.NodeID)
		return nil, NewInterruptError("resume", token.InterruptID, "", ErrInterruptExpired)
	}

	delete(m.interrupts, token.InterruptID)
	m.stats.Resumed++
	m.logger.Info("execution resumed", "execution_id", token.ExecutionID, "node", is.Token.NodeID, "interrupt_id", token.InterruptID)
	return is, nil
}

// Get returns a copy of a pending interrupt without consuming it
func (m *Manager) Get(interruptID string) (*InterruptState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	is, ok := m.interrupts[interruptID]
	if !ok {
		return nil, false
	}
	cp := *is
	return &cp, true
}

func (m *Manager) CancelInterrupt(interruptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.interrupts[interruptID]; !ok {
		return NewInterruptError("cancel", interruptID, "", ErrInterruptNotFound)
	}
	delete(m.interrupts, interruptID)
	m.stats.Cancelled++
	return nil
}

// CleanupExpired removes expired interrupts and returns how many were dropped
func (m *Manager) CleanupExpired() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, is := range m.interrupts {
		if is.Token.Expired(now) {
			delete(m.interrupts, id)
			removed++
		}
	}
	m.stats.Expired += removed
	if removed > 0 {
		m.logger.Debug("cleaned up expired interrupts", "count", removed)
	}
	return removed
}

// Pending lists the tokens of every stored interrupt, oldest first
func (m *Manager) Pending() []ResumeToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ResumeToken, 0, len(m.interrupts))
	for _, is := range m.interrupts {
		out = append(out, is.Token)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InterruptedAt.Equal(out[j].InterruptedAt) {
			return out[i].InterruptID < out[j].InterruptID
		}
		return out[i].InterruptedAt.Before(out[j].InterruptedAt)
	})
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Pending = len(m.interrupts)
	return s
}

type snapshot struct {
	Points     []Point           `json:"points"`
	Interrupts []*InterruptState `json:"interrupts"`
}

// Snapshot serializes the arena so suspended runs survive a restart
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := snapshot{
		Points:     make([]Point, 0, len(m.points)),
		Interrupts: make([]*InterruptState, 0, len(m.interrupts)),
	}
	for _, p := range m.points {
		snap.Points = append(snap.Points, p)
	}
	for _, is := range m.interrupts {
		snap.Interrupts = append(snap.Interrupts, is)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "marshal interrupt snapshot")
	}
	return data, nil
}

// Restore loads a Snapshot, replacing the current points and interrupts
func (m *Manager) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "unmarshal interrupt snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]Point, len(snap.Points))
	for _, p := range snap.Points {
		p.Timeout = time.Duration(p.TimeoutMs) * time.Millisecond
		m.points[p.NodeID] = p
	}
	m.interrupts = make(map[string]*InterruptState, len(snap.Interrupts))
	for _, is := range snap.Interrupts {
		if is == nil {
			continue
		}
		m.interrupts[is.Token.InterruptID] = is
	}
	return nil
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
