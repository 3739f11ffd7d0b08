package state

import (
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// ErrEmptyKey is returned by Set when the key is empty
var ErrEmptyKey = errors.New("state key cannot be empty")

// MapState provides a base implementation of the State interface backed by a map
type MapState struct {
	mu   sync.RWMutex
	data map[string]any
}

// Ensure MapState implements State interface
var _ State = (*MapState)(nil)

// New creates an empty state
func New() *MapState {
	return &MapState{data: make(map[string]any)}
}

// FromMap creates a state holding a deep copy of m
func FromMap(m map[string]any) *MapState {
	s := New()
	for k, v := range m {
		s.data[k] = deepCopy(v)
	}
	return s
}

func (s *MapState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, exists := s.data[key]
	return val, exists
}

func (s *MapState) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MapState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *MapState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MapState) ToMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = deepCopy(v)
	}
	return out
}

// Clone creates a deep copy of the state
func (s *MapState) Clone() State {
	return FromMap(s.ToMap())
}

// Len returns the number of stored keys
func (s *MapState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MapState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToMap())
}

func (s *MapState) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]any)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = m
	return nil
}

// Int reads an integer value, accepting the float64 form produced by JSON decoding.
func Int(st State, key string) int {
	v, ok := st.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// String reads a string value, returning "" when absent or of another type.
func String(st State, key string) string {
	v, ok := st.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
