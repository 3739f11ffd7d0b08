package state

// State is the single mutable value shared by every node of a run.
// Values must be JSON representable.
type State interface {
	// Get returns the value stored under key
	Get(key string) (any, bool)
	// Set stores value under key
	Set(key string, value any) error
	// Delete removes key if present
	Delete(key string)
	// Keys returns the stored keys in sorted order
	Keys() []string
	// ToMap returns a deep copy of the full content
	ToMap() map[string]any
	// Clone returns an independent deep copy
	Clone() State
}
