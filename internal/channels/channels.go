package channels

import (
	"fmt"
	"sync"

	"github.com/avi3tal/graphflow/pkg/state"
)

// Arrival is what a parallel branch delivers to the join barrier
type Arrival struct {
	// Source is the branch that wrote the arrival, set by Write
	Source string
	State  state.State
	// Next holds the join points the branch stopped at
	Next []string
	// Finished is set when the branch reached a finish point
	Finished bool
}

// Barrier waits for all required sources before allowing reads
type Barrier struct {
	mu       sync.RWMutex
	required []string
	inputs   map[string]*Arrival
}

func NewBarrier(required []string) *Barrier {
	inputs := make(map[string]*Arrival, len(required))
	for _, r := range required {
		inputs[r] = nil
	}
	return &Barrier{
		required: append([]string(nil), required...),
		inputs:   inputs,
	}
}

// Write records the arrival of source. Each source writes at most once.
func (b *Barrier) Write(source string, a Arrival) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, exists := b.inputs[source]
	if !exists {
		return fmt.Errorf("unexpected input from: %s", source)
	}
	if current != nil {
		return fmt.Errorf("duplicate input from: %s", source)
	}
	a.Source = source
	b.inputs[source] = &a
	return nil
}

// Read returns the arrivals in required order once every source has written
func (b *Barrier) Read() ([]Arrival, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Arrival, 0, len(b.required))
	for _, source := range b.required {
		input := b.inputs[source]
		if input == nil {
			return nil, fmt.Errorf("waiting for input from: %s", source)
		}
		out = append(out, *input)
	}
	return out, nil
}

// Collected returns the arrivals written so far, in required order
func (b *Barrier) Collected() []Arrival {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Arrival
	for _, source := range b.required {
		if input := b.inputs[source]; input != nil {
			out = append(out, *input)
		}
	}
	return out
}

// Pending lists sources that have not written yet, in required order
func (b *Barrier) Pending() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for _, source := range b.required {
		if b.inputs[source] == nil {
			out = append(out, source)
		}
	}
	return out
}
