package interrupt

import (
	"errors"
	"fmt"
	"time"

	"github.com/avi3tal/graphflow/pkg/types"
)

var (
	// ErrInterruptNotFound is returned for unknown or already consumed interrupts
	ErrInterruptNotFound = errors.New("interrupt not found")

	// ErrInterruptExpired is returned when resuming past the expiry. It is Timeout-class.
	ErrInterruptExpired = fmt.Errorf("interrupt expired: %w", types.ErrTimeout)

	// ErrInvalidToken is returned when a token does not match the stored interrupt
	ErrInvalidToken = errors.New("invalid resume token")

	// ErrInterruptPointNotFound is returned when unregistering an unknown point
	ErrInterruptPointNotFound = errors.New("interrupt point not found")
)

// Type classifies why a run suspends
type Type string

const (
	TypeApproval Type = "approval"
	TypeInput    Type = "input"
	TypeReview   Type = "review"
	TypeCustom   Type = "custom"
)

// Point declares that reaching NodeID suspends the run before the node executes
type Point struct {
	NodeID        string         `json:"node_id"`
	Type          Type           `json:"type"`
	RequiresHuman bool           `json:"requires_human"`
	Timeout       time.Duration  `json:"-"`
	TimeoutMs     int64          `json:"timeout_ms,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// ResumeToken addresses one suspended run. It is consumed exactly once.
type ResumeToken struct {
	InterruptID   string     `json:"interrupt_id"`
	ExecutionID   string     `json:"execution_id"`
	NodeID        string     `json:"node_id"`
	InterruptedAt time.Time  `json:"interrupted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token is past its expiry at now
func (t ResumeToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// InterruptState is the suspended snapshot stored behind a token
type InterruptState struct {
	Token         ResumeToken    `json:"token"`
	State         map[string]any `json:"state"`
	Context       map[string]any `json:"context,omitempty"`
	Reason        string         `json:"reason"`
	Type          Type           `json:"type"`
	RequiresHuman bool           `json:"requires_human"`
	Interaction   map[string]any `json:"interaction,omitempty"`
}

// Stats counts arena transitions since creation
type Stats struct {
	Created   int `json:"created"`
	Resumed   int `json:"resumed"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`
}

// InterruptError is returned by arena operations. It matches types.ErrInterrupt,
// and types.ErrTimeout as well when the interrupt expired.
type InterruptError struct {
	Op          string
	InterruptID string
	Node        string
	Err         error
}

func (e *InterruptError) Error() string {
	switch {
	case e.Node != "":
		return fmt.Sprintf("interrupt: %s: node '%s': %v", e.Op, e.Node, e.Err)
	case e.InterruptID != "":
		return fmt.Sprintf("interrupt: %s: id '%s': %v", e.Op, e.InterruptID, e.Err)
	default:
		return fmt.Sprintf("interrupt: %s: %v", e.Op, e.Err)
	}
}

func (e *InterruptError) Unwrap() error {
	return e.Err
}

func (e *InterruptError) Is(target error) bool {
	return target == types.ErrInterrupt
}

// NewInterruptError creates a new InterruptError
func NewInterruptError(op, interruptID, node string, err error) error {
	return &InterruptError{Op: op, InterruptID: interruptID, Node: node, Err: err}
}
