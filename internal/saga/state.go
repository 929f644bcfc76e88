// Package saga implements the state machine coordinating user registration
// across the user and guest services. The orchestrator is the only writer
// of saga state; both services otherwise communicate purely through events.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the current position of a saga instance in its lifecycle.
type Status string

const (
	// StatusGuestCreating means the user record exists and the saga is
	// waiting for the guest side to provision or adopt a guest record.
	StatusGuestCreating Status = "guest-creating"
	// StatusCompleted means both records exist; terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means guest provisioning reported a failure; terminal.
	// No automatic retry is performed.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is the per-correlation-id saga record. Records expire from the
// store after the configured retention window; late events for an expired
// id are acknowledged and dropped.
type State struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Current       Status    `json:"current"`
	UserCreated   bool      `json:"user_created"`
	GuestCreated  bool      `json:"guest_created"`
	FailureReason string    `json:"failure_reason,omitempty"`

	// Version supports compare-and-set updates when redelivered events
	// for the same id are processed concurrently.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store errors.
var (
	// ErrNotFound is returned when no saga record exists for the id.
	ErrNotFound = errors.New("saga: state not found")
	// ErrAlreadyExists is returned by Create when a record for the id
	// is already present.
	ErrAlreadyExists = errors.New("saga: state already exists")
	// ErrConflict is returned by Update when the stored version no longer
	// matches the version the caller read.
	ErrConflict = errors.New("saga: state version conflict")
)

// Store persists one saga record per correlation id. Implementations apply
// the configured retention TTL on every write and must provide
// compare-and-set semantics on Update via State.Version.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*State, error)
	Create(ctx context.Context, state *State) error
	Update(ctx context.Context, state *State) error
}
