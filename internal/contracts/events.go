// Package contracts defines the event payloads exchanged between the user
// and guest services. Every event carries the correlation id that links it
// to one registration saga instance.
package contracts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Topic names, one per event type.
const (
	TopicRegistrationStarted = "registration.started"
	TopicUserCreated         = "user.created"
	TopicGuestCreated        = "guest.created"
	TopicGuestCreationFailed = "guest.creation.failed"
)

// Kafka header keys set on every published event.
const (
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
)

// Provider tags identifying which side originated a guest record.
const (
	ProviderUserService  = "user-service"
	ProviderGuestService = "guest-service"
)

// ErrMissingCorrelationID is returned when an event carries a zero
// correlation id. Such events never create or mutate saga state.
var ErrMissingCorrelationID = errors.New("contracts: missing correlation id")

// Event is implemented by every saga event payload.
type Event interface {
	// EventType returns the wire tag used for dispatch and topic routing.
	EventType() string
	// Correlation returns the saga correlation id the event belongs to.
	Correlation() uuid.UUID
	// Validate reports whether the payload is well formed.
	Validate() error
}

// RegistrationStarted is published by the user service once per successful
// registration call. It starts the saga.
type RegistrationStarted struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
}

func (e RegistrationStarted) EventType() string      { return TopicRegistrationStarted }
func (e RegistrationStarted) Correlation() uuid.UUID { return e.CorrelationID }

func (e RegistrationStarted) Validate() error {
	if e.CorrelationID == uuid.Nil {
		return ErrMissingCorrelationID
	}
	if e.Email == "" {
		return errors.New("contracts: registration started requires an email")
	}
	return nil
}

// UserCreated is republished by the orchestrator to trigger guest
// provisioning on the guest side.
type UserCreated struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
}

func (e UserCreated) EventType() string      { return TopicUserCreated }
func (e UserCreated) Correlation() uuid.UUID { return e.CorrelationID }

func (e UserCreated) Validate() error {
	if e.CorrelationID == uuid.Nil {
		return ErrMissingCorrelationID
	}
	if e.Email == "" {
		return errors.New("contracts: user created requires an email")
	}
	return nil
}

// GuestCreated reports successful guest provisioning. It carries everything
// the user service needs to finish bootstrapping the user record without
// querying the guest service. Password is a one-time credential forwarded
// opaquely; it is empty when the guest already existed.
type GuestCreated struct {
	CorrelationID  uuid.UUID  `json:"correlation_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Password       string     `json:"password"`
	ProviderName   string     `json:"provider_name"`
	ProviderUserID string     `json:"provider_user_id"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
}

func (e GuestCreated) EventType() string      { return TopicGuestCreated }
func (e GuestCreated) Correlation() uuid.UUID { return e.CorrelationID }

func (e GuestCreated) Validate() error {
	if e.CorrelationID == uuid.Nil {
		return ErrMissingCorrelationID
	}
	if e.Email == "" {
		return errors.New("contracts: guest created requires an email")
	}
	return nil
}

// GuestCreationFailed reports that guest provisioning could not complete.
// The orchestrator marks the saga failed; no automatic retry follows.
type GuestCreationFailed struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Reason        string    `json:"reason"`
}

func (e GuestCreationFailed) EventType() string      { return TopicGuestCreationFailed }
func (e GuestCreationFailed) Correlation() uuid.UUID { return e.CorrelationID }

func (e GuestCreationFailed) Validate() error {
	if e.CorrelationID == uuid.Nil {
		return ErrMissingCorrelationID
	}
	return nil
}
