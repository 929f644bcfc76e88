package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VKev/registration-saga/internal/contracts"
)

// Orchestrator drives a registration saga to a terminal state. It consumes
// the start event and the guest side's completion/failure events, keyed by
// correlation id. Handler errors mean the event must be redelivered; every
// other outcome acknowledges the event.
type Orchestrator struct {
	store     Store
	publisher contracts.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator on top of the given saga store
// and event publisher.
func NewOrchestrator(store Store, publisher contracts.Publisher, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleRegistrationStarted creates the saga record and republishes the
// user-created event that triggers guest provisioning.
//
// A redelivered start for a saga still waiting on the guest side
// republishes the user-created event: the first delivery may have persisted
// state and crashed before publishing, and the guest provisioner absorbs
// duplicates. State itself is created exactly once; starts for sagas in any
// other state are dropped.
func (o *Orchestrator) HandleRegistrationStarted(ctx context.Context, evt contracts.RegistrationStarted) error {
	if err := evt.Validate(); err != nil {
		o.logger.Warn("Dropping malformed registration started event", zap.Error(err))
		return nil
	}

	now := o.now()
	state := &State{
		CorrelationID: evt.CorrelationID,
		Current:       StatusGuestCreating,
		UserCreated:   true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := o.store.Create(ctx, state)
	switch {
	case err == nil:
		// First delivery: fall through to publish.
	case errors.Is(err, ErrAlreadyExists):
		existing, getErr := o.store.Get(ctx, evt.CorrelationID)
		if getErr != nil {
			return fmt.Errorf("saga: reading existing state for duplicate start: %w", getErr)
		}
		if existing.Current != StatusGuestCreating || existing.GuestCreated {
			o.logger.Debug("Ignoring duplicate registration start",
				zap.String("correlation_id", evt.CorrelationID.String()),
				zap.String("state", string(existing.Current)))
			return nil
		}
		o.logger.Info("Redelivered registration start, republishing user created",
			zap.String("correlation_id", evt.CorrelationID.String()))
	default:
		return fmt.Errorf("saga: creating state: %w", err)
	}

	return o.publisher.Publish(ctx, contracts.UserCreated{
		CorrelationID: evt.CorrelationID,
		Name:          evt.Name,
		Email:         evt.Email,
	})
}

// HandleGuestCreated finalizes the saga as completed.
func (o *Orchestrator) HandleGuestCreated(ctx context.Context, evt contracts.GuestCreated) error {
	if err := evt.Validate(); err != nil {
		o.logger.Warn("Dropping malformed guest created event", zap.Error(err))
		return nil
	}

	return o.transition(ctx, evt.CorrelationID, func(state *State) {
		state.GuestCreated = true
		state.Current = StatusCompleted
	})
}

// HandleGuestCreationFailed records the failure reason and marks the saga
// failed. The cross-service flow is not retried.
func (o *Orchestrator) HandleGuestCreationFailed(ctx context.Context, evt contracts.GuestCreationFailed) error {
	if err := evt.Validate(); err != nil {
		o.logger.Warn("Dropping malformed guest creation failure event", zap.Error(err))
		return nil
	}

	o.logger.Warn("Guest creation failed",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("reason", evt.Reason))

	return o.transition(ctx, evt.CorrelationID, func(state *State) {
		state.Current = StatusFailed
		state.FailureReason = evt.Reason
	})
}

// transition applies mutate to the saga record while it is still in
// GuestCreating. Unknown ids (expired or foreign) and terminal states are
// acknowledged and dropped; version conflicts surface so the bus redelivers
// and the handler re-reads fresh state.
func (o *Orchestrator) transition(ctx context.Context, id uuid.UUID, mutate func(*State)) error {
	state, err := o.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		o.logger.Warn("Dropping event for unknown saga, record may have expired",
			zap.String("correlation_id", id.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("saga: reading state: %w", err)
	}

	if state.Current.Terminal() {
		o.logger.Debug("Ignoring event for finished saga",
			zap.String("correlation_id", id.String()),
			zap.String("state", string(state.Current)))
		return nil
	}

	mutate(state)
	state.UpdatedAt = o.now()
	if err := o.store.Update(ctx, state); err != nil {
		return fmt.Errorf("saga: updating state: %w", err)
	}
	return nil
}
