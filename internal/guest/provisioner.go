package guest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VKev/registration-saga/internal/contracts"
)

// Provisioner reacts to the user service's creation event with an
// idempotent create-or-adopt: an existing guest with the same email is
// reported as success instead of being duplicated, so redelivered events
// always resolve the same way.
type Provisioner struct {
	repo      Repository
	publisher contracts.Publisher
	logger    *zap.Logger
	// newCredential mints the one-time password forwarded to the user
	// service for freshly created guests.
	newCredential func() string
}

// NewProvisioner creates a provisioner.
func NewProvisioner(repo Repository, publisher contracts.Publisher, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		newCredential: func() string {
			return "Guest-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// HandleUserCreated provisions or adopts the guest for the event's email
// and answers with exactly one guest-created or guest-creation-failed
// event carrying the original correlation id. Infrastructure errors
// propagate so the message is redelivered.
func (p *Provisioner) HandleUserCreated(ctx context.Context, evt contracts.UserCreated) error {
	existing, err := p.repo.GetByEmail(ctx, evt.Email)
	switch {
	case err == nil:
		return p.adoptExisting(ctx, evt, existing)
	case errors.Is(err, ErrNotFound):
		// Fall through to create.
	default:
		return fmt.Errorf("guest: looking up %s: %w", evt.Email, err)
	}

	if evt.Name == "" {
		return p.reportFailure(ctx, evt, "user created event is missing the guest name")
	}

	record := &Guest{
		Name:  evt.Name,
		Email: evt.Email,
	}
	err = p.repo.Create(ctx, record)
	if errors.Is(err, ErrEmailExists) {
		// Another delivery created the guest between lookup and insert;
		// adopt it like any pre-existing record.
		existing, err := p.repo.GetByEmail(ctx, evt.Email)
		if err != nil {
			return fmt.Errorf("guest: re-reading %s after create race: %w", evt.Email, err)
		}
		return p.adoptExisting(ctx, evt, existing)
	}
	if err != nil {
		return fmt.Errorf("guest: creating guest: %w", err)
	}

	password := p.newCredential()
	p.logger.Info("Provisioned guest",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("email", evt.Email))

	return p.publisher.Publish(ctx, contracts.GuestCreated{
		CorrelationID:  evt.CorrelationID,
		Name:           record.Name,
		Email:          record.Email,
		Password:       password,
		ProviderName:   contracts.ProviderGuestService,
		ProviderUserID: record.Email,
		DateOfBirth:    record.DateOfBirth,
		Gender:         record.Gender,
		PhoneNumber:    record.PhoneNumber,
	})
}

// adoptExisting reports an already-present guest as success. The credential
// field stays empty and the provider tag names the user service as the
// originating system, so the reverse consumer knows no new guest was made.
func (p *Provisioner) adoptExisting(ctx context.Context, evt contracts.UserCreated, existing *Guest) error {
	p.logger.Info("Guest already exists, adopting",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("email", existing.Email))

	return p.publisher.Publish(ctx, contracts.GuestCreated{
		CorrelationID:  evt.CorrelationID,
		Name:           existing.Name,
		Email:          existing.Email,
		Password:       "",
		ProviderName:   contracts.ProviderUserService,
		ProviderUserID: existing.Email,
		DateOfBirth:    existing.DateOfBirth,
		Gender:         existing.Gender,
		PhoneNumber:    existing.PhoneNumber,
	})
}

// reportFailure answers the saga with a failure event so the correlation id
// is never left silently unanswered.
func (p *Provisioner) reportFailure(ctx context.Context, evt contracts.UserCreated, reason string) error {
	p.logger.Warn("Guest provisioning failed",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("reason", reason))

	return p.publisher.Publish(ctx, contracts.GuestCreationFailed{
		CorrelationID: evt.CorrelationID,
		Reason:        reason,
	})
}
