package user

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/VKev/registration-saga/internal/contracts"
)

// GuestCreatedConsumer finishes user provisioning when the guest side
// reports completion: it attaches the guest's provider metadata and the
// forwarded one-time credential to the user record, or creates the record
// outright when the registration originated on the guest side.
//
// The handler is idempotent: applying the same event twice finds a
// verified user and stops without touching the record again.
type GuestCreatedConsumer struct {
	repo      Repository
	publisher contracts.Publisher
	logger    *zap.Logger
}

// NewGuestCreatedConsumer creates the consumer.
func NewGuestCreatedConsumer(repo Repository, publisher contracts.Publisher, logger *zap.Logger) *GuestCreatedConsumer {
	return &GuestCreatedConsumer{repo: repo, publisher: publisher, logger: logger}
}

// HandleGuestCreated applies the guest side's completion event. Domain
// failures other than "already exists" are reported back through a
// guest-creation-failed event so the orchestrator can fail the saga;
// infrastructure errors propagate so the message is redelivered.
func (c *GuestCreatedConsumer) HandleGuestCreated(ctx context.Context, evt contracts.GuestCreated) error {
	existing, err := c.repo.GetByEmail(ctx, evt.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.createFromGuest(ctx, evt)
	case err != nil:
		return fmt.Errorf("user: looking up %s: %w", evt.Email, err)
	}

	if existing.Verified {
		// Fully registered through another path before this event
		// arrived; nothing left to apply.
		c.logger.Debug("User already provisioned",
			zap.String("correlation_id", evt.CorrelationID.String()),
			zap.String("email", evt.Email))
		return nil
	}

	return c.attachProvider(ctx, existing, evt)
}

// attachProvider applies the guest's provider metadata to an unverified
// user exactly once.
func (c *GuestCreatedConsumer) attachProvider(ctx context.Context, record *User, evt contracts.GuestCreated) error {
	record.ProviderName = evt.ProviderName
	record.ProviderUserID = evt.ProviderUserID
	if evt.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(evt.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.reportFailure(ctx, evt, fmt.Sprintf("hashing forwarded credential: %v", err))
		}
		record.PasswordHash = string(hash)
	}
	if evt.DateOfBirth != nil {
		record.DateOfBirth = evt.DateOfBirth
	}
	if evt.Gender != "" {
		record.Gender = evt.Gender
	}
	if evt.PhoneNumber != "" {
		record.PhoneNumber = evt.PhoneNumber
	}
	record.Verified = true

	if err := c.repo.Update(ctx, record); err != nil {
		return fmt.Errorf("user: attaching provider to %s: %w", evt.Email, err)
	}

	c.logger.Info("Attached provider to user",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("email", evt.Email),
		zap.String("provider", evt.ProviderName))
	return nil
}

// createFromGuest registers a user from the guest side's data.
func (c *GuestCreatedConsumer) createFromGuest(ctx context.Context, evt contracts.GuestCreated) error {
	if evt.Name == "" {
		return c.reportFailure(ctx, evt, "guest created event is missing the user name")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(evt.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.reportFailure(ctx, evt, fmt.Sprintf("hashing forwarded credential: %v", err))
	}

	gender := evt.Gender
	if gender == "" {
		gender = "Unknown"
	}
	record := &User{
		Name:           evt.Name,
		Email:          evt.Email,
		PasswordHash:   string(hash),
		ProviderName:   evt.ProviderName,
		ProviderUserID: evt.ProviderUserID,
		PhoneNumber:    evt.PhoneNumber,
		DateOfBirth:    evt.DateOfBirth,
		Gender:         gender,
		Verified:       true,
	}

	err = c.repo.Create(ctx, record)
	if errors.Is(err, ErrEmailExists) {
		// Lost a race with another path creating the same user; that
		// path owns the record, so this delivery is done.
		c.logger.Debug("User appeared concurrently",
			zap.String("correlation_id", evt.CorrelationID.String()),
			zap.String("email", evt.Email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("user: creating user from guest event: %w", err)
	}

	c.logger.Info("Created user from guest event",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("email", evt.Email),
		zap.String("provider", evt.ProviderName))
	return nil
}

// reportFailure publishes a guest-creation-failed event so the orchestrator
// marks the saga failed instead of waiting forever.
func (c *GuestCreatedConsumer) reportFailure(ctx context.Context, evt contracts.GuestCreated, reason string) error {
	c.logger.Warn("User provisioning failed",
		zap.String("correlation_id", evt.CorrelationID.String()),
		zap.String("reason", reason))

	return c.publisher.Publish(ctx, contracts.GuestCreationFailed{
		CorrelationID: evt.CorrelationID,
		Reason:        reason,
	})
}
