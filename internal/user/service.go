package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/VKev/registration-saga/internal/contracts"
)

// RegisterInput is the synchronous registration request.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	DateOfBirth *time.Time
	Gender      string
}

// Service handles user registration. A successful Register persists the
// user and publishes exactly one registration-started event; guest
// provisioning happens asynchronously and is never awaited.
type Service struct {
	repo      Repository
	publisher contracts.Publisher
	logger    *zap.Logger
	newID     func() uuid.UUID
}

// NewService creates a registration service.
func NewService(repo Repository, publisher contracts.Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.New,
	}
}

// Register creates the user record and starts the registration saga. The
// caller only sees the outcome of the user creation step; the guest side is
// eventually consistent.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return errors.New("user: name, email and password are required")
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("user: checking existing email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("user: hashing password: %w", err)
	}

	gender := in.Gender
	if gender == "" {
		gender = "Unknown"
	}

	record := &User{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   string(hash),
		ProviderName:   ProviderLocal,
		ProviderUserID: in.Email,
		PhoneNumber:    in.PhoneNumber,
		DateOfBirth:    in.DateOfBirth,
		Gender:         gender,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("user: creating user: %w", err)
	}

	correlationID := s.newID()
	if err := s.publisher.Publish(ctx, contracts.RegistrationStarted{
		CorrelationID: correlationID,
		Name:          record.Name,
		Email:         record.Email,
	}); err != nil {
		return fmt.Errorf("user: publishing registration started: %w", err)
	}

	s.logger.Info("Registration started",
		zap.String("correlation_id", correlationID.String()),
		zap.String("email", record.Email))
	return nil
}
