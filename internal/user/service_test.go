package user

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/VKev/registration-saga/internal/contracts"
)

func newService(t *testing.T) (*Service, *MemoryRepository, *capturePublisher) {
	t.Helper()
	repo := NewMemoryRepository()
	publisher := &capturePublisher{}
	return NewService(repo, publisher, zaptest.NewLogger(t)), repo, publisher
}

func TestRegisterPersistsUserAndStartsSaga(t *testing.T) {
	service, repo, publisher := newService(t)
	ctx := context.Background()

	err := service.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "hunter22"})
	require.NoError(t, err)

	created, err := repo.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, created.ProviderName)
	assert.Equal(t, "ann@x.com", created.ProviderUserID)
	assert.False(t, created.Verified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("hunter22")))

	// Exactly one start event, carrying a fresh correlation id.
	events := publisher.published()
	require.Len(t, events, 1)
	start, ok := events[0].(contracts.RegistrationStarted)
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, start.CorrelationID)
	assert.Equal(t, "Ann", start.Name)
	assert.Equal(t, "ann@x.com", start.Email)
}

func TestRegisterMintsDistinctCorrelationIDs(t *testing.T) {
	service, _, publisher := newService(t)
	ctx := context.Background()

	require.NoError(t, service.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "hunter22"}))
	require.NoError(t, service.Register(ctx, RegisterInput{Name: "Ben", Email: "ben@x.com", Password: "hunter22"}))

	events := publisher.published()
	require.Len(t, events, 2)
	first := events[0].(contracts.RegistrationStarted)
	second := events[1].(contracts.RegistrationStarted)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service, _, publisher := newService(t)
	ctx := context.Background()

	require.NoError(t, service.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "hunter22"}))
	err := service.Register(ctx, RegisterInput{Name: "Ann Again", Email: "ann@x.com", Password: "hunter22"})

	assert.ErrorIs(t, err, ErrEmailExists)
	// No second start event was published.
	assert.Len(t, publisher.published(), 1)
}

func TestRegisterRequiresMandatoryFields(t *testing.T) {
	service, _, publisher := newService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"missing name", RegisterInput{Email: "ann@x.com", Password: "hunter22"}},
		{"missing email", RegisterInput{Name: "Ann", Password: "hunter22"}},
		{"missing password", RegisterInput{Name: "Ann", Email: "ann@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, service.Register(ctx, tt.input))
		})
	}
	assert.Empty(t, publisher.published())
}

func TestRegisterSurfacesRepositoryErrors(t *testing.T) {
	repoErr := errors.New("database unavailable")
	service := NewService(brokenRepository{err: repoErr}, &capturePublisher{}, zaptest.NewLogger(t))

	err := service.Register(context.Background(), RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "hunter22"})
	assert.ErrorIs(t, err, repoErr)
}
