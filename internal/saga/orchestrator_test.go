package saga_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/VKev/registration-saga/internal/contracts"
	"github.com/VKev/registration-saga/internal/saga"
	"github.com/VKev/registration-saga/internal/sagastore"
)

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []contracts.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event contracts.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []contracts.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]contracts.Event(nil), p.events...)
}

// failingStore returns a fixed error from every operation.
type failingStore struct {
	err error
}

func (s failingStore) Get(ctx context.Context, id uuid.UUID) (*saga.State, error) { return nil, s.err }
func (s failingStore) Create(ctx context.Context, state *saga.State) error        { return s.err }
func (s failingStore) Update(ctx context.Context, state *saga.State) error        { return s.err }

func newOrchestrator(t *testing.T) (*saga.Orchestrator, *sagastore.MemoryStore, *capturePublisher) {
	t.Helper()
	store := sagastore.NewMemoryStore(10 * time.Minute)
	publisher := &capturePublisher{}
	return saga.NewOrchestrator(store, publisher, zaptest.NewLogger(t)), store, publisher
}

func TestStartCreatesSagaAndPublishesUserCreated(t *testing.T) {
	orchestrator, store, publisher := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()

	err := orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		CorrelationID: id,
		Name:          "Ann",
		Email:         "ann@x.com",
	})
	require.NoError(t, err)

	state, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusGuestCreating, state.Current)
	assert.True(t, state.UserCreated)
	assert.False(t, state.GuestCreated)

	events := publisher.published()
	require.Len(t, events, 1)
	created, ok := events[0].(contracts.UserCreated)
	require.True(t, ok)
	assert.Equal(t, id, created.CorrelationID)
	assert.Equal(t, "Ann", created.Name)
	assert.Equal(t, "ann@x.com", created.Email)
}

func TestRedeliveredStartKeepsSingleSagaButRepublishes(t *testing.T) {
	orchestrator, store, publisher := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()
	start := contracts.RegistrationStarted{CorrelationID: id, Name: "Ann", Email: "ann@x.com"}

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, start))
	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, start))

	state, err := store.Get(ctx, id)
	require.NoError(t, err)
	// The state record was created exactly once.
	assert.Equal(t, int64(1), state.Version)
	assert.Equal(t, saga.StatusGuestCreating, state.Current)

	// The trigger event is republished for the guest side to absorb.
	require.Len(t, publisher.published(), 2)
}

func TestStartAfterCompletionIsIgnored(t *testing.T) {
	orchestrator, _, publisher := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()
	start := contracts.RegistrationStarted{CorrelationID: id, Name: "Ann", Email: "ann@x.com"}

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, start))
	require.NoError(t, orchestrator.HandleGuestCreated(ctx, contracts.GuestCreated{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	}))

	before := len(publisher.published())
	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, start))
	assert.Len(t, publisher.published(), before)
}

func TestGuestCreatedCompletesSaga(t *testing.T) {
	orchestrator, store, _ := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	}))
	require.NoError(t, orchestrator.HandleGuestCreated(ctx, contracts.GuestCreated{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com", Password: "Guest-secret",
	}))

	state, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, state.Current)
	assert.True(t, state.UserCreated)
	assert.True(t, state.GuestCreated)
}

func TestDuplicateCompletionIsDiscarded(t *testing.T) {
	orchestrator, store, _ := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()
	done := contracts.GuestCreated{CorrelationID: id, Name: "Ann", Email: "ann@x.com"}

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	}))
	require.NoError(t, orchestrator.HandleGuestCreated(ctx, done))

	completed, err := store.Get(ctx, id)
	require.NoError(t, err)

	// Redelivered completion and late failure events change nothing.
	require.NoError(t, orchestrator.HandleGuestCreated(ctx, done))
	require.NoError(t, orchestrator.HandleGuestCreationFailed(ctx, contracts.GuestCreationFailed{
		CorrelationID: id, Reason: "late failure",
	}))

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, completed.Version, after.Version)
	assert.Equal(t, saga.StatusCompleted, after.Current)
	assert.Empty(t, after.FailureReason)
}

func TestFailureMarksSagaFailed(t *testing.T) {
	orchestrator, store, _ := newOrchestrator(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	}))
	require.NoError(t, orchestrator.HandleGuestCreationFailed(ctx, contracts.GuestCreationFailed{
		CorrelationID: id, Reason: "guest validation failed",
	}))

	state, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, state.Current)
	assert.Equal(t, "guest validation failed", state.FailureReason)

	// Events arriving in Failed are acknowledged and dropped.
	require.NoError(t, orchestrator.HandleGuestCreated(ctx, contracts.GuestCreated{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	}))
	state, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, state.Current)
}

func TestMissingCorrelationIDNeverCreatesState(t *testing.T) {
	orchestrator, store, publisher := newOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		Name: "Ann", Email: "ann@x.com",
	}))

	_, err := store.Get(ctx, uuid.Nil)
	assert.ErrorIs(t, err, saga.ErrNotFound)
	assert.Empty(t, publisher.published())
}

func TestEventForUnknownSagaIsDropped(t *testing.T) {
	orchestrator, _, _ := newOrchestrator(t)
	ctx := context.Background()

	// No start was ever seen for this id; the record may have expired.
	err := orchestrator.HandleGuestCreated(ctx, contracts.GuestCreated{
		CorrelationID: uuid.New(), Name: "Ann", Email: "ann@x.com",
	})
	assert.NoError(t, err)
}

func TestStoreErrorsLeaveEventUnacknowledged(t *testing.T) {
	storeErr := errors.New("store unavailable")
	orchestrator := saga.NewOrchestrator(failingStore{err: storeErr}, &capturePublisher{}, zaptest.NewLogger(t))
	ctx := context.Background()
	id := uuid.New()

	err := orchestrator.HandleRegistrationStarted(ctx, contracts.RegistrationStarted{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	})
	assert.ErrorIs(t, err, storeErr)

	err = orchestrator.HandleGuestCreated(ctx, contracts.GuestCreated{
		CorrelationID: id, Name: "Ann", Email: "ann@x.com",
	})
	assert.ErrorIs(t, err, storeErr)
}
