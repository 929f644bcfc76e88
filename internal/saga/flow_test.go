package saga_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/VKev/registration-saga/internal/contracts"
	"github.com/VKev/registration-saga/internal/guest"
	"github.com/VKev/registration-saga/internal/saga"
	"github.com/VKev/registration-saga/internal/sagastore"
	"github.com/VKev/registration-saga/internal/user"
)

// loopbackBus delivers published events synchronously to the same handlers
// the dispatchers would invoke, so a whole registration flow runs in-process.
type loopbackBus struct {
	orchestrator *saga.Orchestrator
	provisioner  *guest.Provisioner
	consumer     *user.GuestCreatedConsumer

	mu     sync.Mutex
	events []contracts.Event
}

func (b *loopbackBus) Publish(ctx context.Context, event contracts.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()

	switch evt := event.(type) {
	case contracts.RegistrationStarted:
		return b.orchestrator.HandleRegistrationStarted(ctx, evt)
	case contracts.UserCreated:
		return b.provisioner.HandleUserCreated(ctx, evt)
	case contracts.GuestCreated:
		// Both the orchestrator and the user-side consumer subscribe to
		// the completion topic in their own consumer groups.
		if err := b.orchestrator.HandleGuestCreated(ctx, evt); err != nil {
			return err
		}
		return b.consumer.HandleGuestCreated(ctx, evt)
	case contracts.GuestCreationFailed:
		return b.orchestrator.HandleGuestCreationFailed(ctx, evt)
	default:
		return nil
	}
}

func (b *loopbackBus) ofType(eventType string) []contracts.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []contracts.Event
	for _, evt := range b.events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	bus        *loopbackBus
	store      *sagastore.MemoryStore
	users      *user.MemoryRepository
	guests     *guest.MemoryRepository
	registrant *user.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	bus := &loopbackBus{}
	store := sagastore.NewMemoryStore(10 * time.Minute)
	users := user.NewMemoryRepository()
	guests := guest.NewMemoryRepository()

	bus.orchestrator = saga.NewOrchestrator(store, bus, logger)
	bus.provisioner = guest.NewProvisioner(guests, bus, logger)
	bus.consumer = user.NewGuestCreatedConsumer(users, bus, logger)

	return &fixture{
		bus:        bus,
		store:      store,
		users:      users,
		guests:     guests,
		registrant: user.NewService(users, bus, logger),
	}
}

func (f *fixture) sagaState(t *testing.T) *saga.State {
	t.Helper()
	starts := f.bus.ofType(contracts.TopicRegistrationStarted)
	require.Len(t, starts, 1)
	state, err := f.store.Get(context.Background(), starts[0].Correlation())
	require.NoError(t, err)
	return state
}

func TestRegistrationFlowProvisionsBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.registrant.Register(ctx, user.RegisterInput{
		Name: "Ann", Email: "ann@x.com", Password: "hunter22",
	}))

	// One user-created trigger with the start's correlation id.
	starts := f.bus.ofType(contracts.TopicRegistrationStarted)
	triggers := f.bus.ofType(contracts.TopicUserCreated)
	require.Len(t, triggers, 1)
	assert.Equal(t, starts[0].Correlation(), triggers[0].Correlation())

	// The guest was provisioned with a fresh one-time credential.
	completions := f.bus.ofType(contracts.TopicGuestCreated)
	require.Len(t, completions, 1)
	done := completions[0].(contracts.GuestCreated)
	assert.NotEmpty(t, done.Password)
	assert.Equal(t, contracts.ProviderGuestService, done.ProviderName)

	_, err := f.guests.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)

	// The user record finished bootstrapping and the saga completed.
	registered, err := f.users.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.True(t, registered.Verified)

	state := f.sagaState(t)
	assert.Equal(t, saga.StatusCompleted, state.Current)
	assert.True(t, state.UserCreated)
	assert.True(t, state.GuestCreated)
}

func TestRegistrationFlowAdoptsExistingGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guests.Create(ctx, &guest.Guest{Name: "Ann Prior", Email: "ann@x.com"}))
	require.NoError(t, f.registrant.Register(ctx, user.RegisterInput{
		Name: "Ann", Email: "ann@x.com", Password: "hunter22",
	}))

	completions := f.bus.ofType(contracts.TopicGuestCreated)
	require.Len(t, completions, 1)
	done := completions[0].(contracts.GuestCreated)
	assert.Empty(t, done.Password)
	assert.Equal(t, contracts.ProviderUserService, done.ProviderName)

	// No failure was propagated and the saga still completed.
	assert.Empty(t, f.bus.ofType(contracts.TopicGuestCreationFailed))
	assert.Equal(t, saga.StatusCompleted, f.sagaState(t).Current)
}

func TestRegistrationFlowAbsorbsRedeliveredTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.registrant.Register(ctx, user.RegisterInput{
		Name: "Ann", Email: "ann@x.com", Password: "hunter22",
	}))

	state := f.sagaState(t)
	require.Equal(t, saga.StatusCompleted, state.Current)

	guestBefore, err := f.guests.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)

	// Redeliver the trigger after the saga already completed.
	triggers := f.bus.ofType(contracts.TopicUserCreated)
	require.NoError(t, f.bus.Publish(ctx, triggers[0]))

	guestAfter, err := f.guests.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, guestBefore.ID, guestAfter.ID, "no second guest entity")

	after := f.sagaState(t)
	assert.Equal(t, saga.StatusCompleted, after.Current)
	assert.Equal(t, state.Version, after.Version, "no state change")
}

func TestRegistrationFlowFailsSagaOnGuestFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	// A start without a subject name passes envelope validation but fails
	// guest-side domain validation.
	require.NoError(t, f.bus.Publish(ctx, contracts.RegistrationStarted{
		CorrelationID: id, Email: "ann@x.com",
	}))

	failures := f.bus.ofType(contracts.TopicGuestCreationFailed)
	require.Len(t, failures, 1)

	state, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, state.Current)
	assert.NotEmpty(t, state.FailureReason)

	// No guest entity was left behind.
	_, err = f.guests.GetByEmail(ctx, "ann@x.com")
	assert.ErrorIs(t, err, guest.ErrNotFound)
}
