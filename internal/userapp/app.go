package userapp

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Application manages the user service lifecycle.
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes the user service.
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	container, err := NewContainer(appCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	container.Logger().Info("User service initialized")
	return &Application{ctx: appCtx, cancel: cancel, container: container}, nil
}

// Run consumes events until the context is canceled. In-flight handlers
// finish before Run returns; unacknowledged messages are redelivered.
func (a *Application) Run() error {
	g, ctx := errgroup.WithContext(a.ctx)
	g.Go(func() error { return a.container.sagaDispatcher.Run(ctx) })
	g.Go(func() error { return a.container.provisionDispatcher.Run(ctx) })
	return g.Wait()
}

// Shutdown gracefully releases all components.
func (a *Application) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.container != nil {
		a.container.Shutdown(context.Background())
	}
}
