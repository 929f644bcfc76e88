package guestapp

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Application manages the guest service lifecycle.
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication creates and fully initializes the guest service.
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	container, err := NewContainer(appCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	container.Logger().Info("Guest service initialized")
	return &Application{ctx: appCtx, cancel: cancel, container: container}, nil
}

// Run consumes events until the context is canceled.
func (a *Application) Run() error {
	return a.container.dispatcher.Run(a.ctx)
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
