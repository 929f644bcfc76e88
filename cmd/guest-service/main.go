package main

import (
	"context"
	stdlog "log"

	"github.com/VKev/registration-saga/internal/guestapp"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("guest-service failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	application, err := guestapp.NewApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
