package main

import (
	"context"
	stdlog "log"

	"github.com/VKev/registration-saga/internal/userapp"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("user-service failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	application, err := userapp.NewApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
