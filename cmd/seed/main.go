// Package main creates the bootstrap admin account.
//
// It reads the same configuration as the server and is safe to run on
// every deploy: an existing account with the configured username is left alone.
//
// Usage:
//
//	ADMIN_PASSWORD=... go run ./cmd/seed
//	go run ./cmd/seed --data-path /var/lib/inkwell
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/di"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	injector := do.New()
	di.Register(injector)
	defer func() {
		_ = injector.Shutdown() //nolint:errcheck // Best effort on exit
	}()

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}
	if cfg.Seed.AdminPassword == "" {
		return errors.New("ADMIN_PASSWORD is required")
	}

	log := do.MustInvoke[*logger.Logger](injector)
	users, err := do.Invoke[*service.UserService](injector)
	if err != nil {
		return err
	}

	user, created, err := users.EnsureAdmin(context.Background(), service.RegisterInput{
		Username: cfg.Seed.AdminUsername,
		Email:    cfg.Seed.AdminEmail,
		Password: cfg.Seed.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	if created {
		log.Info("Admin account created", "id", user.ID, "username", user.Username)
	} else {
		log.Info("Admin account already exists", "id", user.ID, "username", user.Username)
	}
	return nil
}
