// Package main provides the entry point for the Inkwell server application.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/di"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts handles down in reverse dependency order: the HTTP
	// server drains first, the store, index and ledger close last.
	if err := injector.Shutdown(); err != nil {
		log.Fatal("Shutdown error", "error", err)
	}

	log.Info("Shutdown complete")
}
