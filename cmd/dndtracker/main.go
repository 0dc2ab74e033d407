// dndtracker server: HTTP command surface plus WebSocket push for real-time
// collaborative encounter tracking.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dndtracker/dndtracker/pkg/api"
	"github.com/dndtracker/dndtracker/pkg/cleanup"
	"github.com/dndtracker/dndtracker/pkg/config"
	"github.com/dndtracker/dndtracker/pkg/database"
	"github.com/dndtracker/dndtracker/pkg/hub"
	"github.com/dndtracker/dndtracker/pkg/store"
	"github.com/dndtracker/dndtracker/pkg/version"
)

// wsWriteTimeout bounds each WebSocket send; a subscriber that cannot keep
// up is disconnected rather than buffered unboundedly.
const wsWriteTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Path to optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	settings, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting dndtracker", "version", version.Full())

	ctx := context.Background()

	// Store selection: a configured database URL means durable, else memory.
	var encounterStore store.EncounterStore
	var pruner cleanup.Pruner
	var dbClient *database.Client
	if settings.DatabaseURL != "" {
		dbCfg := database.DefaultConfig(settings.DatabaseURL)
		dbCfg.MaxOpenConns = settings.DBMaxOpenConns
		dbCfg.MaxIdleConns = settings.DBMaxIdleConns

		dbClient, err = database.NewClient(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		pgStore := store.NewPostgresStore(dbClient.DB(), settings.ServerSalt)
		encounterStore, pruner = pgStore, pgStore
		slog.Info("Connected to PostgreSQL database")
	} else {
		memStore := store.NewMemoryStore(settings.ServerSalt)
		encounterStore, pruner = memStore, memStore
		slog.Info("Using in-memory encounter store")
	}

	if settings.Retention > 0 {
		retentionSvc := cleanup.NewService(pruner, settings.Retention, settings.CleanupInterval)
		retentionSvc.Start(ctx)
		defer retentionSvc.Stop()
	}

	pushHub := hub.New(encounterStore, wsWriteTimeout)
	httpServer := api.NewServer(encounterStore, pushHub, dbClient)

	errCh := make(chan error, 1)
	go func() {
		addr := settings.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
