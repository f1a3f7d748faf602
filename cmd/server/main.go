/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recurring transaction engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start background refresh scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  RECURRING_PORT              HTTP server port (default: 8080)
  RECURRING_DB_PATH           SQLite database path (default: recurring.db)
                              Use ":memory:" for in-memory database
  RECURRING_REFRESH_INTERVAL  Scheduler cadence (default: 1h)
  RECURRING_REFRESH_DISABLED  "true" to disable the scheduler
  RECURRING_HORIZON_YEARS     Materialization window (default: 2)
  DEBUG                       "true" for debug logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background refresh
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerkit/recurring-engine/api"
	"github.com/ledgerkit/recurring-engine/config"
	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Debug)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, recurring.SystemClock{}, log)
	handler.Reconciler.HorizonYears = cfg.HorizonYears

	// Background refresh
	scheduler := api.NewRefreshScheduler(handler.Reconciler, log)
	scheduler.Interval = cfg.RefreshInterval
	scheduler.Enabled = cfg.RefreshEnabled
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
