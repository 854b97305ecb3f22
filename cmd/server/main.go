/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the campaign engine server: donation ledger,
  reconciliation scheduler, follower notifications and the HTTP API.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment, then apply flags
  2. Open the store (memory, SQLite or PostgreSQL)
  3. Build the notifier and the notification fan-out
  4. Build the reconciler and scheduler (optional redis tick lock)
  5. Optionally seed demo scenarios
  6. Start the scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: $PORT or 8080)
  -driver  memory, sqlite3 or postgres (default: $DB_DRIVER or sqlite3)
  -db      DSN or SQLite path (default: $DATABASE_URL or campaigns.db)
           Use ":memory:" for an in-memory SQLite database
  -seed    Load all demo scenarios on startup (resets the store)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, drain requests (30s timeout)
  2. Stop the scheduler and wait for the in-flight tick
  3. Drain pending notifications (30s timeout)
  4. Close notifier, redis and store

EXAMPLES:
  # Run with file database
  ./server -db="./data/campaigns.db"

  # Run in memory with demo data
  ./server -driver=memory -seed

  # Run against postgres
  DB_DRIVER=postgres DATABASE_URL="postgres://localhost/campaigns?sslmode=disable" ./server

ENVIRONMENT:
  See infra/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - reconcile/scheduler.go: Reconciliation loop
  - infra/: Configuration and dependency construction
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/api"
	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/infra"
	"github.com/warp/campaign-engine/notify"
	"github.com/warp/campaign-engine/reconcile"
)

const lockKey = "campaign-engine:reconcile:lock"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	driver := flag.String("driver", cfg.DBDriver, "Database driver: memory, sqlite3 or postgres")
	dsn := flag.String("db", cfg.DatabaseURL, "Database DSN or SQLite path")
	seed := flag.Bool("seed", false, "Load demo scenarios on startup (resets the store)")
	flag.Parse()

	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, closeStore, err := infra.OpenStore(*driver, *dsn)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Str("driver", *driver).Msg("store opened")

	// Notifications
	notifier, closeNotifier, err := infra.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	fanout := notify.NewFanout(
		store,
		notifier,
		notify.DefaultTemplates(),
		notify.NewRenderer(cfg.PublicBaseURL, cfg.CurrencySuffix),
		notify.FanoutConfig{Concurrency: cfg.NotifyConcurrency, Timeout: cfg.NotifyTimeout},
		logger,
	)

	// Reconciliation
	clock := campaign.SystemClock{}
	scheduler := reconcile.NewScheduler(reconcile.New(store, clock, fanout, logger), logger)
	scheduler.Interval = cfg.ReconcileInterval
	scheduler.Enabled = cfg.ReconcileEnabled
	scheduler.Runs = store

	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, tick lock disabled")
		} else {
			defer closeRedis(client, logger)
			scheduler.Locker = reconcile.NewRedisLocker(client, lockKey, cfg.ReconcileLockTTL)
			logger.Info().Msg("redis tick lock enabled")
		}
	}

	// Initialize handler
	handler := api.NewHandler(
		campaign.NewLedger(store, clock),
		campaign.NewStats(store, clock),
		scheduler,
		store,
		logger,
	)
	handler.Resetter = store

	if *seed {
		if err := handler.SeedDemo(ctx); err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}

	scheduler.Start(ctx)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler, api.RouterConfig{AllowedOrigins: cfg.CORSOrigins}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	logger.Info().Msg("shutting down")
	shutdown(server, scheduler, fanout, logger)
	logger.Info().Msg("server stopped")
	return nil
}

func shutdown(server *http.Server, scheduler *reconcile.Scheduler, fanout *notify.Fanout, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	scheduler.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := fanout.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("notifications not fully drained")
	}
}

func closeRedis(client *redis.Client, logger zerolog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn().Err(err).Msg("close redis")
	}
}
