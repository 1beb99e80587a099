/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan schedule engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, environment and flags
  2. Initialize structured logging
  3. Open the store selected by DB_DRIVER (also the holiday calendar)
  4. Build the calendar, event publisher and metrics
  5. Create the schedule service, API handler and router
  6. Start the re-derive scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -driver     sqlite | postgres | memory (default: sqlite)
  -db         SQLite database path (default: schedules.db)
              Use ":memory:" for in-memory database
  -log-level  debug | info | warn | error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the re-derive scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the event writer and the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/schedules.db"

  # Run against PostgreSQL with Kafka events
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/schedules \
  KAFKA_BROKERS=localhost:9092 ./server

ENVIRONMENT:
  See config/config.go for every variable.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/schedule-engine/api"
	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/config"
	"github.com/warp/schedule-engine/events"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/interest"
	"github.com/warp/schedule-engine/observability"
	"github.com/warp/schedule-engine/schedule"
	memstore "github.com/warp/schedule-engine/schedule/store"
	"github.com/warp/schedule-engine/store/postgres"
	"github.com/warp/schedule-engine/store/sqlite"
)

// backend is what a storage driver provides to the server.
type backend struct {
	store    schedule.Store
	holidays interface {
		api.HolidayStore
		generic.HolidayCalendar
	}
	ping  func(ctx context.Context) error
	close func()
}

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	defer be.close()

	var publisher schedule.Publisher = schedule.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		defer kp.Close()
		publisher = kp
		logger.Info("publishing schedule events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	metrics := observability.NewMetrics()
	svc := schedule.NewService(be.store, schedule.Dependencies{
		Dates:    calendar.NewGenerator(be.holidays, cfg.RescheduleRule),
		Interest: interest.NewEMICalculator(),
	},
		schedule.WithPublisher(publisher),
		schedule.WithRecorder(metrics),
		schedule.WithLogger(logger),
	)

	handler := api.NewHandler(svc, be.holidays, logger)
	handler.Rederiver.Interval = cfg.RederiveInterval
	handler.Rederiver.Batch = cfg.RederiveBatch
	handler.Rederiver.Gauge = metrics

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics.Handler(),
		Health:         be.ping,
	})

	handler.Rederiver.Start()
	defer handler.Rederiver.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Port, "driver", cfg.DBDriver, "environment", cfg.Environment,
			"reschedule_rule", cfg.RescheduleRule)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.DBDriver {
	case "memory":
		return &backend{
			store:    memstore.NewMemory(),
			holidays: memstore.NewHolidays(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: 2,
		})
		if err != nil {
			return nil, err
		}
		st := postgres.NewStore(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{store: st, holidays: st, ping: st.Ping, close: pool.Close}, nil

	default:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{store: st, holidays: st, ping: st.Ping, close: func() { st.Close() }}, nil
	}
}
