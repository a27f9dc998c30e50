package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/flozac77/StreamZilla/internal/config"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/postgres"
	"github.com/flozac77/StreamZilla/internal/infrastructure/queue"
	"github.com/flozac77/StreamZilla/internal/platform/logging"
	"github.com/flozac77/StreamZilla/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// intake stops consuming on shutdown, work is what in-flight tasks run under.
	intakeCtx, stopIntake := context.WithCancel(context.Background())
	defer stopIntake()
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	pgClient, err := postgres.NewClient(workCtx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	if err := postgres.EnsureSchema(workCtx, pgClient.Pool()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	queueClient, err := queue.NewClient(workCtx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	maintenance := usecase.NewMaintenanceService(
		postgres.NewTokenRepository(pgClient.Pool()),
		postgres.NewGameRepository(pgClient.Pool()),
		clockwork.NewRealClock(),
		usecase.MaintenanceServiceConfig{
			TokenRetention: cfg.Token.Retention,
			MaxRetries:     cfg.Worker.MaxRetries,
		},
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// consumer and purge loops; a task in progress keeps its loop running
	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting worker, consuming game records")
		err := queueClient.ConsumeGameRecords(intakeCtx, func(task repository.GameRecordTask) error {
			return maintenance.ProcessGameRecord(workCtx, task)
		})
		if err != nil && intakeCtx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runPurge(intakeCtx, workCtx, maintenance, cfg.Worker.PurgeInterval)
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	if drain(stopIntake, cancelWork, &wg, cfg.Worker.ShutdownTimeout) {
		logger.Info("all in-flight tasks completed")
	} else {
		logger.Warn("shutdown timeout exceeded, in-flight tasks were cancelled")
	}

	logger.Info("worker stopped")
	return nil
}

// drain stops intake, waits up to timeout for wg, then cancels the work
// context. It reports whether everything finished before the timeout.
func drain(stopIntake, cancelWork context.CancelFunc, wg *sync.WaitGroup, timeout time.Duration) bool {
	stopIntake()
	defer cancelWork()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// runPurge deletes old invalid tokens once at startup and then every
// interval until intake stops.
func runPurge(intakeCtx, workCtx context.Context, svc usecase.MaintenanceService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := svc.PurgeOldTokens(workCtx); err != nil && workCtx.Err() == nil {
			slog.Error("token purge failed", "error", err)
		}

		select {
		case <-intakeCtx.Done():
			return
		case <-ticker.C:
		}
	}
}
