package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jay-S9/backend-foundation/internal/infra/kafka"
	infraRedis "github.com/Jay-S9/backend-foundation/internal/infra/redis"
	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/handler"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/middleware"
	"github.com/Jay-S9/backend-foundation/pkg/config"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault(os.Getenv("ENV")).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Options{
		Env:    cfg.Env,
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
	}, os.Stdout)
	log.Info("Starting ledger API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"storage", cfg.StorageDriver,
		"lock_backend", cfg.LockBackend,
	)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	checks := map[string]handler.Checker{}

	// Storage
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	checks["storage"] = store.health
	log.Info("Storage ready", "driver", cfg.StorageDriver)

	opts := []ledger.Option{ledger.WithCommitTimeout(cfg.CommitTimeout)}

	// Distributed per-account locking
	if cfg.LockBackend == config.LockRedis {
		redisClient, err := infraRedis.NewClient(ctx, infraRedis.Config{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		checks["redis"] = handler.CheckerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})

		lockOpts := infraRedis.DefaultLockOptions()
		if cfg.LockExpiry > 0 {
			lockOpts.Expiry = cfg.LockExpiry
		}
		opts = append(opts, ledger.WithLocker(infraRedis.NewLocker(redisClient, lockOpts, log)))
		log.Info("Redis locker initialized", "expiry", lockOpts.Expiry)
	}

	// Event publishing
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, log)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("Failed to close event publisher", "error", err)
			}
		}()
		opts = append(opts, ledger.WithPublisher(publisher))
		log.Info("Kafka publisher initialized", "topic", cfg.KafkaTopic)
	} else {
		log.Warn("KAFKA_BROKERS not configured, ledger events are not published")
	}

	ledgerSvc := ledger.NewService(store.repo, log, opts...)

	auth, err := middleware.NewAPIKeyAuth(cfg.APIKeys, log)
	if err != nil {
		return err
	}

	r := httpapi.NewRouter(ctx, httpapi.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AccountHandler: handler.NewAccountHandler(ledgerSvc, log),
		HealthHandler:  handler.NewHealthHandler(checks),
		Auth:           auth,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for termination signal
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
