package main

import (
	"context"
	"fmt"

	"github.com/Jay-S9/backend-foundation/internal/infra/memory"
	"github.com/Jay-S9/backend-foundation/internal/infra/mysql"
	"github.com/Jay-S9/backend-foundation/internal/infra/postgres"
	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/internal/transport/httpapi/handler"
	"github.com/Jay-S9/backend-foundation/pkg/config"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// storage is the selected repository with its health check and cleanup.
type storage struct {
	repo   ledger.Repository
	health handler.Checker
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		if err := postgres.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
		db, err := postgres.NewPool(ctx, postgres.Config{
			URL:             cfg.DatabaseURL,
			ApplicationName: "ledger-api",
		})
		if err != nil {
			return nil, err
		}
		return &storage{
			repo:   postgres.NewLedgerRepository(db.Pool),
			health: db,
			close:  db.Close,
		}, nil

	case config.StorageMySQL:
		client, err := mysql.NewClient(ctx, mysql.Config{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			DBName:   cfg.MySQL.Database,
			LogLevel: "warn",
		}, log)
		if err != nil {
			return nil, err
		}
		repo := mysql.NewLedgerRepository(client)
		if err := repo.AutoMigrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return &storage{
			repo:   repo,
			health: client,
			close: func() {
				if err := client.Close(); err != nil {
					log.Warn("Failed to close MySQL client", "error", err)
				}
			},
		}, nil

	case config.StorageMemory:
		log.Warn("Using in-memory storage, balances are lost on restart")
		repo := memory.NewLedgerRepository()
		return &storage{repo: repo, health: repo, close: func() {}}, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
