package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
	"github.com/vladislavdragonenkov/billing/internal/storage/postgres"
)

// runtimeDependencies объединяет хранилище и репозитории, выбранные по конфигурации.
type runtimeDependencies struct {
	store           domain.BillingStore
	bills           domain.BillRepository
	catalog         domain.CatalogRepository
	stats           domain.StatsRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	// ping проверяет доступность хранилища для health checks.
	ping func() error
	// close освобождает ресурсы хранилища при остановке.
	close func()
}

// initRuntimeDependencies собирает зависимости для выбранного драйвера хранилища.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return initMemoryDependencies(cfg, logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(cfg Config, logger *log.Entry) *runtimeDependencies {
	store := memory.NewStoreWithPrefix(cfg.BillPrefix)
	logger.Info("используем in-memory хранилище")

	return &runtimeDependencies{
		store:           store,
		bills:           store,
		catalog:         store,
		stats:           store,
		outboxRepo:      store.Outbox(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		ping:            func() error { return nil },
		close:           func() {},
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres storage driver requires a DSN")
	}

	store, err := postgres.OpenWithPrefix(ctx, cfg.PostgresDSN, cfg.BillPrefix)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres миграции применены")
	}

	logger.Info("используем postgres хранилище")

	return &runtimeDependencies{
		store:           store,
		bills:           postgres.NewBillRepository(store),
		catalog:         postgres.NewCatalogRepository(store),
		stats:           postgres.NewStatsRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		ping: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		},
		close: func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("failed to close postgres store")
			}
		},
	}, nil
}
