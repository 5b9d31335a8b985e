package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/billing/internal/health"
	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/service/billing"
	"github.com/vladislavdragonenkov/billing/internal/service/httpapi"
	"github.com/vladislavdragonenkov/billing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/billing/internal/service/outbox"
	"github.com/vladislavdragonenkov/billing/internal/version"
)

// Run запускает сервис биллинга и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	if cfg.SeedDemoCatalog {
		if err := seedDemoCatalog(ctx, deps.catalog, logger); err != nil {
			logger.WithError(err).Warn("failed to seed demo catalog")
		}
	}

	// Kafka опционален: без брокеров outbox-события остаются в статусе pending.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	coordinator := billing.NewCoordinator(deps.store, logger.WithField("layer", "billing"))
	query := billing.NewQueryService(deps.bills, deps.catalog, deps.stats, logger.WithField("layer", "query"))
	apiHandler := httpapi.NewHandler(coordinator, query, deps.idempotencyRepo, logger.WithField("layer", "http"))

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", deps.ping))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var workers sync.WaitGroup

	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, cfg.KafkaBillTopic)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Warn("kafka не настроен, публикация outbox-событий отключена")
	}

	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workerCtx)
	}()

	apiSrv, apiErrCh := startAPIServer(cfg.HTTPAddr, apiHandler.Routes(), logger)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		cancelWorkers()
		workers.Wait()
		shutdownHTTP(metricsSrv, logger)
		closeKafka(producer, logger)
		return ctx.Err()
	case err := <-apiErrCh:
		cancelWorkers()
		workers.Wait()
		shutdownHTTP(metricsSrv, logger)
		closeKafka(producer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// seedDemoCatalog наполняет пустой каталог стартовым ассортиментом.
// SeedProducts — no-op для непустого каталога, поэтому повторный запуск безопасен.
func seedDemoCatalog(ctx context.Context, catalog domain.CatalogRepository, logger *log.Entry) error {
	products := []domain.Product{
		{ID: "book-madol-doova", Name: "Madol Doova", Category: "Fiction", PriceMinor: 150000, Quantity: 40},
		{ID: "book-gamperaliya", Name: "Gamperaliya", Category: "Fiction", PriceMinor: 200000, Quantity: 25},
		{ID: "book-viragaya", Name: "Viragaya", Category: "Fiction", PriceMinor: 180000, Quantity: 30},
		{ID: "book-grammar", Name: "English Grammar in Use", Category: "Education", PriceMinor: 350000, Quantity: 15},
		{ID: "notebook-a4", Name: "Notebook A4 ruled", Category: "Stationery", PriceMinor: 45000, Quantity: 120},
	}

	if err := catalog.SeedProducts(ctx, products); err != nil {
		return err
	}

	logger.WithField("products", len(products)).Info("демо-каталог загружен")
	return nil
}
