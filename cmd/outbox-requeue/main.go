package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/storage/postgres"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRequeueLimit = 100
)

// outbox-requeue возвращает failed-сообщения outbox в статус pending,
// чтобы воркер публикации попробовал отправить их заново.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	var (
		dsn   string
		limit int
		all   bool
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: BILLING_POSTGRES_DSN)")
	flag.IntVar(&limit, "limit", defaultRequeueLimit, "max number of failed messages to requeue")
	flag.BoolVar(&all, "all", false, "requeue all failed messages, ignoring -limit")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("BILLING_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("BILLING_POSTGRES_DSN (or -dsn) is required")
	}
	if !all && limit <= 0 {
		fail("limit must be > 0 (or use -all)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	repo := postgres.NewOutboxRepository(store)

	requeueLimit := limit
	if all {
		// limit <= 0 возвращает все failed-сообщения.
		requeueLimit = 0
	}

	requeued, err := repo.RequeueFailed(ctx, requeueLimit)
	if err != nil {
		fail("requeue failed messages: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		fail("read outbox stats: %v", err)
	}

	log.WithFields(log.Fields{
		"requeued": requeued,
		"pending":  stats.PendingCount,
	}).Info("outbox requeue finished")

	if !stats.OldestPendingAt.IsZero() {
		log.WithField("oldest_pending_at", stats.OldestPendingAt.UTC().Format(time.RFC3339)).
			Info("oldest pending outbox message")
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
