package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

func TestIdempotencyRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Time{})
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if record.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected processing status, got %s", record.Status)
	}

	existing, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Time{})
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if existing.Key != "key-1" {
		t.Fatalf("expected existing record, got %+v", existing)
	}

	if _, err := repo.CreateProcessing(ctx, "key-1", "hash-2", time.Time{}); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}

	body := []byte(`{"bill_number":"INF-00001"}`)
	if err := repo.MarkDone(ctx, "key-1", body, 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	stored, err := repo.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.IdempotencyStatusDone || stored.HTTPStatus != 201 {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
	if string(stored.ResponseBody) != string(body) {
		t.Fatalf("unexpected response body: %s", stored.ResponseBody)
	}
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing(ctx, "expired", "hash-1", past); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "alive", "hash-2", future); err != nil {
		t.Fatalf("create alive: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := repo.Get(ctx, "expired"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.Get(ctx, "alive"); err != nil {
		t.Fatalf("expected alive record, got %v", err)
	}
}

func TestIdempotencyRepository_PostgresValidation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := repo.CreateProcessing(ctx, " ", "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected key required, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "key", "", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected hash required, got %v", err)
	}
	if err := repo.MarkDone(ctx, "missing", nil, 200); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
