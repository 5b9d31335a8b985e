package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

func TestInsufficientStockError(t *testing.T) {
	err := &domain.InsufficientStockError{ProductID: "p1", Requested: 6, Available: 4}

	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatal("expected errors.Is to match ErrInsufficientStock")
	}
	if !domain.IsInsufficientStock(err) {
		t.Fatal("expected IsInsufficientStock")
	}
	if !strings.Contains(err.Error(), "p1") {
		t.Fatalf("expected product id in message, got %q", err.Error())
	}

	var stockErr *domain.InsufficientStockError
	wrapped := fmt.Errorf("reserve line 0: %w", err)
	if !errors.As(wrapped, &stockErr) || stockErr.Available != 4 {
		t.Fatalf("expected errors.As to recover details, got %v", wrapped)
	}
}

func TestProductNotFoundError(t *testing.T) {
	err := &domain.ProductNotFoundError{ProductID: "ghost"}

	if !domain.IsProductNotFound(err) {
		t.Fatal("expected IsProductNotFound")
	}
	if domain.IsInsufficientStock(err) {
		t.Fatal("did not expect IsInsufficientStock")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected product id in message, got %q", err.Error())
	}
}
