package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
)

func seededStore(t *testing.T, qty int32) (*memory.Store, domain.Product) {
	t.Helper()

	store := memory.NewStore()
	product := domain.Product{
		ID:         "product-1",
		Name:       "Notebook A4",
		Category:   "Stationery",
		PriceMinor: 50000,
		Quantity:   qty,
	}
	if err := store.SeedProducts(context.Background(), []domain.Product{product}); err != nil {
		t.Fatalf("seed products: %v", err)
	}
	return store, product
}

func buyerInfo(contact string) domain.CustomerInfo {
	return domain.CustomerInfo{Name: "Nimal Perera", Contact: contact}
}

// createBillTx повторяет транзакционные шаги оформления счёта поверх tx.
func createBillTx(ctx context.Context, tx domain.BillingTx, contact, productID string, qty int32) error {
	customer, err := tx.Customers().GetOrCreate(ctx, buyerInfo(contact))
	if err != nil {
		return err
	}

	number, err := tx.Sequencer().NextBillNumber(ctx)
	if err != nil {
		return err
	}

	product, err := tx.Inventory().GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := tx.Inventory().ReserveStock(ctx, productID, qty); err != nil {
		return err
	}

	now := time.Now().UTC()
	subtotal := int64(qty) * product.PriceMinor
	bill := domain.Bill{
		ID:              number,
		Number:          number,
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerContact: customer.Contact,
		TotalMinor:      subtotal,
		Items: []domain.BillItem{
			{
				ID:            number + "-item-0",
				ProductID:     product.ID,
				ProductName:   product.Name,
				Qty:           qty,
				PriceMinor:    product.PriceMinor,
				SubtotalMinor: subtotal,
				CreatedAt:     now,
			},
		},
		CreatedAt: now,
	}
	return tx.Bills().Insert(ctx, bill)
}

func TestStore_WithinTxCommit(t *testing.T) {
	store, product := seededStore(t, 10)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		return createBillTx(ctx, tx, "071-1111111", product.ID, 2)
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	stored, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 8 {
		t.Fatalf("expected quantity 8, got %d", stored.Quantity)
	}

	bills, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("expected 1 bill, got %d", len(bills))
	}
	if bills[0].Number != "INF-00001" {
		t.Fatalf("expected INF-00001, got %s", bills[0].Number)
	}
}

func TestStore_WithinTxRollback(t *testing.T) {
	store, product := seededStore(t, 10)
	ctx := context.Background()
	induced := errors.New("induced failure")

	err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		if err := createBillTx(ctx, tx, "071-1111111", product.ID, 2); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "bill",
			EventType:     "bill.created",
			Payload:       []byte(`{}`),
		}); err != nil {
			return err
		}
		return induced
	})
	if !errors.Is(err, induced) {
		t.Fatalf("expected induced error, got %v", err)
	}

	// Ни счёта, ни списания остатка, ни покупателя, ни outbox-события.
	stored, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 10 {
		t.Fatalf("expected quantity 10 after rollback, got %d", stored.Quantity)
	}

	bills, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(bills) != 0 {
		t.Fatalf("expected no bills after rollback, got %d", len(bills))
	}

	pending, err := store.Outbox().PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no outbox messages after rollback, got %d", len(pending))
	}

	stats, err := store.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCustomers != 0 {
		t.Fatalf("expected no customers after rollback, got %d", stats.TotalCustomers)
	}

	// Номер из снапшота возвращается: следующий счёт снова INF-00001.
	if err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		number, err := tx.Sequencer().NextBillNumber(ctx)
		if err != nil {
			return err
		}
		if number != "INF-00001" {
			t.Fatalf("expected INF-00001 after rollback, got %s", number)
		}
		return nil
	}); err != nil {
		t.Fatalf("within tx: %v", err)
	}
}

func TestStore_ReserveStockInsufficient(t *testing.T) {
	store, product := seededStore(t, 1)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		return tx.Inventory().ReserveStock(ctx, product.ID, 2)
	})
	if !domain.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 2 || stockErr.Available != 1 {
		t.Fatalf("unexpected details: %+v", stockErr)
	}

	stored, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", stored.Quantity)
	}
}

func TestStore_RestoreStock(t *testing.T) {
	store, product := seededStore(t, 5)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		if err := tx.Inventory().ReserveStock(ctx, product.ID, 3); err != nil {
			return err
		}
		return tx.Inventory().RestoreStock(ctx, product.ID, 3)
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	stored, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", stored.Quantity)
	}
}

func TestStore_NoOversellUnderConcurrency(t *testing.T) {
	store, product := seededStore(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(contact string) {
			defer wg.Done()
			results <- store.WithinTx(ctx, func(tx domain.BillingTx) error {
				return createBillTx(ctx, tx, contact, product.ID, 6)
			})
		}(time.Now().String() + string(rune('a'+i)))
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case domain.IsInsufficientStock(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one denial, got ok=%d insufficient=%d", ok, insufficient)
	}

	stored, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", stored.Quantity)
	}
}

func TestStore_CustomerGetOrCreateIdempotent(t *testing.T) {
	store, product := seededStore(t, 100)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
			customer, err := tx.Customers().GetOrCreate(ctx, buyerInfo("071-2222222"))
			if err != nil {
				return err
			}
			ids = append(ids, customer.ID)
			return createBillTx(ctx, tx, "071-2222222", product.ID, 1)
		})
		if err != nil {
			t.Fatalf("within tx #%d: %v", i, err)
		}
	}

	if ids[0] != ids[1] {
		t.Fatalf("expected same customer id, got %s and %s", ids[0], ids[1])
	}

	stats, err := store.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCustomers != 1 {
		t.Fatalf("expected 1 customer, got %d", stats.TotalCustomers)
	}
}

func TestStore_BillNumbersUniqueUnderConcurrency(t *testing.T) {
	store, product := seededStore(t, 1000)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			contact := "077-" + time.Now().Format("150405") + string(rune('a'+n%26))
			if err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
				return createBillTx(ctx, tx, contact, product.ID, 1)
			}); err != nil {
				t.Errorf("within tx: %v", err)
			}
		}(i)
	}
	wg.Wait()

	bills, err := store.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(bills) != workers {
		t.Fatalf("expected %d bills, got %d", workers, len(bills))
	}

	seen := make(map[string]struct{}, len(bills))
	for _, bill := range bills {
		if _, dup := seen[bill.Number]; dup {
			t.Fatalf("duplicate bill number %s", bill.Number)
		}
		seen[bill.Number] = struct{}{}
	}
}

func TestStore_GetBill(t *testing.T) {
	store, product := seededStore(t, 10)
	ctx := context.Background()

	if err := store.WithinTx(ctx, func(tx domain.BillingTx) error {
		return createBillTx(ctx, tx, "071-1111111", product.ID, 2)
	}); err != nil {
		t.Fatalf("within tx: %v", err)
	}

	bills, err := store.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}

	bill, err := store.Get(ctx, bills[0].ID)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(bill.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(bill.Items))
	}
	if bill.Items[0].SubtotalMinor != 100000 {
		t.Fatalf("expected subtotal 100000, got %d", bill.Items[0].SubtotalMinor)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrBillNotFound) {
		t.Fatalf("expected ErrBillNotFound, got %v", err)
	}
}

func TestStore_SeedProductsIsNoopWhenNotEmpty(t *testing.T) {
	store, product := seededStore(t, 10)
	ctx := context.Background()

	if err := store.SeedProducts(ctx, []domain.Product{{ID: "other", Name: "Pen"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.GetProduct(ctx, "other"); !domain.IsProductNotFound(err) {
		t.Fatalf("expected seeded-once catalog, got %v", err)
	}
	if _, err := store.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("get product: %v", err)
	}
}
