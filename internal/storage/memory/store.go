package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// lowStockThreshold — порог «мало на складе» для сводки панели управления.
const lowStockThreshold = 10

// Store — in-memory реализация биллингового хранилища для локальной
// разработки и тестов. Транзакция моделируется глобальной блокировкой
// со снапшотом состояния: ошибка внутри WithinTx откатывает всё.
type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	customers map[string]domain.Customer
	byContact map[string]string
	bills     map[string]domain.Bill
	byNumber  map[string]string
	billSeq   int64
	prefix    string
	outbox    *outboxRepositoryInMemory
}

// NewStore создаёт пустое хранилище с префиксом номеров по умолчанию.
func NewStore() *Store {
	return NewStoreWithPrefix(domain.DefaultBillPrefix)
}

// NewStoreWithPrefix создаёт хранилище с заданным префиксом номеров счетов.
func NewStoreWithPrefix(prefix string) *Store {
	if prefix == "" {
		prefix = domain.DefaultBillPrefix
	}
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		byContact: make(map[string]string),
		bills:     make(map[string]domain.Bill),
		byNumber:  make(map[string]string),
		prefix:    prefix,
		outbox:    NewOutboxRepository(),
	}
}

// Outbox возвращает outbox-репозиторий, разделяющий состояние с хранилищем.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

type storeSnapshot struct {
	products  map[string]domain.Product
	customers map[string]domain.Customer
	byContact map[string]string
	bills     map[string]domain.Bill
	byNumber  map[string]string
	billSeq   int64
}

// WithinTx исполняет fn под глобальной блокировкой. При ошибке состояние
// восстанавливается из снапшота, включая поставленные в outbox события.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.BillingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	tx := &billingTx{store: s}

	if err := fn(tx); err != nil {
		s.restoreLocked(snap)
		s.outbox.remove(tx.enqueued)
		return err
	}

	return nil
}

func (s *Store) snapshotLocked() storeSnapshot {
	snap := storeSnapshot{
		products:  make(map[string]domain.Product, len(s.products)),
		customers: make(map[string]domain.Customer, len(s.customers)),
		byContact: make(map[string]string, len(s.byContact)),
		bills:     make(map[string]domain.Bill, len(s.bills)),
		byNumber:  make(map[string]string, len(s.byNumber)),
		billSeq:   s.billSeq,
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.customers {
		snap.customers[k] = v
	}
	for k, v := range s.byContact {
		snap.byContact[k] = v
	}
	// Счета после фиксации неизменяемы, поэтому снапшоту достаточно
	// скопировать map без глубокого копирования позиций.
	for k, v := range s.bills {
		snap.bills[k] = v
	}
	for k, v := range s.byNumber {
		snap.byNumber[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.products = snap.products
	s.customers = snap.customers
	s.byContact = snap.byContact
	s.bills = snap.bills
	s.byNumber = snap.byNumber
	s.billSeq = snap.billSeq
}

// billingTx — репозитории одной «транзакции»; работает под мьютексом Store.
type billingTx struct {
	store    *Store
	enqueued []string
}

func (t *billingTx) Customers() domain.CustomerDirectory { return t }
func (t *billingTx) Inventory() domain.InventoryLedger   { return t }
func (t *billingTx) Sequencer() domain.BillSequencer     { return t }
func (t *billingTx) Bills() domain.BillWriter            { return t }
func (t *billingTx) Outbox() domain.OutboxEnqueuer       { return t }

// GetOrCreate возвращает покупателя по contact или создаёт нового.
// Профиль существующего покупателя не трогаем.
func (t *billingTx) GetOrCreate(_ context.Context, info domain.CustomerInfo) (domain.Customer, error) {
	if errs := info.Validate(); len(errs) > 0 {
		return domain.Customer{}, errs[0]
	}

	s := t.store
	if id, ok := s.byContact[info.Contact]; ok {
		return s.customers[id], nil
	}

	customer := domain.Customer{
		ID:        uuid.NewString(),
		Name:      info.Name,
		Contact:   info.Contact,
		Email:     info.Email,
		Address:   info.Address,
		CreatedAt: time.Now().UTC(),
	}
	s.customers[customer.ID] = customer
	s.byContact[customer.Contact] = customer.ID
	return customer, nil
}

func (t *billingTx) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	product, ok := t.store.products[productID]
	if !ok {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: productID}
	}
	return product, nil
}

func (t *billingTx) ReserveStock(_ context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	product, ok := t.store.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	if product.Quantity < qty {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: product.Quantity,
		}
	}

	product.Quantity -= qty
	product.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = product
	return nil
}

func (t *billingTx) RestoreStock(_ context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	product, ok := t.store.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}

	product.Quantity += qty
	product.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = product
	return nil
}

func (t *billingTx) NextBillNumber(_ context.Context) (string, error) {
	t.store.billSeq++
	return domain.FormatBillNumber(t.store.prefix, t.store.billSeq), nil
}

func (t *billingTx) Insert(_ context.Context, bill domain.Bill) error {
	s := t.store
	if _, exists := s.bills[bill.ID]; exists {
		return domain.ErrBillNumberConflict
	}
	if _, exists := s.byNumber[bill.Number]; exists {
		return domain.ErrBillNumberConflict
	}

	// Сохраняем копию с собственным слайсом позиций.
	stored := bill
	stored.Items = append([]domain.BillItem(nil), bill.Items...)
	s.bills[bill.ID] = stored
	s.byNumber[bill.Number] = bill.ID
	return nil
}

func (t *billingTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	stored, err := t.store.outbox.Enqueue(ctx, msg)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	t.enqueued = append(t.enqueued, stored.ID)
	return stored, nil
}

// Get возвращает счёт с позициями или ErrBillNotFound.
func (s *Store) Get(_ context.Context, id string) (domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.bills[id]
	if !ok {
		return domain.Bill{}, domain.ErrBillNotFound
	}

	result := bill
	result.Items = append([]domain.BillItem(nil), bill.Items...)
	return result, nil
}

// ListRecent возвращает заголовки последних счетов без позиций.
func (s *Store) ListRecent(_ context.Context, limit int) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Bill, 0, len(s.bills))
	for _, bill := range s.bills {
		header := bill
		header.Items = nil
		result = append(result, header)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetProduct возвращает товар каталога или ProductNotFoundError.
func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return product, nil
}

// ListProducts возвращает каталог, отсортированный по названию.
func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// SeedProducts наполняет пустой каталог; на непустом каталоге — no-op.
func (s *Store) SeedProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.products) > 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, product := range products {
		if product.ID == "" {
			product.ID = uuid.NewString()
		}
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		if product.UpdatedAt.IsZero() {
			product.UpdatedAt = now
		}
		s.products[product.ID] = product
	}
	return nil
}

// DashboardStats считает сводку по текущему состоянию хранилища.
func (s *Store) DashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		TotalProducts:  len(s.products),
		TotalCustomers: len(s.customers),
		TotalBills:     len(s.bills),
	}

	for _, product := range s.products {
		if product.Quantity < lowStockThreshold {
			stats.LowStockProducts++
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, bill := range s.bills {
		if !bill.CreatedAt.UTC().Truncate(24 * time.Hour).Equal(today) {
			continue
		}
		stats.TodaySalesMinor += bill.TotalMinor
	}

	return stats, nil
}

var (
	_ domain.BillingStore      = (*Store)(nil)
	_ domain.BillRepository    = (*Store)(nil)
	_ domain.CatalogRepository = (*Store)(nil)
	_ domain.StatsRepository   = (*Store)(nil)
	_ domain.BillingTx         = (*billingTx)(nil)
)
