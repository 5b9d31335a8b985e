package domain

import (
	"context"
	"time"
)

// CustomerDirectory сопоставляет контактный номер покупателю.
type CustomerDirectory interface {
	// GetOrCreate возвращает существующего покупателя по contact или создаёт
	// нового. Профиль существующего покупателя из заказа не обновляется.
	// Гонка двух конкурентных вставок одного contact разрешается внутри:
	// проигравший перечитывает и использует уже созданную запись.
	GetOrCreate(ctx context.Context, info CustomerInfo) (Customer, error)
}

// InventoryLedger ведёт учёт остатков с атомарным условным списанием.
type InventoryLedger interface {
	// GetProduct возвращает актуальные название/цену/остаток товара
	// или ProductNotFoundError.
	GetProduct(ctx context.Context, productID string) (Product, error)
	// ReserveStock атомарно проверяет и списывает остаток. При нехватке
	// возвращает InsufficientStockError и не меняет ничего.
	ReserveStock(ctx context.Context, productID string, qty int32) error
	// RestoreStock возвращает остаток на склад (компенсация/отмена).
	RestoreStock(ctx context.Context, productID string, qty int32) error
}

// BillSequencer выдаёт уникальные номера счетов. Номера монотонно растут
// и допускают пропуски (откат транзакции сжигает номер).
type BillSequencer interface {
	NextBillNumber(ctx context.Context) (string, error)
}

// BillWriter сохраняет заголовок счёта вместе со всеми позициями.
type BillWriter interface {
	// Insert возвращает ErrBillNumberConflict при гонке за номер счёта.
	Insert(ctx context.Context, bill Bill) error
}

// OutboxEnqueuer добавляет событие в transactional outbox.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// BillingTx — набор репозиториев, привязанных к одной транзакции.
// Все мутации createBill проходят только через него.
type BillingTx interface {
	Customers() CustomerDirectory
	Inventory() InventoryLedger
	Sequencer() BillSequencer
	Bills() BillWriter
	Outbox() OutboxEnqueuer
}

// BillingStore — атомарная единица исполнения createBill: fn выполняется
// внутри одной транзакции, любая ошибка откатывает все изменения.
type BillingStore interface {
	WithinTx(ctx context.Context, fn func(tx BillingTx) error) error
}

// BillRepository — read-side доступ к зафиксированным счетам.
type BillRepository interface {
	// Get возвращает счёт с позициями в исходном порядке или ErrBillNotFound.
	Get(ctx context.Context, id string) (Bill, error)
	// ListRecent возвращает последние счета (заголовки без позиций).
	ListRecent(ctx context.Context, limit int) ([]Bill, error)
}

// CatalogRepository — read-mostly доступ к каталогу товаров.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	// SeedProducts наполняет пустой каталог; на непустом — no-op.
	SeedProducts(ctx context.Context, products []Product) error
}

// DashboardStats — сводка для витрины панели управления.
type DashboardStats struct {
	TotalProducts    int
	TotalCustomers   int
	TotalBills       int
	LowStockProducts int
	TodaySalesMinor  int64
}

// StatsRepository считает сводные показатели по хранилищу.
type StatsRepository interface {
	DashboardStats(ctx context.Context) (DashboardStats, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// RequeueFailed возвращает до limit failed-сообщений в статус pending.
	RequeueFailed(ctx context.Context, limit int) (int, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
