package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего имени покупателя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// Ошибка отсутствующего контактного номера покупателя.
	ErrCustomerContactRequired = errors.New("customer contact is required")
	// Ошибка пустой корзины.
	ErrEmptyCart = errors.New("cart must contain at least one line")
	// Ошибка при позиции без идентификатора товара.
	ErrLineProductRequired = errors.New("line product_id is required")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line price must be non-negative")
	// Ошибка несоответствия subtotal позиции произведению qty * price.
	ErrSubtotalMismatch = errors.New("line subtotal does not match qty * price")
	// Ошибка отрицательного итога счёта.
	ErrTotalNegative = errors.New("bill total must be non-negative")
	// Ошибка несоответствия итога счёта и сумм позиций.
	ErrTotalMismatch = errors.New("bill total does not match items sum")
	// Ошибка счёта без номера.
	ErrBillNumberRequired = errors.New("bill number is required")
	// Ошибка счёта без привязки к покупателю.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка товара без названия.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrProductQuantityNegative = errors.New("product quantity must be non-negative")

	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — бизнес-ошибка: остатка не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrBillNotFound возвращается, если счёт не найден в репозитории.
	ErrBillNotFound = errors.New("bill not found")
	// ErrBillNumberConflict — проигранная гонка за уникальный номер счёта;
	// безопасно повторить всю операцию один раз.
	ErrBillNumberConflict = errors.New("bill number conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key is used with a different request")
)

// ProductNotFoundError уточняет ErrProductNotFound идентификатором товара.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// InsufficientStockError уточняет ErrInsufficientStock: какой товар,
// сколько запрошено и сколько доступно.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsProductNotFound проверяет, является ли ошибка отсутствием товара.
func IsProductNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}
