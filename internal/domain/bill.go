package domain

import (
	"fmt"
	"time"
)

// DefaultBillPrefix — префикс номера счёта по умолчанию.
const DefaultBillPrefix = "INF"

// FormatBillNumber собирает человекочитаемый номер счёта вида PREFIX-00042.
func FormatBillNumber(prefix string, seq int64) string {
	if prefix == "" {
		prefix = DefaultBillPrefix
	}
	return fmt.Sprintf("%s-%05d", prefix, seq)
}

// CartLine — одна позиция корзины: товар и количество.
// Цена клиентом не передаётся, её источник — каталог на момент оформления.
type CartLine struct {
	ProductID string
	Qty       int32
}

// BillItem представляет одну позицию счёта. Название и цена товара
// денормализованы на момент оформления: последующие правки каталога
// не меняют исторические счета.
type BillItem struct {
	ID          string
	ProductID   string
	ProductName string
	Qty         int32
	// PriceMinor — цена за единицу на момент оформления.
	PriceMinor int64
	// SubtotalMinor — qty * price, считается на сервере.
	SubtotalMinor int64
	// Position — порядок позиции внутри счёта, как в корзине.
	Position  int32
	CreatedAt time.Time
}

// Bill — неизменяемый после фиксации счёт с денормализованным снимком
// данных покупателя. Позиции принадлежат счёту и не живут отдельно от него.
type Bill struct {
	ID string
	// Number — уникальный отображаемый номер вида INF-00001.
	Number          string
	CustomerID      string
	CustomerName    string
	CustomerContact string
	CustomerEmail   string
	CustomerAddress string
	TotalMinor      int64
	Items           []BillItem
	CreatedAt       time.Time
}

// ValidateCart проверяет корзину до старта транзакции.
func ValidateCart(lines []CartLine) []error {
	var errs []error

	if len(lines) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	for _, line := range lines {
		if line.ProductID == "" {
			errs = append(errs, ErrLineProductRequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}

// ValidateInvariants проверяет согласованность счёта и возвращает список замечаний.
func (b *Bill) ValidateInvariants() []error {
	var errs []error

	if b.Number == "" {
		errs = append(errs, ErrBillNumberRequired)
	}
	if b.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(b.Items) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	if b.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	// Сверяем итог счёта с суммой позиций.
	var calc int64
	for _, item := range b.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if item.SubtotalMinor != int64(item.Qty)*item.PriceMinor {
			errs = append(errs, ErrSubtotalMismatch)
		}
		calc += item.SubtotalMinor
	}
	if calc != b.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
