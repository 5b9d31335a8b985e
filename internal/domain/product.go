package domain

import "time"

// Product описывает товар каталога с текущим остатком на складе.
type Product struct {
	ID string
	// Name — отображаемое название товара.
	Name string
	// Category — текстовая метка категории (справочник категорий вне scope).
	Category string
	// PriceMinor — актуальная цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Quantity — доступный остаток; инвариант: никогда не уходит в минус.
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityNegative)
	}

	return errs
}
