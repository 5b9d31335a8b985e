package domain

import "time"

// Customer — покупатель, идентифицируемый по контактному номеру.
// Инвариант: не более одной записи на один contact.
type Customer struct {
	ID   string
	Name string
	// Contact — уникальный бизнес-ключ (например, номер телефона).
	Contact   string
	Email     string
	Address   string
	CreatedAt time.Time
}

// CustomerInfo — контактные данные покупателя, присланные при оформлении счёта.
// Name и Contact обязательны, Email и Address опциональны.
type CustomerInfo struct {
	Name    string
	Contact string
	Email   string
	Address string
}

// Validate проверяет обязательные поля и возвращает список замечаний.
func (i CustomerInfo) Validate() []error {
	var errs []error

	if i.Name == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if i.Contact == "" {
		errs = append(errs, ErrCustomerContactRequired)
	}

	return errs
}
