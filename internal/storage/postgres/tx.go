package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// billingTx реализует все транзакционные репозитории поверх одного sql.Tx.
type billingTx struct {
	tx     *sql.Tx
	prefix string
}

func (t *billingTx) Customers() domain.CustomerDirectory { return t }
func (t *billingTx) Inventory() domain.InventoryLedger   { return t }
func (t *billingTx) Sequencer() domain.BillSequencer     { return t }
func (t *billingTx) Bills() domain.BillWriter            { return t }
func (t *billingTx) Outbox() domain.OutboxEnqueuer       { return t }

// GetOrCreate возвращает покупателя по contact или создаёт нового.
// Гонка двух вставок одного contact разрешается через ON CONFLICT DO NOTHING:
// проигравший перечитывает запись победителя.
func (t *billingTx) GetOrCreate(ctx context.Context, info domain.CustomerInfo) (domain.Customer, error) {
	if errs := info.Validate(); len(errs) > 0 {
		return domain.Customer{}, errs[0]
	}

	customer, err := t.findCustomerByContact(ctx, info.Contact)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, err
	}

	now := time.Now().UTC()
	newID := uuid.NewString()

	var insertedID string
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, contact, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (contact) DO NOTHING
		RETURNING id
	`, newID, info.Name, info.Contact, info.Email, info.Address, now).Scan(&insertedID)
	if err == nil {
		return domain.Customer{
			ID:        insertedID,
			Name:      info.Name,
			Contact:   info.Contact,
			Email:     info.Email,
			Address:   info.Address,
			CreatedAt: now,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	// Вставка проиграла гонку: запись с этим contact уже есть.
	customer, err = t.findCustomerByContact(ctx, info.Contact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, fmt.Errorf("customer with contact %s disappeared after conflict", info.Contact)
		}
		return domain.Customer{}, err
	}
	return customer, nil
}

func (t *billingTx) findCustomerByContact(ctx context.Context, contact string) (domain.Customer, error) {
	var customer domain.Customer
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, contact, email, address, created_at
		FROM customers
		WHERE contact = $1
	`, contact).Scan(
		&customer.ID, &customer.Name, &customer.Contact,
		&customer.Email, &customer.Address, &customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, err
		}
		return domain.Customer{}, fmt.Errorf("select customer by contact: %w", err)
	}
	return customer, nil
}

func (t *billingTx) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, category, price_minor, quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(
		&product.ID, &product.Name, &product.Category,
		&product.PriceMinor, &product.Quantity,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, &domain.ProductNotFoundError{ProductID: productID}
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// ReserveStock атомарно списывает остаток: условие quantity >= qty в самом
// UPDATE исключает овер-продажу при конкурентных транзакциях.
func (t *billingTx) ReserveStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND quantity >= $2
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock rows affected: %w", err)
	}
	if affected == 0 {
		product, err := t.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: product.Quantity,
		}
	}

	return nil
}

func (t *billingTx) RestoreStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore stock rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}

	return nil
}

// NextBillNumber берёт следующее значение из SQL-последовательности.
// Откат транзакции значение не возвращает, поэтому в номерах допустимы
// пропуски.
func (t *billingTx) NextBillNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('bill_numbers')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next bill number: %w", err)
	}
	return domain.FormatBillNumber(t.prefix, seq), nil
}

func (t *billingTx) Insert(ctx context.Context, bill domain.Bill) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bills (
			id, bill_number, customer_id, customer_name, customer_contact,
			customer_email, customer_address, total_minor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		bill.ID, bill.Number, bill.CustomerID, bill.CustomerName, bill.CustomerContact,
		bill.CustomerEmail, bill.CustomerAddress, bill.TotalMinor, bill.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBillNumberConflict
		}
		return fmt.Errorf("insert bill: %w", err)
	}

	for _, item := range bill.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO bill_items (
				id, bill_id, product_id, product_name, qty,
				price_minor, subtotal_minor, position, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, bill.ID, item.ProductID, item.ProductName, item.Qty,
			item.PriceMinor, item.SubtotalMinor, item.Position, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert bill item: %w", err)
		}
	}

	return nil
}

func (t *billingTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}

	return msg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.BillingTx = (*billingTx)(nil)
var _ domain.CustomerDirectory = (*billingTx)(nil)
var _ domain.InventoryLedger = (*billingTx)(nil)
var _ domain.BillSequencer = (*billingTx)(nil)
var _ domain.BillWriter = (*billingTx)(nil)
var _ domain.OutboxEnqueuer = (*billingTx)(nil)
