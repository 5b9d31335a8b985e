package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type billRepository struct {
	db *sql.DB
}

// NewBillRepository создаёт PostgreSQL-реализацию BillRepository.
func NewBillRepository(store *Store) domain.BillRepository {
	return &billRepository{db: store.DB()}
}

func (r *billRepository) Get(ctx context.Context, id string) (domain.Bill, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var bill domain.Bill
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, bill_number, customer_id, customer_name, customer_contact,
		       customer_email, customer_address, total_minor, created_at
		FROM bills
		WHERE id = $1
	`, id).Scan(
		&bill.ID, &bill.Number, &bill.CustomerID, &bill.CustomerName, &bill.CustomerContact,
		&bill.CustomerEmail, &bill.CustomerAddress, &bill.TotalMinor, &bill.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bill{}, domain.ErrBillNotFound
		}
		return domain.Bill{}, fmt.Errorf("select bill: %w", err)
	}

	items, err := r.loadItems(queryCtx, bill.ID)
	if err != nil {
		return domain.Bill{}, err
	}
	bill.Items = items

	return bill, nil
}

func (r *billRepository) ListRecent(ctx context.Context, limit int) ([]domain.Bill, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, bill_number, customer_id, customer_name, customer_contact,
		       customer_email, customer_address, total_minor, created_at
		FROM bills
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(queryCtx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(queryCtx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0)
	for rows.Next() {
		var bill domain.Bill
		if err := rows.Scan(
			&bill.ID, &bill.Number, &bill.CustomerID, &bill.CustomerName, &bill.CustomerContact,
			&bill.CustomerEmail, &bill.CustomerAddress, &bill.TotalMinor, &bill.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan bill row: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill rows: %w", err)
	}

	return bills, nil
}

func (r *billRepository) loadItems(ctx context.Context, billID string) ([]domain.BillItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, qty, price_minor, subtotal_minor, position, created_at
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY position ASC, id ASC
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("load bill items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.ProductName, &item.Qty,
			&item.PriceMinor, &item.SubtotalMinor, &item.Position, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan bill item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill items: %w", err)
	}

	return items, nil
}

var _ domain.BillRepository = (*billRepository)(nil)
