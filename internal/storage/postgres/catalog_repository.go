package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name, category, price_minor, quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.Category,
		&product.PriceMinor, &product.Quantity,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

func (r *catalogRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, `
		SELECT id, name, category, price_minor, quantity, created_at, updated_at
		FROM products
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.Name, &product.Category,
			&product.PriceMinor, &product.Quantity,
			&product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// SeedProducts наполняет пустой каталог демо-товарами.
// Непустой каталог не трогаем, чтобы не перетереть реальные остатки.
func (r *catalogRepository) SeedProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(queryCtx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.QueryRowContext(queryCtx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return tx.Commit()
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

		if _, err = tx.ExecContext(queryCtx, `
			INSERT INTO products (id, name, category, price_minor, quantity, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			product.ID, product.Name, product.Category,
			product.PriceMinor, product.Quantity,
			product.CreatedAt, product.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert seed product %s: %w", product.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit seed products: %w", err)
	}

	return nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
