package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

// Порог «заканчивается на складе» для панели управления.
const lowStockThreshold = 10

type statsRepository struct {
	db *sql.DB
}

// NewStatsRepository создаёт PostgreSQL-реализацию StatsRepository.
func NewStatsRepository(store *Store) domain.StatsRepository {
	return &statsRepository{db: store.DB()}
}

func (r *statsRepository) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats      domain.DashboardStats
		todaySales sql.NullInt64
	)

	err := r.db.QueryRowContext(queryCtx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM bills),
			(SELECT COUNT(*) FROM products WHERE quantity < $1),
			(SELECT SUM(total_minor) FROM bills WHERE created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC'))
	`, lowStockThreshold).Scan(
		&stats.TotalProducts,
		&stats.TotalCustomers,
		&stats.TotalBills,
		&stats.LowStockProducts,
		&todaySales,
	)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats query failed: %w", err)
	}

	if todaySales.Valid {
		stats.TodaySalesMinor = todaySales.Int64
	}

	return stats, nil
}

var _ domain.StatsRepository = (*statsRepository)(nil)
