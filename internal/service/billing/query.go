package billing

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

const defaultRecentBillsLimit = 50

// QueryService отдаёт зафиксированные счета, каталог и сводку панели.
type QueryService struct {
	bills   domain.BillRepository
	catalog domain.CatalogRepository
	stats   domain.StatsRepository
	logger  *log.Entry
}

// NewQueryService создаёт read-side сервис поверх репозиториев хранилища.
func NewQueryService(
	bills domain.BillRepository,
	catalog domain.CatalogRepository,
	stats domain.StatsRepository,
	logger *log.Entry,
) *QueryService {
	if logger == nil {
		logger = log.New().WithField("component", "billing-query")
	}
	return &QueryService{
		bills:   bills,
		catalog: catalog,
		stats:   stats,
		logger:  logger,
	}
}

// GetBill возвращает счёт с позициями в порядке оформления.
func (s *QueryService) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	if id == "" {
		return domain.Bill{}, domain.ErrBillNotFound
	}
	return s.bills.Get(ctx, id)
}

// ListRecentBills возвращает последние счета без позиций.
func (s *QueryService) ListRecentBills(ctx context.Context, limit int) ([]domain.Bill, error) {
	if limit <= 0 {
		limit = defaultRecentBillsLimit
	}
	return s.bills.ListRecent(ctx, limit)
}

// GetProduct возвращает товар каталога.
func (s *QueryService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return s.catalog.GetProduct(ctx, id)
}

// ListProducts возвращает каталог, отсортированный по названию.
func (s *QueryService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx)
}

// DashboardStats возвращает сводку для панели управления.
func (s *QueryService) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	stats, err := s.stats.DashboardStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}
