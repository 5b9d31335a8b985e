package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
)

// CheckoutRequest описывает один запрос на оформление счёта.
type CheckoutRequest struct {
	Customer domain.CustomerInfo
	Lines    []domain.CartLine

	// DeclaredTotalMinor — сумма, посчитанная клиентом. Серверная сумма
	// всегда считается заново; расхождение только логируется.
	DeclaredTotalMinor int64
}

// Coordinator управляет транзакционным оформлением счёта.
type Coordinator interface {
	CreateBill(ctx context.Context, req CheckoutRequest) (domain.Bill, error)
}

// coordinator реализует последовательность шагов оформления:
// покупатель → номер счёта → резервирование остатков → запись счёта → outbox.
type coordinator struct {
	store   domain.BillingStore
	logger  *log.Entry
	metrics *metrics.BillingMetrics
}

// NewCoordinator создаёт рабочий экземпляр координатора.
func NewCoordinator(store domain.BillingStore, logger *log.Entry) Coordinator {
	if logger == nil {
		logger = log.New().WithField("component", "billing")
	}
	return &coordinator{
		store:   store,
		logger:  logger,
		metrics: metrics.NewBillingMetrics(),
	}
}

// NewCoordinatorWithoutMetrics создаёт координатор без метрик (для тестов).
func NewCoordinatorWithoutMetrics(store domain.BillingStore, logger *log.Entry) Coordinator {
	if logger == nil {
		logger = log.New().WithField("component", "billing")
	}
	return &coordinator{
		store:   store,
		logger:  logger,
		metrics: nil, // Отключаем метрики для тестов
	}
}

// CreateBill оформляет счёт атомарно: либо фиксируются все изменения
// (покупатель, списание остатков, счёт, outbox-событие), либо ни одно.
// Гонка за номер счёта повторяет всю транзакцию один раз.
func (c *coordinator) CreateBill(ctx context.Context, req CheckoutRequest) (domain.Bill, error) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordCheckoutFinished()
			c.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	if err := validateRequest(req); err != nil {
		c.logger.WithError(err).Warn("checkout request rejected by validation")
		if c.metrics != nil {
			c.metrics.RecordBillFailed()
		}
		return domain.Bill{}, err
	}

	bill, err := c.createBillOnce(ctx, req)
	if errors.Is(err, domain.ErrBillNumberConflict) {
		c.logger.Warn("bill number conflict, retrying checkout once")
		bill, err = c.createBillOnce(ctx, req)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordBillFailed()
			if domain.IsInsufficientStock(err) {
				c.metrics.RecordStockDenied()
			}
		}
		return domain.Bill{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordBillCreated()
	}
	c.logger.WithFields(log.Fields{
		"bill_id":     bill.ID,
		"bill_number": bill.Number,
		"customer_id": bill.CustomerID,
		"total_minor": bill.TotalMinor,
		"items":       len(bill.Items),
	}).Info("bill created")

	return bill, nil
}

func (c *coordinator) createBillOnce(ctx context.Context, req CheckoutRequest) (domain.Bill, error) {
	var bill domain.Bill

	err := c.store.WithinTx(ctx, func(tx domain.BillingTx) error {
		stageStart := time.Now()

		customer, err := tx.Customers().GetOrCreate(ctx, req.Customer)
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		c.recordStage("customer", stageStart)

		stageStart = time.Now()
		number, err := tx.Sequencer().NextBillNumber(ctx)
		if err != nil {
			return fmt.Errorf("next bill number: %w", err)
		}
		c.recordStage("sequence", stageStart)

		stageStart = time.Now()
		now := time.Now().UTC()
		items := make([]domain.BillItem, 0, len(req.Lines))
		var total int64
		for i, line := range req.Lines {
			product, err := tx.Inventory().GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := tx.Inventory().ReserveStock(ctx, line.ProductID, line.Qty); err != nil {
				return err
			}

			// Цена и название берутся из каталога на момент продажи,
			// а не из запроса.
			subtotal := int64(line.Qty) * product.PriceMinor
			items = append(items, domain.BillItem{
				ID:            uuid.NewString(),
				ProductID:     product.ID,
				ProductName:   product.Name,
				Qty:           line.Qty,
				PriceMinor:    product.PriceMinor,
				SubtotalMinor: subtotal,
				Position:      int32(i),
				CreatedAt:     now,
			})
			total += subtotal
		}
		c.recordStage("reserve", stageStart)

		if req.DeclaredTotalMinor > 0 && req.DeclaredTotalMinor != total {
			c.logger.WithFields(log.Fields{
				"declared_minor": req.DeclaredTotalMinor,
				"computed_minor": total,
			}).Warn("declared total mismatch, using server-side total")
		}

		bill = domain.Bill{
			ID:              uuid.NewString(),
			Number:          number,
			CustomerID:      customer.ID,
			CustomerName:    customer.Name,
			CustomerContact: customer.Contact,
			CustomerEmail:   customer.Email,
			CustomerAddress: customer.Address,
			TotalMinor:      total,
			Items:           items,
			CreatedAt:       now,
		}
		if errs := bill.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("bill invariants violated: %w", errs[0])
		}

		stageStart = time.Now()
		if err := tx.Bills().Insert(ctx, bill); err != nil {
			return err
		}
		c.recordStage("persist", stageStart)

		payload, err := json.Marshal(billCreatedPayload{
			BillID:     bill.ID,
			BillNumber: bill.Number,
			CustomerID: bill.CustomerID,
			TotalMinor: bill.TotalMinor,
			CreatedAt:  bill.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal bill.created payload: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "bill",
			AggregateID:   bill.ID,
			EventType:     "bill.created",
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue bill.created: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordOutboxEvent()
		}

		return nil
	})
	if err != nil {
		return domain.Bill{}, err
	}

	return bill, nil
}

func (c *coordinator) recordStage(stage string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStageDuration(stage, time.Since(start))
	}
}

func validateRequest(req CheckoutRequest) error {
	if errs := req.Customer.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if errs := domain.ValidateCart(req.Lines); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

type billCreatedPayload struct {
	BillID     string    `json:"bill_id"`
	BillNumber string    `json:"bill_number"`
	CustomerID string    `json:"customer_id"`
	TotalMinor int64     `json:"total_minor"`
	CreatedAt  time.Time `json:"created_at"`
}

var _ Coordinator = (*coordinator)(nil)
