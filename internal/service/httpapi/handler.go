package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	"github.com/vladislavdragonenkov/billing/internal/service/billing"
)

// maxRequestBodyBytes ограничивает размер тела запроса на оформление счёта.
const maxRequestBodyBytes = 1 << 20

// Handler реализует HTTP API биллинга поверх координатора и query-сервиса.
type Handler struct {
	coordinator billing.Coordinator
	query       *billing.QueryService
	idemRepo    domain.IdempotencyRepository
	logger      *log.Entry
}

// NewHandler конструирует обработчик с зависимостями. idemRepo может быть nil,
// тогда заголовок Idempotency-Key игнорируется.
func NewHandler(
	coordinator billing.Coordinator,
	query *billing.QueryService,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}

	return &Handler{
		coordinator: coordinator,
		query:       query,
		idemRepo:    idemRepo,
		logger:      logger,
	}
}

// Routes возвращает mux со всеми маршрутами API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bills", h.handleCreateBill)
	mux.HandleFunc("GET /api/v1/bills", h.handleListBills)
	mux.HandleFunc("GET /api/v1/bills/{id}", h.handleGetBill)
	mux.HandleFunc("GET /api/v1/products", h.handleListProducts)
	mux.HandleFunc("GET /api/v1/products/{id}", h.handleGetProduct)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	return mux
}

type customerPayload struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type cartLinePayload struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type createBillRequest struct {
	Customer           customerPayload   `json:"customer"`
	Items              []cartLinePayload `json:"items"`
	DeclaredTotalMinor int64             `json:"declared_total_minor,omitempty"`
}

type billItemPayload struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
	Position      int32  `json:"position"`
}

type billPayload struct {
	ID              string            `json:"id"`
	Number          string            `json:"number"`
	CustomerID      string            `json:"customer_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerContact string            `json:"customer_contact"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerAddress string            `json:"customer_address,omitempty"`
	TotalMinor      int64             `json:"total_minor"`
	Items           []billItemPayload `json:"items,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type productPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	PriceMinor int64  `json:"price_minor"`
	Quantity   int32  `json:"quantity"`
}

type statsPayload struct {
	TotalProducts    int   `json:"total_products"`
	TotalCustomers   int   `json:"total_customers"`
	TotalBills       int   `json:"total_bills"`
	LowStockProducts int   `json:"low_stock_products"`
	TodaySalesMinor  int64 `json:"today_sales_minor"`
}

type errorPayload struct {
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
	ProductID string `json:"product_id,omitempty"`
	Requested int32  `json:"requested,omitempty"`
	Available int32  `json:"available,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// handlerResult — готовый к записи ответ; нужен, чтобы idempotency-слой
// мог закешировать тело и статус до отправки клиенту.
type handlerResult struct {
	status int
	body   []byte
}

func (h *Handler) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		h.writeResult(w, errorResult(http.StatusBadRequest, "bad_request", "failed to read request body"))
		return
	}

	res := h.withIdempotency(r, raw, func(ctx context.Context) handlerResult {
		return h.createBill(ctx, raw)
	})
	h.writeResult(w, res)
}

func (h *Handler) createBill(ctx context.Context, raw []byte) handlerResult {
	var req createBillRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResult(http.StatusBadRequest, "bad_request", "invalid JSON payload")
	}

	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.CartLine{ProductID: item.ProductID, Qty: item.Qty})
	}

	bill, err := h.coordinator.CreateBill(ctx, billing.CheckoutRequest{
		Customer: domain.CustomerInfo{
			Name:    req.Customer.Name,
			Contact: req.Customer.Contact,
			Email:   req.Customer.Email,
			Address: req.Customer.Address,
		},
		Lines:              lines,
		DeclaredTotalMinor: req.DeclaredTotalMinor,
	})
	if err != nil {
		return h.mapError(err)
	}

	return jsonResult(http.StatusCreated, toBillPayload(bill, true))
}

func (h *Handler) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.query.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeResult(w, h.mapError(err))
		return
	}
	h.writeResult(w, jsonResult(http.StatusOK, toBillPayload(bill, true)))
}

func (h *Handler) handleListBills(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			h.writeResult(w, errorResult(http.StatusBadRequest, "bad_request", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	bills, err := h.query.ListRecentBills(r.Context(), limit)
	if err != nil {
		h.writeResult(w, h.mapError(err))
		return
	}

	payload := make([]billPayload, 0, len(bills))
	for _, bill := range bills {
		payload = append(payload, toBillPayload(bill, false))
	}
	h.writeResult(w, jsonResult(http.StatusOK, map[string][]billPayload{"bills": payload}))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.query.ListProducts(r.Context())
	if err != nil {
		h.writeResult(w, h.mapError(err))
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, toProductPayload(product))
	}
	h.writeResult(w, jsonResult(http.StatusOK, map[string][]productPayload{"products": payload}))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.query.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeResult(w, h.mapError(err))
		return
	}
	h.writeResult(w, jsonResult(http.StatusOK, toProductPayload(product)))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.DashboardStats(r.Context())
	if err != nil {
		h.writeResult(w, h.mapError(err))
		return
	}
	h.writeResult(w, jsonResult(http.StatusOK, statsPayload{
		TotalProducts:    stats.TotalProducts,
		TotalCustomers:   stats.TotalCustomers,
		TotalBills:       stats.TotalBills,
		LowStockProducts: stats.LowStockProducts,
		TodaySalesMinor:  stats.TodaySalesMinor,
	}))
}

// mapError переводит доменные ошибки в HTTP-статусы и тело ошибки.
func (h *Handler) mapError(err error) handlerResult {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return jsonResult(http.StatusConflict, errorResponse{Error: errorPayload{
			Kind:      "insufficient_stock",
			Detail:    stockErr.Error(),
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		}})
	}

	var notFoundErr *domain.ProductNotFoundError
	if errors.As(err, &notFoundErr) {
		return jsonResult(http.StatusNotFound, errorResponse{Error: errorPayload{
			Kind:      "product_not_found",
			Detail:    notFoundErr.Error(),
			ProductID: notFoundErr.ProductID,
		}})
	}

	switch {
	case domain.IsInsufficientStock(err):
		return errorResult(http.StatusConflict, "insufficient_stock", err.Error())
	case domain.IsProductNotFound(err):
		return errorResult(http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrBillNotFound):
		return errorResult(http.StatusNotFound, "bill_not_found", err.Error())
	case errors.Is(err, domain.ErrBillNumberConflict):
		return errorResult(http.StatusConflict, "number_conflict", err.Error())
	case isValidationError(err):
		return errorResult(http.StatusBadRequest, "validation", err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		return errorResult(http.StatusInternalServerError, "internal", "internal server error")
	}
}

func isValidationError(err error) bool {
	validationErrs := []error{
		domain.ErrCustomerNameRequired,
		domain.ErrCustomerContactRequired,
		domain.ErrEmptyCart,
		domain.ErrLineProductRequired,
		domain.ErrLineQtyInvalid,
	}
	for _, sentinel := range validationErrs {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func toBillPayload(bill domain.Bill, withItems bool) billPayload {
	payload := billPayload{
		ID:              bill.ID,
		Number:          bill.Number,
		CustomerID:      bill.CustomerID,
		CustomerName:    bill.CustomerName,
		CustomerContact: bill.CustomerContact,
		CustomerEmail:   bill.CustomerEmail,
		CustomerAddress: bill.CustomerAddress,
		TotalMinor:      bill.TotalMinor,
		CreatedAt:       bill.CreatedAt,
	}

	if withItems {
		payload.Items = make([]billItemPayload, 0, len(bill.Items))
		for _, item := range bill.Items {
			payload.Items = append(payload.Items, billItemPayload{
				ID:            item.ID,
				ProductID:     item.ProductID,
				ProductName:   item.ProductName,
				Qty:           item.Qty,
				PriceMinor:    item.PriceMinor,
				SubtotalMinor: item.SubtotalMinor,
				Position:      item.Position,
			})
		}
	}

	return payload
}

func toProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:         product.ID,
		Name:       product.Name,
		Category:   product.Category,
		PriceMinor: product.PriceMinor,
		Quantity:   product.Quantity,
	}
}

func jsonResult(status int, payload any) handlerResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return handlerResult{
			status: http.StatusInternalServerError,
			body:   []byte(`{"error":{"kind":"internal","detail":"failed to encode response"}}`),
		}
	}
	return handlerResult{status: status, body: body}
}

func errorResult(status int, kind, detail string) handlerResult {
	return jsonResult(status, errorResponse{Error: errorPayload{Kind: kind, Detail: detail}})
}

func (h *Handler) writeResult(w http.ResponseWriter, res handlerResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.status)
	if _, err := w.Write(res.body); err != nil {
		h.logger.WithError(err).Warn("failed to write response")
	}
}
