package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// withIdempotency оборачивает обработчик кешированием ответа по Idempotency-Key.
// Без заголовка или без репозитория запрос обрабатывается как обычно.
func (h *Handler) withIdempotency(r *http.Request, raw []byte, handler func(context.Context) handlerResult) handlerResult {
	ctx := r.Context()

	if h.idemRepo == nil {
		return handler(ctx)
	}

	idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idemKey == "" {
		return handler(ctx)
	}

	reqHash := buildIdempotencyRequestHash(r.Method, r.URL.Path, raw)
	record, err := h.idemRepo.CreateProcessing(ctx, idemKey, reqHash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		return h.replayIdempotency(err, record)
	}

	res := handler(ctx)
	h.cacheIdempotencyResult(ctx, idemKey, res)
	return res
}

// replayIdempotency решает судьбу повторного запроса по сохраненному состоянию.
func (h *Handler) replayIdempotency(createErr error, record domain.IdempotencyRecord) handlerResult {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return errorResult(http.StatusConflict, "idempotency_conflict",
			"idempotency key is already used with a different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Status.Terminal():
			if len(record.ResponseBody) == 0 || record.HTTPStatus <= 0 {
				return errorResult(http.StatusInternalServerError, "internal", "idempotency cache is empty")
			}
			return handlerResult{status: record.HTTPStatus, body: record.ResponseBody}
		case record.Status == domain.IdempotencyStatusProcessing:
			return errorResult(http.StatusConflict, "idempotency_in_progress",
				"request with the same idempotency key is already processing")
		default:
			return errorResult(http.StatusInternalServerError, "internal", "unknown idempotency record status")
		}
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		return errorResult(http.StatusInternalServerError, "internal", "failed to initialize idempotency request")
	}
}

func (h *Handler) cacheIdempotencyResult(ctx context.Context, key string, res handlerResult) {
	var err error
	if res.status < http.StatusBadRequest {
		err = h.idemRepo.MarkDone(ctx, key, res.body, res.status)
	} else {
		err = h.idemRepo.MarkFailed(ctx, key, res.body, res.status)
	}
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency response")
	}
}

// buildIdempotencyRequestHash считает отпечаток запроса: метод, путь и тело.
func buildIdempotencyRequestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
