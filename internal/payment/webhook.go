package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gardencraft/storefront-api/internal/common"
	"github.com/gardencraft/storefront-api/internal/obs"
	"github.com/gardencraft/storefront-api/internal/order"
)

const maxWebhookBody = 1 << 20

// Webhook handles payment provider callbacks: signature verification, replay
// detection, and hand-off to order ingestion. The response code signals the
// provider's retry machinery: 2xx acknowledges the notification for good,
// anything else invites redelivery. Permanent ingestion failures are
// therefore acknowledged after being logged and recorded, because retrying
// the same payload can never succeed.
type Webhook struct {
	Provider  Provider
	Ingest    *order.Ingestor
	Replay    *redis.Client
	ReplayTTL time.Duration
	Log       zerolog.Logger
}

// Handle processes one webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.Ingest == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.countResult("invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if result.Notification == nil {
		// Event types other than a completed checkout are acknowledged
		// without side effects.
		h.countResult("ignored")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	// Best-effort replay shortcut. The unique session index in storage is
	// the correctness boundary; this only notes redeliveries early.
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:stripe:%s", common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			h.Log.Warn().Err(err).Msg("webhook replay store unavailable")
		} else if !fresh {
			h.Log.Info().Str("sessionId", result.Notification.SessionID).Msg("webhook replay detected")
		}
	}

	start := time.Now()
	res, err := h.Ingest.Ingest(r.Context(), *result.Notification)
	elapsed := time.Since(start)
	if err != nil {
		code, status, outcome := classifyIngestError(err)
		h.countResult(outcome)
		h.observeDuration(outcome, elapsed)
		if status < 300 {
			// Permanent failure: acknowledge so the provider stops
			// retrying; the failure is already logged and recorded.
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "error": code})
			return
		}
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}

	outcome := "created"
	if res.Duplicate {
		outcome = "duplicate"
	}
	h.countResult(outcome)
	h.observeDuration(outcome, elapsed)
	common.JSON(w, http.StatusOK, map[string]any{"received": true, "data": res})
}

// classifyIngestError maps ingestion errors to an error code, a response
// status, and a metrics outcome label. Permanent failures map to a 2xx
// status so the provider does not redeliver.
func classifyIngestError(err error) (code string, status int, outcome string) {
	switch {
	case errors.Is(err, order.ErrInvalidPayload):
		return common.CodeInvalidPaymentPayload, http.StatusOK, "invalid_payload"
	case errors.Is(err, order.ErrProductNotFound):
		return common.CodeProductNotFound, http.StatusOK, "product_not_found"
	case errors.Is(err, order.ErrVariantNotFound):
		return common.CodeVariantNotFound, http.StatusOK, "variant_not_found"
	case errors.Is(err, order.ErrInsufficientStock):
		return common.CodeInsufficientStock, http.StatusOK, "insufficient_stock"
	case errors.Is(err, order.ErrOrderNumberExhausted):
		return common.CodeOrderNumberExhausted, http.StatusOK, "number_exhausted"
	default:
		return common.CodeTransientStorage, http.StatusInternalServerError, "transient_error"
	}
}

func (h Webhook) countResult(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
	}
	if obs.OrderIngestTotal != nil && result != "ignored" && result != "invalid_signature" {
		obs.OrderIngestTotal.WithLabelValues(result).Inc()
	}
}

func (h Webhook) observeDuration(result string, elapsed time.Duration) {
	if obs.OrderIngestDuration != nil {
		obs.OrderIngestDuration.WithLabelValues(result).Observe(float64(elapsed.Milliseconds()))
	}
}
