package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gardencraft/storefront-api/internal/db"
	"github.com/gardencraft/storefront-api/internal/order"
	"github.com/gardencraft/storefront-api/internal/payment"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

type stubProvider struct {
	result payment.WebhookVerifyResult
}

func (s stubProvider) CreateCheckoutSession(context.Context, payment.SessionRequest) (payment.Session, error) {
	return payment.Session{}, nil
}

func (s stubProvider) VerifyWebhook(*http.Request, []byte) (payment.WebhookVerifyResult, error) {
	return s.result, nil
}

type memStore struct {
	stock   map[string]int32
	created *db.Order
}

func (s *memStore) GetOrderBySessionID(context.Context, string) (db.Order, error) {
	return db.Order{}, pgx.ErrNoRows
}

func (s *memStore) OrderNumberExists(context.Context, string) (bool, error) { return false, nil }

func (s *memStore) GetProductsWithStock(_ context.Context, ids []string) ([]db.ProductStockRow, error) {
	var rows []db.ProductStockRow
	for _, id := range ids {
		if stock, ok := s.stock[id]; ok {
			parsed := uuid.MustParse(id)
			rows = append(rows, db.ProductStockRow{ID: pgtype.UUID{Bytes: parsed, Valid: true}, Stock: stock})
		}
	}
	return rows, nil
}

func (s *memStore) ListVariantsByProducts(context.Context, []string) ([]db.ProductVariant, error) {
	return nil, nil
}

func (s *memStore) DecrementProductStock(context.Context, pgtype.UUID, int32) (int64, error) {
	return 1, nil
}

func (s *memStore) DecrementVariantStock(context.Context, pgtype.UUID, int32) (int64, error) {
	return 1, nil
}

func (s *memStore) CreateOrder(_ context.Context, arg db.CreateOrderParams) (db.Order, error) {
	o := db.Order{
		ID:          pgtype.UUID{Bytes: uuid.New(), Valid: true},
		OrderNumber: arg.OrderNumber,
	}
	s.created = &o
	return o, nil
}

func (s *memStore) CreateOrderItem(context.Context, db.CreateOrderItemParams) error { return nil }

func (s *memStore) InTx(_ context.Context, fn func(order.Querier) error) error { return fn(s) }

func testWebhook(provider payment.Provider, store order.Store) payment.Webhook {
	return payment.Webhook{
		Provider: provider,
		Ingest: &order.Ingestor{
			Store:   store,
			Tax:     pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600},
			Numbers: order.NumberGenerator{Prefix: "GC-", Min: 10000, Max: 99999, MaxAttempts: 50},
			Log:     zerolog.Nop(),
		},
		Log: zerolog.Nop(),
	}
}

func notificationFor(productID string) *order.Notification {
	return &order.Notification{
		SessionID: "cs_wh_1",
		Metadata: order.Metadata{
			ItemsJSON:    `[{"id":"` + productID + `","name":"Mug","price":1500,"quantity":1}]`,
			Subtotal:     "1500",
			ShippingCost: "500",
			TaxAmount:    "120",
		},
	}
}

func TestHandleIngestsCompletedSession(t *testing.T) {
	t.Parallel()
	productID := uuid.NewString()
	store := &memStore{stock: map[string]int32{productID: 5}}
	wh := testWebhook(stubProvider{result: payment.WebhookVerifyResult{
		Valid:        true,
		EventType:    "checkout.session.completed",
		Notification: notificationFor(productID),
	}}, store)

	rec := httptest.NewRecorder()
	wh.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}")))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.created)
	var body struct {
		Data order.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, store.created.OrderNumber, body.Data.OrderNumber)
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	t.Parallel()
	wh := testWebhook(stubProvider{result: payment.WebhookVerifyResult{Valid: false}}, &memStore{})

	rec := httptest.NewRecorder()
	wh.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}")))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	wh := testWebhook(stubProvider{result: payment.WebhookVerifyResult{
		Valid:     true,
		EventType: "payment_intent.created",
	}}, store)

	rec := httptest.NewRecorder()
	wh.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, store.created)
}

func TestHandleAcknowledgesPermanentFailure(t *testing.T) {
	t.Parallel()
	n := notificationFor(uuid.NewString())
	n.Metadata.ItemsJSON = `[]`
	wh := testWebhook(stubProvider{result: payment.WebhookVerifyResult{
		Valid:        true,
		EventType:    "checkout.session.completed",
		Notification: n,
	}}, &memStore{})

	rec := httptest.NewRecorder()
	wh.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}")))

	// Permanent failures are acknowledged so the provider stops retrying.
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "INVALID_PAYMENT_PAYLOAD", body["error"])
}
