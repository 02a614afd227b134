package checkout_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gardencraft/storefront-api/internal/checkout"
	"github.com/gardencraft/storefront-api/internal/common"
	"github.com/gardencraft/storefront-api/internal/payment"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

type stubCatalog map[string]pricing.CatalogProduct

func (c stubCatalog) ProductsForPricing(_ context.Context, ids []string) (map[string]pricing.CatalogProduct, error) {
	out := make(map[string]pricing.CatalogProduct, len(ids))
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type sessionOnlyProvider struct {
	lastReq payment.SessionRequest
	session payment.Session
}

func (s *sessionOnlyProvider) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	s.lastReq = req
	return s.session, nil
}

func (s *sessionOnlyProvider) VerifyWebhook(*http.Request, []byte) (payment.WebhookVerifyResult, error) {
	return payment.WebhookVerifyResult{Valid: false}, nil
}

func testEngine(catalog stubCatalog) *pricing.Engine {
	return &pricing.Engine{
		Catalog: catalog,
		Rates:   pricing.Rates{LegacyFlatRate: 500, LegacyFreeShippingMin: 5000},
		Tax:     pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600},
	}
}

func TestQuotePricesCart(t *testing.T) {
	t.Parallel()
	svc := &checkout.Service{Engine: testEngine(stubCatalog{
		"p1": {ID: "p1", Name: "Mug", Price: 1500},
	})}

	quote, err := svc.Quote(context.Background(), checkout.Input{
		Items:         []pricing.Item{{ProductID: "p1", Quantity: 2}},
		ShippingState: "MD",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3000), quote.Subtotal)
	require.Equal(t, int64(500), quote.ShippingCost)
	require.Equal(t, int64(210), quote.TaxAmount)
	require.Equal(t, int64(3710), quote.Total)
}

func TestQuoteMapsEmptyCartToInvalidInput(t *testing.T) {
	t.Parallel()
	svc := &checkout.Service{Engine: testEngine(stubCatalog{})}

	_, err := svc.Quote(context.Background(), checkout.Input{})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeInvalidInput, appErr.Code)
}

func TestQuoteMapsUnknownProduct(t *testing.T) {
	t.Parallel()
	svc := &checkout.Service{Engine: testEngine(stubCatalog{})}

	_, err := svc.Quote(context.Background(), checkout.Input{
		Items: []pricing.Item{{ProductID: "missing", Quantity: 1}},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeProductNotFound, appErr.Code)
}

func TestCreateSessionSeedsQuoteIntoProvider(t *testing.T) {
	t.Parallel()
	provider := &sessionOnlyProvider{session: payment.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	svc := &checkout.Service{
		Engine: testEngine(stubCatalog{
			"p1": {ID: "p1", Name: "Mug", Price: 1500},
		}),
		Provider:   provider,
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cart",
	}

	out, err := svc.CreateSession(context.Background(), checkout.Input{
		Items:         []pricing.Item{{ProductID: "p1", Quantity: 2}},
		ShippingState: "MD",
		CustomerEmail: "jordan@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", out.SessionID)
	require.Equal(t, "https://pay.example/cs_1", out.RedirectURL)
	require.Equal(t, int64(3710), provider.lastReq.Quote.Total)
	require.Equal(t, "jordan@example.com", provider.lastReq.CustomerEmail)
	require.Equal(t, "https://shop.example.com/success", provider.lastReq.SuccessURL)
}
