package pricing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gardencraft/storefront-api/internal/pricing"
)

type stubCatalog struct {
	products map[string]pricing.CatalogProduct
}

func (s stubCatalog) ProductsForPricing(_ context.Context, ids []string) (map[string]pricing.CatalogProduct, error) {
	result := make(map[string]pricing.CatalogProduct, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func testEngine(products map[string]pricing.CatalogProduct) *pricing.Engine {
	return &pricing.Engine{
		Catalog: stubCatalog{products: products},
		Rates:   pricing.Rates{LegacyFlatRate: 500, LegacyFreeShippingMin: 5000},
		Tax:     pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600},
	}
}

func TestQuoteLegacyShippingBelowThreshold(t *testing.T) {
	t.Parallel()

	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1000},
	})
	quote, err := engine.Quote(context.Background(), []pricing.Item{{ProductID: "P1", Quantity: 3}}, "VA")
	require.NoError(t, err)

	require.Equal(t, int64(3000), quote.Subtotal)
	require.Equal(t, int64(500), quote.ShippingCost)
	require.Equal(t, int64(0), quote.TaxAmount)
	require.Equal(t, int64(3500), quote.Total)
	require.Equal(t, "VA", quote.ShippingState)
}

func TestQuoteTaxableDestination(t *testing.T) {
	t.Parallel()

	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1000},
	})
	for _, state := range []string{"MD", "md", " maryland "} {
		quote, err := engine.Quote(context.Background(), []pricing.Item{{ProductID: "P1", Quantity: 3}}, state)
		require.NoError(t, err)
		// round((3000 + 500) * 6%) = 210
		require.Equal(t, int64(210), quote.TaxAmount, "state %q", state)
		require.Equal(t, int64(3710), quote.Total, "state %q", state)
	}
}

func TestQuotePriceAlwaysFromCatalog(t *testing.T) {
	t.Parallel()

	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1250},
	})
	quote, err := engine.Quote(context.Background(), []pricing.Item{{ProductID: "P1", Quantity: 2}}, "")
	require.NoError(t, err)
	require.Equal(t, int64(2500), quote.Subtotal)
	require.Equal(t, int64(1250), quote.Items[0].UnitPrice)
}

func TestQuoteDropsInvalidLinesButFailsOnEmpty(t *testing.T) {
	t.Parallel()

	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1000},
	})

	quote, err := engine.Quote(context.Background(), []pricing.Item{
		{ProductID: "P1", Quantity: 1},
		{ProductID: "", Quantity: 4},
		{ProductID: "P1", Quantity: 0},
		{ProductID: "P1", Quantity: -2},
	}, "")
	require.NoError(t, err)
	require.Len(t, quote.Items, 1)

	_, err = engine.Quote(context.Background(), []pricing.Item{{ProductID: "", Quantity: 1}}, "")
	require.ErrorIs(t, err, pricing.ErrNoValidItems)

	_, err = engine.Quote(context.Background(), nil, "")
	require.ErrorIs(t, err, pricing.ErrNoValidItems)
}

func TestQuoteUnknownProductIsHardFailure(t *testing.T) {
	t.Parallel()

	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1000},
	})
	_, err := engine.Quote(context.Background(), []pricing.Item{
		{ProductID: "P1", Quantity: 1},
		{ProductID: "missing", Quantity: 1},
	}, "")
	require.ErrorIs(t, err, pricing.ErrProductNotFound)
}

func TestQuoteTotalIdentity(t *testing.T) {
	t.Parallel()

	min := int64(2000)
	engine := testEngine(map[string]pricing.CatalogProduct{
		"P1": {ID: "P1", Name: "Candle", Price: 1375},
		"P2": {ID: "P2", Name: "Soap", Price: 899, Profile: &pricing.Profile{
			ID: "prof-1", DomesticRate: 400, AdditionalItemRate: 100, FreeShippingMinimum: &min,
		}},
	})
	quote, err := engine.Quote(context.Background(), []pricing.Item{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
	}, "MD")
	require.NoError(t, err)
	require.Equal(t, quote.Subtotal+quote.ShippingCost+quote.TaxAmount, quote.Total)
	require.Equal(t, pricing.Subtotal(quote.Items), quote.Subtotal)
}
