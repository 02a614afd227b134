package catalog_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gardencraft/storefront-api/internal/catalog"
	"github.com/gardencraft/storefront-api/internal/db"
)

type stubQueries struct {
	rows  map[string]db.PricingProductRow
	calls int
}

func (s *stubQueries) GetProductsForPricing(_ context.Context, ids []string) ([]db.PricingProductRow, error) {
	s.calls++
	var result []db.PricingProductRow
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func TestProductsForPricingResolvesAndSkipsUnknown(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	profileID := uuid.New()
	queries := &stubQueries{rows: map[string]db.PricingProductRow{
		productID.String(): {
			ID:                  toPGUUID(productID),
			Name:                "Candle",
			Price:               1000,
			Stock:               5,
			Image:               pgtype.Text{String: "candle.jpg", Valid: true},
			ProfileID:           toPGUUID(profileID),
			DomesticRate:        pgtype.Int8{Int64: 400, Valid: true},
			AdditionalItemRate:  pgtype.Int8{Int64: 100, Valid: true},
			FreeShippingEnabled: pgtype.Bool{Bool: true, Valid: true},
			FreeShippingMinimum: pgtype.Int8{Int64: 2000, Valid: true},
		},
	}}
	reader, err := catalog.NewReader(queries, nil)
	require.NoError(t, err)

	products, err := reader.ProductsForPricing(context.Background(), []string{productID.String(), uuid.NewString(), "not-a-uuid"})
	require.NoError(t, err)
	require.Len(t, products, 1)

	product := products[productID.String()]
	require.Equal(t, "Candle", product.Name)
	require.Equal(t, int64(1000), product.Price)
	require.Equal(t, "candle.jpg", product.Image)
	require.NotNil(t, product.Profile)
	require.Equal(t, int64(400), product.Profile.DomesticRate)
	require.True(t, product.Profile.FreeShippingEnabled)
	require.NotNil(t, product.Profile.FreeShippingMinimum)
	require.Equal(t, int64(2000), *product.Profile.FreeShippingMinimum)
}

func TestProductsForPricingUsesCache(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	productID := uuid.New()
	queries := &stubQueries{rows: map[string]db.PricingProductRow{
		productID.String(): {ID: toPGUUID(productID), Name: "Soap", Price: 750},
	}}
	reader, err := catalog.NewReader(queries, catalog.NewCache(client, time.Minute))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		products, err := reader.ProductsForPricing(context.Background(), []string{productID.String()})
		require.NoError(t, err)
		require.Equal(t, int64(750), products[productID.String()].Price)
	}
	require.Equal(t, 1, queries.calls)
}
