package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gardencraft/storefront-api/internal/db"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

type queryProvider interface {
	GetProductsForPricing(ctx context.Context, ids []string) ([]db.PricingProductRow, error)
}

// Reader resolves catalog records for the pricing engine. Product rows are
// cached per id for a short TTL; stock is intentionally not part of the
// pricing view, so a slightly stale price window is acceptable here while the
// ingestion transaction always reads live stock.
type Reader struct {
	queries queryProvider
	cache   *Cache
}

// NewReader constructs a Reader.
func NewReader(queries queryProvider, cache *Cache) (*Reader, error) {
	if queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	return &Reader{queries: queries, cache: cache}, nil
}

// ProductsForPricing implements pricing.CatalogReader. Unknown ids are simply
// absent from the result; the caller decides whether that is fatal.
func (r *Reader) ProductsForPricing(ctx context.Context, ids []string) (map[string]pricing.CatalogProduct, error) {
	result := make(map[string]pricing.CatalogProduct, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			// malformed ids can never resolve; leave them absent
			continue
		}
		var cached pricing.CatalogProduct
		ok, err := r.cache.GetJSON(ctx, pricingCacheKey(id), &cached)
		if err == nil && ok {
			result[id] = cached
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	rows, err := r.queries.GetProductsForPricing(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("catalog: load products: %w", err)
	}
	for _, row := range rows {
		product := toCatalogProduct(row)
		result[product.ID] = product
		_ = r.cache.SetJSON(ctx, pricingCacheKey(product.ID), product)
	}
	return result, nil
}

func toCatalogProduct(row db.PricingProductRow) pricing.CatalogProduct {
	product := pricing.CatalogProduct{
		ID:    uuidString(row.ID),
		Name:  row.Name,
		Price: row.Price,
	}
	if row.Image.Valid {
		product.Image = row.Image.String
	}
	if row.ProfileID.Valid {
		profile := &pricing.Profile{
			ID:                  uuidString(row.ProfileID),
			DomesticRate:        row.DomesticRate.Int64,
			AdditionalItemRate:  row.AdditionalItemRate.Int64,
			FreeShippingEnabled: row.FreeShippingEnabled.Bool,
		}
		if row.FreeShippingMinimum.Valid {
			min := row.FreeShippingMinimum.Int64
			profile.FreeShippingMinimum = &min
		}
		product.Profile = profile
	}
	return product
}

func pricingCacheKey(id string) string {
	return "catalog:pricing:" + id
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	u, err := uuid.FromBytes(id.Bytes[:])
	if err != nil {
		return ""
	}
	return u.String()
}
