package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getProductsForPricing = `
SELECT p.id, p.name, p.price, p.stock, p.image,
       sp.id, sp.domestic_rate, sp.additional_item_rate, sp.free_shipping_enabled, sp.free_shipping_minimum
FROM products p
LEFT JOIN shipping_profiles sp ON sp.id = p.shipping_profile_id
WHERE p.id = ANY($1::uuid[])
`

// PricingProductRow joins a product with its optional shipping profile.
type PricingProductRow struct {
	ID                  pgtype.UUID
	Name                string
	Price               int64
	Stock               int32
	Image               pgtype.Text
	ProfileID           pgtype.UUID
	DomesticRate        pgtype.Int8
	AdditionalItemRate  pgtype.Int8
	FreeShippingEnabled pgtype.Bool
	FreeShippingMinimum pgtype.Int8
}

// GetProductsForPricing loads price, stock, image, and shipping profile for the given ids.
func (q *Queries) GetProductsForPricing(ctx context.Context, ids []string) ([]PricingProductRow, error) {
	rows, err := q.db.Query(ctx, getProductsForPricing, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []PricingProductRow
	for rows.Next() {
		var row PricingProductRow
		if err := rows.Scan(
			&row.ID, &row.Name, &row.Price, &row.Stock, &row.Image,
			&row.ProfileID, &row.DomesticRate, &row.AdditionalItemRate, &row.FreeShippingEnabled, &row.FreeShippingMinimum,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const getProductsWithStock = `
SELECT id, stock FROM products WHERE id = ANY($1::uuid[])
`

// ProductStockRow carries the current on-hand stock for one product.
type ProductStockRow struct {
	ID    pgtype.UUID
	Stock int32
}

// GetProductsWithStock reads current product stock; call inside the ingestion transaction.
func (q *Queries) GetProductsWithStock(ctx context.Context, ids []string) ([]ProductStockRow, error) {
	rows, err := q.db.Query(ctx, getProductsWithStock, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ProductStockRow
	for rows.Next() {
		var row ProductStockRow
		if err := rows.Scan(&row.ID, &row.Stock); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const listVariantsByProducts = `
SELECT id, product_id, type, value, stock
FROM product_variants
WHERE product_id = ANY($1::uuid[])
`

// ListVariantsByProducts returns every variant row for the given products.
func (q *Queries) ListVariantsByProducts(ctx context.Context, ids []string) ([]ProductVariant, error) {
	rows, err := q.db.Query(ctx, listVariantsByProducts, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ProductVariant
	for rows.Next() {
		var row ProductVariant
		if err := rows.Scan(&row.ID, &row.ProductID, &row.Type, &row.Value, &row.Stock); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const decrementProductStock = `
UPDATE products
SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2
`

// DecrementProductStock atomically takes qty units from the product if enough
// are on hand, returning the number of rows updated (0 means shortfall).
func (q *Queries) DecrementProductStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementProductStock, id, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const decrementVariantStock = `
UPDATE product_variants
SET stock = stock - $2
WHERE id = $1 AND stock >= $2
`

// DecrementVariantStock atomically takes qty units from the variant if enough are on hand.
func (q *Queries) DecrementVariantStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementVariantStock, id, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
