package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Quote-time failures. The cart must never be partially priced, so an
// unresolvable product aborts the whole quote instead of skipping the line.
var (
	ErrNoValidItems    = errors.New("no valid items provided")
	ErrProductNotFound = errors.New("product not found")
)

// Item describes one checkout line as submitted by the cart. It is transient:
// consumed once per quote or ingestion call, never stored.
type Item struct {
	ProductID           string            `json:"id"`
	Quantity            int               `json:"quantity"`
	VariantSelections   map[string]string `json:"variantSelections,omitempty"`
	PersonalizationText string            `json:"personalizationText,omitempty"`
}

// Profile carries the shipping rate rule attached to a product.
type Profile struct {
	ID                  string
	DomesticRate        Money
	AdditionalItemRate  Money
	FreeShippingEnabled bool
	FreeShippingMinimum *Money
}

// CatalogProduct is the catalog view the engine prices against.
type CatalogProduct struct {
	ID      string
	Name    string
	Price   Money
	Image   string
	Profile *Profile
}

// PricedItem is a checkout line enriched with the current catalog record.
type PricedItem struct {
	ProductID           string            `json:"id"`
	Name                string            `json:"name"`
	UnitPrice           Money             `json:"price"`
	Image               string            `json:"image,omitempty"`
	Quantity            int               `json:"quantity"`
	VariantSelections   map[string]string `json:"variantSelections,omitempty"`
	PersonalizationText string            `json:"personalizationText,omitempty"`

	Profile *Profile `json:"-"`
}

// Quote aggregates the computed totals for one cart.
type Quote struct {
	Items         []PricedItem `json:"items"`
	Subtotal      Money        `json:"subtotal"`
	ShippingCost  Money        `json:"shippingCost"`
	TaxAmount     Money        `json:"taxAmount"`
	Total         Money        `json:"total"`
	ShippingState string       `json:"shippingState"`
}

// CatalogReader resolves products for pricing. Prices are always taken from
// the catalog, never from caller input.
type CatalogReader interface {
	ProductsForPricing(ctx context.Context, ids []string) (map[string]CatalogProduct, error)
}

// Engine turns raw checkout items into a priced quote. It is read-only and
// safe for concurrent use.
type Engine struct {
	Catalog CatalogReader
	Rates   Rates
	Tax     Calculator
}

// Quote prices the cart against the current catalog and computes all totals.
func (e *Engine) Quote(ctx context.Context, rawItems []Item, shippingState string) (Quote, error) {
	if e == nil || e.Catalog == nil {
		return Quote{}, errors.New("pricing engine not configured")
	}
	items := NormalizeItems(rawItems)
	if len(items) == 0 {
		return Quote{}, ErrNoValidItems
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	products, err := e.Catalog.ProductsForPricing(ctx, ids)
	if err != nil {
		return Quote{}, fmt.Errorf("resolve products: %w", err)
	}

	priced := make([]PricedItem, 0, len(items))
	var subtotal Money
	for _, it := range items {
		product, ok := products[it.ProductID]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		priced = append(priced, PricedItem{
			ProductID:           product.ID,
			Name:                product.Name,
			UnitPrice:           product.Price,
			Image:               product.Image,
			Quantity:            it.Quantity,
			VariantSelections:   it.VariantSelections,
			PersonalizationText: it.PersonalizationText,
			Profile:             product.Profile,
		})
		subtotal += product.Price * Money(it.Quantity)
	}

	shipping := AggregateShipping(priced, subtotal, e.Rates)
	state := e.Tax.Normalize(shippingState)
	tax := e.Tax.Amount(subtotal, shipping, state)

	return Quote{
		Items:         priced,
		Subtotal:      subtotal,
		ShippingCost:  shipping,
		TaxAmount:     tax,
		Total:         subtotal + shipping + tax,
		ShippingState: state,
	}, nil
}

// NormalizeItems clamps quantities and drops lines that cannot be priced:
// missing product id or non-positive quantity.
func NormalizeItems(raw []Item) []Item {
	result := make([]Item, 0, len(raw))
	for _, it := range raw {
		it.ProductID = strings.TrimSpace(it.ProductID)
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		result = append(result, it)
	}
	return result
}

// Subtotal sums unit price times quantity over already-priced items.
func Subtotal(items []PricedItem) Money {
	var sum Money
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		sum += it.UnitPrice * Money(it.Quantity)
	}
	return sum
}
