package order

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gardencraft/storefront-api/internal/pricing"
)

// Address snapshots where the order ships, copied verbatim from the payment
// notification at ingestion time.
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Metadata carries the totals this system committed at quote time, round-
// tripped through the payment provider. All amounts are integer cents encoded
// as strings; ItemsJSON is the serialized priced item list.
type Metadata struct {
	ItemsJSON     string
	Subtotal      string
	ShippingCost  string
	TaxAmount     string
	ShippingState string
}

// Notification is a completed-payment notification normalised by the payment
// provider adapter. Delivery is at-least-once; SessionID is the idempotency key.
type Notification struct {
	SessionID       string
	PaymentIntentID string
	CustomerName    string
	CustomerEmail   string
	AmountTotal     pricing.Money
	ShippingAmount  pricing.Money
	ShippingAddress Address
	Metadata        Metadata
}

// Result identifies the order an ingestion call resolved to.
type Result struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// ParseItems decodes and filters the metadata item list. Lines without a
// product id or with a non-positive quantity are dropped; an empty result is
// the caller's signal for an invalid payload.
func ParseItems(itemsJSON string) ([]pricing.PricedItem, error) {
	trimmed := strings.TrimSpace(itemsJSON)
	if trimmed == "" {
		return nil, nil
	}
	var raw []pricing.PricedItem
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, err
	}
	items := make([]pricing.PricedItem, 0, len(raw))
	for _, it := range raw {
		it.ProductID = strings.TrimSpace(it.ProductID)
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// parseCents reads a metadata amount. The second return is false when the
// value is absent or not a clean non-negative integer, which sends the
// pipeline down the recompute branch.
func parseCents(value string) (pricing.Money, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}
