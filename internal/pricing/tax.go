package pricing

import "strings"

// Calculator applies a single destination-based flat tax rule. The interface
// (region in, amount out) leaves room for a real tax-rate table without
// touching callers.
type Calculator struct {
	RegionCode string
	RegionName string
	RateBPS    int
}

// Normalize upper-cases and trims a destination state/region code.
func (c Calculator) Normalize(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// Taxable reports whether the destination matches the configured region,
// accepting both the two-letter code and the full name.
func (c Calculator) Taxable(state string) bool {
	normalized := c.Normalize(state)
	if normalized == "" {
		return false
	}
	return normalized == c.RegionCode || normalized == c.RegionName
}

// Amount returns the tax owed on subtotal plus shipping, rounded half away
// from zero to the nearest cent. Non-taxable destinations owe zero.
func (c Calculator) Amount(subtotal, shipping Money, state string) Money {
	if !c.Taxable(state) {
		return 0
	}
	base := subtotal + shipping
	if base <= 0 || c.RateBPS <= 0 {
		return 0
	}
	return (base*Money(c.RateBPS) + 5000) / 10000
}
