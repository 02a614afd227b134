package pricing

// Rates holds the legacy flat-rate fallback applied to products that predate
// shipping profiles.
type Rates struct {
	LegacyFlatRate        Money
	LegacyFreeShippingMin Money
}

type profileGroup struct {
	qty                 int
	domesticRate        Money
	additionalItemRate  Money
	freeShippingEnabled bool
	freeShippingMinimum *Money
}

// AggregateShipping partitions priced items by shipping profile and sums one
// contribution per profile group: a flat domestic rate for the group plus a
// per-extra-unit surcharge. Two products sharing a profile are billed as one
// shipment, not two. Free-shipping minimums are evaluated against the
// whole-cart subtotal, not the group subtotal.
func AggregateShipping(items []PricedItem, subtotal Money, rates Rates) Money {
	groups := make(map[string]*profileGroup)
	fallbackQty := 0

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if it.Profile == nil {
			fallbackQty += it.Quantity
			continue
		}
		group, ok := groups[it.Profile.ID]
		if !ok {
			group = &profileGroup{
				domesticRate:        it.Profile.DomesticRate,
				additionalItemRate:  it.Profile.AdditionalItemRate,
				freeShippingEnabled: it.Profile.FreeShippingEnabled,
				freeShippingMinimum: it.Profile.FreeShippingMinimum,
			}
			groups[it.Profile.ID] = group
		}
		group.qty += it.Quantity
	}

	var cost Money
	for _, group := range groups {
		freeEligible := group.freeShippingEnabled &&
			(group.freeShippingMinimum == nil || subtotal >= *group.freeShippingMinimum)
		if freeEligible {
			continue
		}
		extra := group.qty - 1
		if extra < 0 {
			extra = 0
		}
		cost += group.domesticRate + Money(extra)*group.additionalItemRate
	}

	if fallbackQty > 0 && subtotal < rates.LegacyFreeShippingMin {
		cost += rates.LegacyFlatRate
	}
	return cost
}
