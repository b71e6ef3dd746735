package pricing

import "github.com/ovenfresh/cartkit/internal/models"

// PricedSelection is the priced outcome of a size + add-on selection.
type PricedSelection struct {
	// UnitBase is the per-unit base price for the chosen size.
	UnitBase float64

	// AddOns are the selected add-ons with their resolved prices, in
	// catalog order.
	AddOns []models.ResolvedAddOn

	// HasUncertainPricing is true iff at least one selected add-on resolved
	// to an unknown price. Totals treat unknown as 0, but callers surface
	// the flag so the user is not shown a silently wrong amount.
	HasUncertainPricing bool
}

// UnitTotal is the per-unit price: base plus known add-on prices.
func (s PricedSelection) UnitTotal() float64 {
	total := s.UnitBase
	for _, a := range s.AddOns {
		total += a.Price.OrZero()
	}
	return total
}

// PriceSelection prices a product for a chosen size and add-on selection.
// Add-ons are matched by name or id, since callers supply either.
func PriceSelection(p models.Product, sizeSelector string, addOnIDs []string) PricedSelection {
	sel := PricedSelection{}

	if size, ok := p.FindSize(sizeSelector); ok {
		sel.UnitBase = size.BasePrice
	} else {
		sel.UnitBase = ComputeUnitPrice(p, sizeSelector)
	}

	if len(addOnIDs) == 0 {
		return sel
	}

	wanted := make(map[string]bool, len(addOnIDs))
	for _, id := range addOnIDs {
		wanted[id] = true
	}
	for _, a := range ResolveAddOnsForSize(p, sizeSelector) {
		if !wanted[a.Name] && (a.ID == "" || !wanted[a.ID]) {
			continue
		}
		sel.AddOns = append(sel.AddOns, a)
		if !a.Price.Known() {
			sel.HasUncertainPricing = true
		}
	}
	return sel
}
