package pricing

import "github.com/ovenfresh/cartkit/internal/models"

// ComputeUnitPrice resolves the base unit price of a product, ignoring
// add-ons.
//
// Precedence: an explicit positive `price` field, then a positive top-level
// `basePrice`, then the selected size's base price, then the minimum
// positive base price across all declared sizes, then 0.
func ComputeUnitPrice(p models.Product, sizeSelector string) float64 {
	if p.Raw != nil {
		if v, ok := models.CoerceNumber(p.Raw["price"]); ok && v > 0 {
			return v
		}
		if v, ok := models.CoerceNumber(p.Raw["basePrice"]); ok && v > 0 {
			return v
		}
	}
	if len(p.Sizes) == 0 {
		return 0
	}
	if size, ok := p.FindSize(sizeSelector); ok {
		return size.BasePrice
	}
	best := 0.0
	for _, s := range p.Sizes {
		if s.BasePrice > 0 && (best == 0 || s.BasePrice < best) {
			best = s.BasePrice
		}
	}
	return best
}
