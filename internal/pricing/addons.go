package pricing

import (
	"sort"

	"github.com/ovenfresh/cartkit/internal/models"
)

// addOnCollectionFields are the legacy field names under which a product (or
// a size record) may carry its add-on collection, in lookup order.
var addOnCollectionFields = []string{"toppings", "extras", "options", "addons"}

// productPriceMapFields are the legacy field names under which a product may
// carry a top-level map from add-on identifier (or name) to a price or a
// nested price object, in lookup order.
var productPriceMapFields = []string{
	"toppingPrices",
	"toppingPriceMap",
	"toppingsPrice",
	"toppingsPrices",
	"topping_price_map",
	"topping_price",
	"priceMap",
}

// shapeMatcher extracts a price from one known encoding of an add-on record.
// It reports whether the shape applied; a matcher may apply and still yield
// an unknown price (a price map with no usable entries is conclusive: the
// record meant to price per size and failed, so later matchers must not
// second-guess it).
type shapeMatcher func(record map[string]any, sizeLabel string) (models.Price, bool)

// addOnMatchers is the resolution precedence for a single add-on record.
// First match wins.
var addOnMatchers = []shapeMatcher{
	matchFlatPrice,
	matchPriceList("prices"),
	matchPriceList("pricePerSize"),
	matchPriceMap,
	matchSizeKeyedObj,
	matchStructural,
}

// matchFlatPrice handles `{price: 30}`.
func matchFlatPrice(record map[string]any, _ string) (models.Price, bool) {
	v, ok := record["price"]
	if !ok || v == nil {
		return models.Price{}, false
	}
	n, _ := models.CoerceNumber(v)
	return models.KnownPrice(n), true
}

// matchPriceList handles `{prices: [{size: "Large", price: 30}, ...]}` (and
// the pricePerSize spelling): an exact size match wins, otherwise the first
// positive numeric value anywhere in the list.
func matchPriceList(field string) shapeMatcher {
	return func(record map[string]any, sizeLabel string) (models.Price, bool) {
		list, ok := record[field].([]any)
		if !ok {
			return models.Price{}, false
		}
		if sizeLabel != "" {
			for _, el := range list {
				entry, ok := el.(map[string]any)
				if !ok {
					continue
				}
				if models.StringField(entry, "size") != sizeLabel {
					continue
				}
				if p, ok := entry["price"]; ok && p != nil {
					n, _ := models.CoerceNumber(p)
					return models.KnownPrice(n), true
				}
			}
		}
		if v, ok := findNumeric(list, searchDepth); ok {
			return models.KnownPrice(v), true
		}
		return models.Price{}, false
	}
}

// matchPriceMap handles `{prices: {"9\"": 50, default: 20}}`: exact size key,
// then the default key, then the minimum positive value across the map. A
// map that yields nothing resolves conclusively to unknown.
func matchPriceMap(record map[string]any, sizeLabel string) (models.Price, bool) {
	m, ok := record["prices"].(map[string]any)
	if !ok {
		return models.Price{}, false
	}
	if sizeLabel != "" {
		if v, ok := m[sizeLabel]; ok && v != nil {
			n, _ := models.CoerceNumber(v)
			return models.KnownPrice(n), true
		}
	}
	if v, ok := m["default"]; ok && v != nil {
		n, _ := models.CoerceNumber(v)
		return models.KnownPrice(n), true
	}
	if v, ok := minPositive(m); ok {
		return models.KnownPrice(v), true
	}
	return models.UnknownPrice(), true
}

// matchSizeKeyedObj handles `{pricesObj: {"Large": 30}}`. Only an exact
// size hit applies; every other case falls through to the catch-all.
func matchSizeKeyedObj(record map[string]any, sizeLabel string) (models.Price, bool) {
	obj, ok := record["pricesObj"].(map[string]any)
	if !ok || sizeLabel == "" {
		return models.Price{}, false
	}
	v, ok := obj[sizeLabel]
	if !ok || v == nil {
		return models.Price{}, false
	}
	n, _ := models.CoerceNumber(v)
	return models.KnownPrice(n), true
}

// matchStructural is the catch-all: any positive numeric value reachable
// within the record, preferring price-like keys.
func matchStructural(record map[string]any, _ string) (models.Price, bool) {
	if v, ok := findNumeric(record, searchDepth); ok {
		return models.KnownPrice(v), true
	}
	return models.Price{}, false
}

// minPositive returns the smallest positive numeric value among a map's own
// values.
func minPositive(m map[string]any) (float64, bool) {
	best := 0.0
	found := false
	for _, v := range m {
		n, ok := models.CoerceNumber(v)
		if !ok || n <= 0 {
			continue
		}
		if !found || n < best {
			best = n
			found = true
		}
	}
	return best, found
}

// resolveRecord runs the matcher chain over one add-on record.
func resolveRecord(record map[string]any, sizeLabel string) models.ResolvedAddOn {
	out := models.ResolvedAddOn{
		Name:  models.StringField(record, "name"),
		ID:    models.StringField(record, "_id", "id"),
		Price: models.UnknownPrice(),
	}
	for _, match := range addOnMatchers {
		if p, ok := match(record, sizeLabel); ok {
			out.Price = p
			break
		}
	}
	return out
}

// normalizeAddOns resolves a raw add-on collection into canonical entries.
// Entries that are not objects are dropped; everything else is kept even
// when no price could be found.
func normalizeAddOns(list []any, sizeLabel string) []models.ResolvedAddOn {
	var out []models.ResolvedAddOn
	for _, el := range list {
		record, ok := el.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, resolveRecord(record, sizeLabel))
	}
	return out
}

// collectionFrom returns the first non-empty add-on collection found under
// the legacy field names.
func collectionFrom(raw map[string]any, fields []string) []any {
	for _, f := range fields {
		if list, ok := raw[f].([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

// ResolveAddOnsForSize produces the canonical add-on list for a product and
// an optional size selector (label or size id; empty means no size).
//
// Precedence:
//  1. A size record carrying its own add-on collection overrides the
//     product-level one entirely.
//  2. Otherwise the product-level collection is resolved per record.
//  3. Entries still unknown are enriched from the product-level price maps.
//  4. If no collection exists but a price map does, the list is synthesized
//     from the map's keys.
//  5. If the selected size declares add-ons that priced out to nothing, they
//     are still returned with unknown prices: absent add-ons and absent
//     pricing are distinct outcomes.
func ResolveAddOnsForSize(p models.Product, sizeSelector string) []models.ResolvedAddOn {
	if p.Raw == nil {
		return nil
	}

	size, haveSize := p.FindSize(sizeSelector)
	sizeLabel := sizeSelector
	if haveSize && size.Label != "" {
		sizeLabel = size.Label
	}

	// Size-scoped collection wins outright.
	if haveSize {
		if list := collectionFrom(size.Raw, []string{"toppings", "extras", "options"}); list != nil {
			if resolved := normalizeAddOns(list, sizeLabel); len(resolved) > 0 {
				return resolved
			}
		}
	}

	resolved := normalizeAddOns(collectionFrom(p.Raw, addOnCollectionFields), sizeLabel)

	if len(resolved) > 0 {
		return enrichFromPriceMaps(p.Raw, resolved, sizeLabel)
	}

	if synthesized := synthesizeFromPriceMaps(p.Raw, sizeLabel); len(synthesized) > 0 {
		return synthesized
	}

	// A size that declares add-ons with no price information still surfaces
	// them, priced unknown.
	if haveSize {
		if list, ok := size.Raw["toppings"].([]any); ok {
			return normalizeAddOns(list, sizeLabel)
		}
	}

	return resolved
}

// enrichFromPriceMaps fills unknown prices from the product-level price
// maps, checked by id then by name. Enrichment never downgrades a known
// price.
func enrichFromPriceMaps(raw map[string]any, addOns []models.ResolvedAddOn, sizeLabel string) []models.ResolvedAddOn {
	for i, a := range addOns {
		if a.Price.Known() {
			continue
		}
		for _, field := range productPriceMapFields {
			m, ok := raw[field].(map[string]any)
			if !ok {
				continue
			}
			if v, ok := lookupPriceMap(m, a.ID, a.Name, sizeLabel); ok {
				addOns[i].Price = models.KnownPrice(v)
				break
			}
		}
	}
	return addOns
}

// synthesizeFromPriceMaps builds an add-on list from the first product-level
// price map when the product declares no collection at all. Keys are sorted
// so the output order is stable.
func synthesizeFromPriceMaps(raw map[string]any, sizeLabel string) []models.ResolvedAddOn {
	for _, field := range productPriceMapFields {
		m, ok := raw[field].(map[string]any)
		if !ok || len(m) == 0 {
			continue
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)

		out := make([]models.ResolvedAddOn, 0, len(names))
		for _, name := range names {
			entry := models.ResolvedAddOn{Name: name, Price: models.UnknownPrice()}
			if v, ok := priceFromMapValue(m[name], sizeLabel); ok {
				entry.Price = models.KnownPrice(v)
			}
			out = append(out, entry)
		}
		return out
	}
	return nil
}

// lookupPriceMap reads a price for one add-on out of a product-level price
// map, trying its id then its name. When neither key hits, it falls back to
// the minimum positive value across the whole map, mirroring how admins
// sometimes store one shared price per product.
func lookupPriceMap(m map[string]any, id, name, sizeLabel string) (float64, bool) {
	for _, key := range []string{id, name} {
		if key == "" {
			continue
		}
		if v, ok := m[key]; ok && v != nil {
			if n, ok := priceFromMapValue(v, sizeLabel); ok {
				return n, true
			}
		}
	}
	best := 0.0
	found := false
	for _, v := range m {
		n, ok := priceFromMapValue(v, sizeLabel)
		if !ok || n <= 0 {
			continue
		}
		if !found || n < best {
			best = n
			found = true
		}
	}
	return best, found
}

// priceFromMapValue resolves one price-map value, which may be a number, a
// numeric string, or an object keyed by size label.
func priceFromMapValue(v any, sizeLabel string) (float64, bool) {
	if n, ok := models.CoerceNumber(v); ok {
		return n, true
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	if sizeLabel != "" {
		if sv, ok := obj[sizeLabel]; ok && sv != nil {
			if n, ok := models.CoerceNumber(sv); ok {
				return n, true
			}
		}
	}
	if dv, ok := obj["default"]; ok && dv != nil {
		if n, ok := models.CoerceNumber(dv); ok {
			return n, true
		}
	}
	return findNumeric(obj, searchDepth)
}
