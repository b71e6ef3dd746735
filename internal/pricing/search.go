// Package pricing resolves monetary values out of inconsistently-authored
// catalog records.
//
// Add-on prices arrive in half a dozen shapes: a flat price field, a list of
// per-size entries, a map keyed by size label, a product-level price map, or
// nested arbitrarily inside the record. Resolution runs an ordered list of
// shape matchers per record; the first matching shape wins. Every record
// yields either a definite price or the explicit unknown marker, never an
// error and never NaN.
package pricing

import (
	"sort"

	"github.com/ovenfresh/cartkit/internal/models"
)

// searchDepth bounds the structural search so a pathological record cannot
// send resolution crawling through unrelated data.
const searchDepth = 2

// commonPriceKeys are probed first during structural search, in order.
var commonPriceKeys = []string{"price", "amount", "cost", "value", "rate", "default"}

// findNumeric searches a decoded JSON value for the first positive numeric
// value. depth bounds descent into containers; a scalar is always inspected.
// Keys commonly used for prices are probed before the rest; remaining keys
// are visited in sorted order so resolution is deterministic regardless of
// map iteration order.
func findNumeric(obj any, depth int) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	if v, ok := models.CoerceNumber(obj); ok {
		if v > 0 {
			return v, true
		}
		return 0, false
	}
	if depth <= 0 {
		return 0, false
	}
	switch t := obj.(type) {
	case []any:
		for _, el := range t {
			if v, ok := findNumeric(el, depth-1); ok {
				return v, true
			}
		}
	case map[string]any:
		for _, k := range commonPriceKeys {
			if child, ok := t[k]; ok {
				if v, ok := findNumeric(child, depth-1); ok {
					return v, true
				}
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v, ok := findNumeric(t[k], depth-1); ok {
				return v, true
			}
		}
	}
	return 0, false
}
