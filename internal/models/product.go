package models

import (
	"encoding/json"
	"fmt"
)

// Product is a catalog record. The item service aggregates records authored
// by many admin tools over the years, so beyond the handful of fields every
// record carries, the shape is unpredictable: add-on collections and price
// maps hide under several legacy field names. The full decoded object is
// kept in Raw so resolution code can probe it.
type Product struct {
	// ID is the catalog identifier for the product.
	ID string

	// Name is the display name.
	Name string

	// Sizes are the declared size variants, in catalog order. Empty for
	// flat-priced products.
	Sizes []Size

	// Raw is the decoded JSON object this product was parsed from.
	Raw map[string]any
}

// Size is one size variant of a product. Both the label and the id are
// accepted as a size selector by the pricing code, since callers use them
// interchangeably.
type Size struct {
	// ID is the catalog identifier of the size record, if any.
	ID string

	// Label is the human-readable size (e.g. `9"`, "Large").
	Label string

	// BasePrice is the unit price for this size before add-ons.
	BasePrice float64

	// Raw is the decoded JSON object for this size record. Size records may
	// carry their own add-on collection, which overrides the product-level
	// one.
	Raw map[string]any
}

// UnmarshalJSON decodes a catalog record, populating the typed fields and
// retaining the raw object.
func (p *Product) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("failed to decode product: %w", err)
	}
	*p = ProductFromRaw(raw)
	return nil
}

// MarshalJSON re-encodes the raw object, so unrecognized legacy fields
// survive a persistence round trip.
func (p Product) MarshalJSON() ([]byte, error) {
	if p.Raw != nil {
		return json.Marshal(p.Raw)
	}
	out := map[string]any{"_id": p.ID, "name": p.Name}
	return json.Marshal(out)
}

// ProductFromRaw builds a Product view over an already-decoded JSON object.
func ProductFromRaw(raw map[string]any) Product {
	p := Product{
		ID:   StringField(raw, "_id", "id"),
		Name: StringField(raw, "name"),
		Raw:  raw,
	}
	sizes, _ := raw["sizes"].([]any)
	for _, s := range sizes {
		sm, ok := s.(map[string]any)
		if !ok {
			continue
		}
		base, _ := CoerceNumber(sm["basePrice"])
		p.Sizes = append(p.Sizes, Size{
			ID:        StringField(sm, "_id", "id"),
			Label:     StringField(sm, "size", "label"),
			BasePrice: base,
			Raw:       sm,
		})
	}
	return p
}

// FindSize locates a size variant by label or id.
func (p Product) FindSize(selector string) (Size, bool) {
	if selector == "" {
		return Size{}, false
	}
	for _, s := range p.Sizes {
		if s.Label == selector || (s.ID != "" && s.ID == selector) {
			return s, true
		}
	}
	return Size{}, false
}

// StringField reads the first present key from a decoded JSON object as a
// string. Numeric ids are rendered rather than dropped.
func StringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case float64, int, int64, json.Number, bool:
			return fmt.Sprint(s)
		}
	}
	return ""
}
