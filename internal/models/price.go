package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Price is a resolved monetary value. It is either a known finite
// non-negative amount or explicitly unknown. Unknown is distinct from zero:
// an unknown price contributes nothing to totals but still flags the
// selection as uncertainly priced.
type Price struct {
	value float64
	known bool
}

// KnownPrice returns a known price. Non-finite or negative inputs degrade to
// an unknown price rather than corrupting downstream arithmetic.
func KnownPrice(v float64) Price {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Price{}
	}
	return Price{value: v, known: true}
}

// UnknownPrice returns the explicit unknown marker.
func UnknownPrice() Price {
	return Price{}
}

// Known reports whether the price resolved to a definite value.
func (p Price) Known() bool {
	return p.known
}

// Value returns the amount and whether it is known.
func (p Price) Value() (float64, bool) {
	return p.value, p.known
}

// OrZero returns the amount, treating unknown as 0. This is the arithmetic
// used by cart totals.
func (p Price) OrZero() float64 {
	if !p.known {
		return 0
	}
	return p.value
}

// String renders the amount, or "?" when unknown. Used when deriving local
// cart line identifiers, so the rendering must be deterministic.
func (p Price) String() string {
	if !p.known {
		return "?"
	}
	return strconv.FormatFloat(p.value, 'f', -1, 64)
}

// MarshalJSON encodes a known price as a number and an unknown price as
// null, matching the wire shape persisted carts and the remote service use.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.known {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number, a numeric string, or null.
func (p *Price) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = UnknownPrice()
		return nil
	}
	if v, ok := CoerceNumber(raw); ok {
		*p = KnownPrice(v)
		return nil
	}
	*p = UnknownPrice()
	return nil
}

// CoerceNumber converts a decoded JSON value to a finite float64. Numeric
// strings are accepted because legacy catalog records store prices both
// ways. Returns false for anything else, including NaN and infinities.
func CoerceNumber(x any) (float64, bool) {
	switch v := x.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
