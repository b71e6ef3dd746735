package models

// ResolvedAddOn is a canonical add-on entry produced by price resolution.
// Every add-on reachable from a catalog record yields exactly one of these;
// resolution never drops an add-on because its price could not be found.
type ResolvedAddOn struct {
	// Name is the add-on's display name. May be empty for badly authored
	// records.
	Name string `json:"name"`

	// ID is the catalog identifier, when the record carries one.
	ID string `json:"_id,omitempty"`

	// Price is the resolved price: a definite amount or explicitly unknown.
	Price Price `json:"price"`
}

// ProductSnapshot is the immutable copy of a product stored inside a cart
// line, enriched with the user's selection so the line renders consistently
// even if the catalog record changes later.
type ProductSnapshot struct {
	Product Product `json:"product"`

	// SelectedSize is the size selector chosen at add time, empty if none.
	SelectedSize string `json:"selectedSize,omitempty"`

	// BasePrice is the resolved per-unit base price for the selection.
	BasePrice float64 `json:"basePrice"`

	// ChosenAddOns are the selected add-ons with their resolved prices.
	ChosenAddOns []ResolvedAddOn `json:"chosenAddOns,omitempty"`
}

// CartLine is one line of the cart.
//
// ID is either a remote-issued identifier (the line exists in the remote
// cart) or a locally derived one, synthesized from the product id, selected
// size, and sorted add-on name/price pairs. Locally derived ids contain
// "::" and are never sent to the remote service.
type CartLine struct {
	ID       string          `json:"_id"`
	Item     ProductSnapshot `json:"item"`
	Quantity int             `json:"quantity"`
}

// UnitPrice is the per-unit price of the line: base price plus the known
// add-on prices. Unknown add-on prices contribute zero.
func (l CartLine) UnitPrice() float64 {
	total := l.Item.BasePrice
	for _, a := range l.Item.ChosenAddOns {
		total += a.Price.OrZero()
	}
	return total
}
