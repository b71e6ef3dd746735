// Package cart holds the local-first cart state machine.
//
// State lives in a single ordered sequence of cart lines. Every operation is
// a dispatched action applied synchronously by a pure reducer; the remote
// service is consulted per operation, and any remote failure falls back to
// the exact local mutation the no-credential path uses. Hydration from the
// remote cart is the reconciliation point and replaces state wholesale.
package cart

import (
	"sort"
	"strings"

	"github.com/ovenfresh/cartkit/internal/models"
)

// State is the ordered cart line sequence. Insertion order is display order.
type State []models.CartLine

type actionType int

const (
	actionHydrate actionType = iota
	actionAdd
	actionUpdate
	actionRemove
	actionClear
)

// action is one state transition. Which fields are meaningful depends on the
// type.
type action struct {
	typ      actionType
	lines    []models.CartLine // hydrate: the replacement state
	line     models.CartLine   // add: the line to merge or append
	id       string            // update, remove
	quantity int               // update
}

// reduce applies one action to the state, returning a new state. It never
// mutates its input; lines are copied on write.
func reduce(s State, a action) State {
	switch a.typ {
	case actionHydrate:
		next := make(State, len(a.lines))
		copy(next, a.lines)
		return next

	case actionAdd:
		for i, line := range s {
			if line.ID != a.line.ID {
				continue
			}
			next := make(State, len(s))
			copy(next, s)
			next[i].Quantity = line.Quantity + a.line.Quantity
			return next
		}
		next := make(State, len(s), len(s)+1)
		copy(next, s)
		return append(next, a.line)

	case actionUpdate:
		next := make(State, len(s))
		copy(next, s)
		for i, line := range next {
			if line.ID == a.id {
				next[i].Quantity = a.quantity
			}
		}
		return next

	case actionRemove:
		next := make(State, 0, len(s))
		for _, line := range s {
			if line.ID != a.id {
				next = append(next, line)
			}
		}
		return next

	case actionClear:
		return State{}

	default:
		return s
	}
}

// localIDSeparator makes locally derived line ids recognizable. Remote ids
// never contain it.
const localIDSeparator = "::"

// LocalLineID derives the identifier for a cart line created without a
// remote-issued id. It is deterministic over the product id, the selected
// size, and the sorted add-on name/price pairs, so two adds of the same
// selection merge into one line instead of duplicating.
func LocalLineID(productID, selectedSize string, addOns []models.ResolvedAddOn) string {
	pairs := make([]string, len(addOns))
	for i, a := range addOns {
		pairs[i] = a.Name + ":" + a.Price.String()
	}
	sort.Strings(pairs)
	return productID + localIDSeparator + selectedSize + localIDSeparator + strings.Join(pairs, ",")
}

// IsLocalLineID reports whether a line id was derived locally rather than
// issued by the remote service.
func IsLocalLineID(id string) bool {
	return strings.Contains(id, localIDSeparator)
}
