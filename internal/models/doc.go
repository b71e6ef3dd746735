// Package models defines the core domain models for cartkit.
//
// # Models
//
//   - Product: a catalog record as received from the item service, keeping
//     both the typed fields the core reads directly and the raw decoded JSON
//     object, since catalog records are authored inconsistently
//   - Size: one size variant of a product
//   - Price: a resolved monetary value that is either known or explicitly
//     unknown (never NaN, never a raw unparsed value)
//   - ResolvedAddOn: a canonical add-on entry produced by price resolution
//   - ProductSnapshot: an immutable copy of a product enriched with the
//     user's selection, stored inside a cart line
//   - CartLine: one line of the cart
//
// # Design Principles
//
// 1. **Tolerant decoding**: Product keeps the raw JSON object so resolution
// code can probe legacy field names without the model enumerating them
// 2. **Explicit unknowns**: Price is a tagged value, so "no price found" can
// never be confused with "free"
// 3. **Wire compatibility**: CartLine and ProductSnapshot marshal to the same
// JSON shape the remote cart service and local persistence use
package models
