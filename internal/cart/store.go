package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ovenfresh/cartkit/internal/api"
	"github.com/ovenfresh/cartkit/internal/credentials"
	"github.com/ovenfresh/cartkit/internal/metrics"
	"github.com/ovenfresh/cartkit/internal/models"
	"github.com/ovenfresh/cartkit/internal/pricing"
	"github.com/ovenfresh/cartkit/internal/storage"
)

// cartKey is the storage key the serialized cart lives under.
const cartKey = "cart"

// Store is the cart state machine. It owns the line sequence exclusively;
// callers read derived aggregates and dispatch operations, never mutate
// lines directly.
//
// Every operation applies its state transition synchronously and persists
// the result as its final step. Operations that consult the remote service
// do so outside the state lock, so two operations on different lines may
// have remote calls outstanding concurrently; their continuations apply to
// the state current at completion time. None of the failures here are
// fatal: the user-visible outcome of an operation is the same whether the
// remote path succeeded or the local fallback ran.
type Store struct {
	kv     storage.KV
	creds  *credentials.Store
	client *api.Client
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int

	// persistMu is acquired before mu is released, so snapshots reach
	// storage in commit order.
	persistMu sync.Mutex
}

// Options configures a Store. KV is required; Client and Credentials may be
// nil for a purely local cart (every operation then takes the local path).
type Options struct {
	KV          storage.KV
	Client      *api.Client
	Credentials *credentials.Store
	Logger      *slog.Logger
}

// New creates a Store, synchronously loading any persisted cart. A corrupt
// or unreadable stored cart degrades to an empty one.
func New(ctx context.Context, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:     opts.KV,
		creds:  opts.Credentials,
		client: opts.Client,
		logger: logger,
		state:  State{},
		subs:   make(map[int]func(State)),
	}

	raw, ok, err := opts.KV.Get(ctx, cartKey)
	if err != nil {
		logger.Warn("failed to read persisted cart, starting empty", "error", err)
		return s
	}
	if !ok {
		return s
	}
	var lines State
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		logger.Warn("persisted cart is corrupt, starting empty", "error", err)
		return s
	}
	s.state = lines
	return s
}

// token returns the stored credential, if the store has a credential source
// and a remote client at all.
func (s *Store) token(ctx context.Context) (string, bool) {
	if s.creds == nil || s.client == nil {
		return "", false
	}
	return s.creds.Token(ctx)
}

// invalidateOnAuthFailure drops the credential if the error is auth-class.
func (s *Store) invalidateOnAuthFailure(ctx context.Context, err error) {
	if !api.IsAuthRejection(err) {
		return
	}
	s.creds.Invalidate(ctx)
	metrics.CredentialInvalidations.Inc()
}

// dispatch applies an action, persists the result, and notifies
// subscribers. The persistence lock is taken before the state lock is
// released, so concurrent transitions persist in the order they committed
// and storage always ends up holding the latest snapshot. Subscribers run
// outside both locks with their own copy of the state.
func (s *Store) dispatch(ctx context.Context, a action) {
	s.mu.Lock()
	s.state = reduce(s.state, a)
	snapshot := make(State, len(s.state))
	copy(snapshot, s.state)
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.persistMu.Lock()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	s.persistMu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// persist writes the state to storage. Persistence failure is degraded, not
// fatal: the in-memory cart stays authoritative for this process.
func (s *Store) persist(ctx context.Context, state State) {
	encoded, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to encode cart for persistence", "error", err)
		return
	}
	if err := s.kv.Set(ctx, cartKey, string(encoded)); err != nil {
		s.logger.Warn("failed to persist cart", "error", err)
	}
}

// Hydrate replaces the whole cart with the remote snapshot. Without a
// credential it is a no-op. On failure the local state is left untouched;
// an auth-rejection additionally invalidates the stored credential.
func (s *Store) Hydrate(ctx context.Context) error {
	token, ok := s.token(ctx)
	if !ok {
		return nil
	}

	lines, err := s.client.FetchCart(ctx, token)
	if err != nil {
		s.invalidateOnAuthFailure(ctx, err)
		metrics.Hydrations.WithLabelValues(api.FailureClass(err)).Inc()
		s.logger.Warn("cart hydration failed, keeping local cart", "error", err)
		return err
	}

	metrics.Hydrations.WithLabelValues("ok").Inc()
	s.dispatch(ctx, action{typ: actionHydrate, lines: lines})
	return nil
}

// Add puts a product selection in the cart and returns the resulting line
// id. With a credential it attempts the remote add and adopts the
// server-issued line; on any failure, or with no credential, it applies the
// identical local mutation with a derived id. Two adds of the same
// product+size+add-on selection merge into one line.
func (s *Store) Add(ctx context.Context, product models.Product, quantity int, selectedSize string, addOnIDs []string) string {
	sel := pricing.PriceSelection(product, selectedSize, addOnIDs)
	snapshot := models.ProductSnapshot{
		Product:      product,
		SelectedSize: selectedSize,
		BasePrice:    sel.UnitBase,
		ChosenAddOns: sel.AddOns,
	}

	token, ok := s.token(ctx)
	if !ok {
		return s.localAdd(ctx, snapshot, quantity)
	}

	returned, err := s.client.AddLine(ctx, token, api.AddRequest{
		ItemID:   product.ID,
		Quantity: quantity,
		Size:     selectedSize,
		AddOnIDs: addOnIDs,
	})
	if err != nil || returned.ID == "" {
		if err != nil {
			s.invalidateOnAuthFailure(ctx, err)
			metrics.RemoteFailures.WithLabelValues("add", api.FailureClass(err)).Inc()
			s.logger.Warn("remote add failed, falling back to local cart", "item", product.ID, "error", err)
		} else {
			s.logger.Warn("remote add returned a line without an id, falling back to local cart", "item", product.ID)
		}
		return s.localAdd(ctx, snapshot, quantity)
	}

	// The service is not assumed to echo the selection; enrich the returned
	// line so it renders identically to a local one.
	line := *returned
	line.Item.SelectedSize = snapshot.SelectedSize
	line.Item.BasePrice = snapshot.BasePrice
	line.Item.ChosenAddOns = snapshot.ChosenAddOns
	if line.Item.Product.Raw == nil {
		line.Item.Product = product
	}
	if line.Quantity <= 0 {
		line.Quantity = quantity
	}

	s.dispatch(ctx, action{typ: actionAdd, line: line})
	return line.ID
}

// localAdd is the shared local mutation both the no-credential path and
// every remote-failure fallback converge on.
func (s *Store) localAdd(ctx context.Context, snapshot models.ProductSnapshot, quantity int) string {
	id := LocalLineID(snapshot.Product.ID, snapshot.SelectedSize, snapshot.ChosenAddOns)
	metrics.LocalFallbacks.WithLabelValues("add").Inc()
	s.dispatch(ctx, action{typ: actionAdd, line: models.CartLine{
		ID:       id,
		Item:     snapshot,
		Quantity: quantity,
	}})
	return id
}

// UpdateQuantity sets a line's quantity. Locally derived lines, and all
// lines when no credential is present, update locally only. Otherwise the
// remote update is attempted first, but the local update is applied even if
// it fails, so the UI is never left stale.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) {
	token, ok := s.token(ctx)
	if IsLocalLineID(lineID) || !ok {
		metrics.LocalFallbacks.WithLabelValues("update").Inc()
		s.dispatch(ctx, action{typ: actionUpdate, id: lineID, quantity: quantity})
		return
	}

	returned, err := s.client.UpdateLine(ctx, token, lineID, quantity)
	if err != nil {
		s.invalidateOnAuthFailure(ctx, err)
		metrics.RemoteFailures.WithLabelValues("update", api.FailureClass(err)).Inc()
		s.logger.Warn("remote update failed, updating locally", "line", lineID, "error", err)
		s.dispatch(ctx, action{typ: actionUpdate, id: lineID, quantity: quantity})
		return
	}

	applied := quantity
	if returned != nil && returned.Quantity > 0 {
		applied = returned.Quantity
	}
	s.dispatch(ctx, action{typ: actionUpdate, id: lineID, quantity: applied})
}

// Remove deletes a line. For remote lines the delete call is attempted
// first, but the line is removed locally regardless of its outcome;
// re-hydration corrects any divergence.
func (s *Store) Remove(ctx context.Context, lineID string) {
	token, ok := s.token(ctx)
	if !IsLocalLineID(lineID) && ok {
		if err := s.client.DeleteLine(ctx, token, lineID); err != nil {
			s.invalidateOnAuthFailure(ctx, err)
			metrics.RemoteFailures.WithLabelValues("remove", api.FailureClass(err)).Inc()
			s.logger.Warn("remote remove failed, removing locally", "line", lineID, "error", err)
		}
	}
	s.dispatch(ctx, action{typ: actionRemove, id: lineID})
}

// Clear empties the cart. With a credential the remote clear is attempted
// first; the local clear applies regardless of its outcome.
func (s *Store) Clear(ctx context.Context) {
	if token, ok := s.token(ctx); ok {
		if err := s.client.ClearCart(ctx, token); err != nil {
			s.invalidateOnAuthFailure(ctx, err)
			metrics.RemoteFailures.WithLabelValues("clear", api.FailureClass(err)).Inc()
			s.logger.Warn("remote clear failed, clearing locally", "error", err)
		}
	}
	s.dispatch(ctx, action{typ: actionClear})
}

// Lines returns a copy of the current cart lines in display order.
func (s *Store) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CartLine, len(s.state))
	copy(out, s.state)
	return out
}

// TotalItems is the sum of line quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, line := range s.state {
		total += line.Quantity
	}
	return total
}

// TotalAmount is the sum over lines of unit price times quantity. Unknown
// add-on prices contribute zero; the uncertainty stays observable on the
// lines themselves.
func (s *Store) TotalAmount() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, line := range s.state {
		total += line.UnitPrice() * float64(line.Quantity)
	}
	return total
}

// Subscribe registers a callback invoked with a copy of the state after
// every committed transition. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
