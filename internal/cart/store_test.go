package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenfresh/cartkit/internal/api"
	"github.com/ovenfresh/cartkit/internal/credentials"
	"github.com/ovenfresh/cartkit/internal/models"
	"github.com/ovenfresh/cartkit/internal/storage/memory"
)

const testToken = "dev-token"

// fakeRemote is a minimal in-memory rendition of the remote cart contract.
type fakeRemote struct {
	t        *testing.T
	requests atomic.Int64

	// failAll makes every endpoint return the given status with an
	// invalid-token message when 401/403, or a plain failure otherwise.
	failStatus int

	// refuseDeletes makes delete and clear answer 200 with a
	// {success:false} body, the way services report "line not found".
	refuseDeletes bool

	lines  []models.CartLine
	nextID int
}

func (f *fakeRemote) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)

		if f.failStatus != 0 {
			w.WriteHeader(f.failStatus)
			if f.failStatus == http.StatusUnauthorized || f.failStatus == http.StatusForbidden {
				fmt.Fprint(w, `{"success":false,"message":"invalid token"}`)
			} else {
				fmt.Fprint(w, `{"success":false,"message":"backend exploded"}`)
			}
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false,"message":"invalid token"}`)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/cart":
			respond(w, f.lines)
		case r.Method == http.MethodPost && r.URL.Path == "/cart":
			var req api.AddRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				f.t.Errorf("bad add body: %v", err)
			}
			f.nextID++
			line := models.CartLine{
				ID:       fmt.Sprintf("srv-%d", f.nextID),
				Quantity: req.Quantity,
				Item:     models.ProductSnapshot{Product: models.Product{ID: req.ItemID}},
			}
			f.lines = append(f.lines, line)
			respond(w, line)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/cart/"):
			respond(w, nil)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/cart/"):
			if f.refuseDeletes {
				fmt.Fprint(w, `{"success":false,"message":"line not found"}`)
				return
			}
			respond(w, map[string]bool{"ok": true})
		case r.Method == http.MethodPost && r.URL.Path == "/cart/clear":
			if f.refuseDeletes {
				fmt.Fprint(w, `{"success":false,"message":"nothing to clear"}`)
				return
			}
			f.lines = nil
			respond(w, map[string]bool{"ok": true})
		default:
			http.NotFound(w, r)
		}
	})
}

func respond(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

// newTestStore wires a store over in-memory KV against the fake remote.
// Pass an empty token to start unauthenticated.
func newTestStore(t *testing.T, remote *fakeRemote, token string) (*Store, *memory.KVStore) {
	t.Helper()
	ctx := context.Background()
	kv := memory.New()
	creds := credentials.New(kv, nil)
	if token != "" {
		require.NoError(t, creds.Set(ctx, token))
	}

	var client *api.Client
	if remote != nil {
		srv := httptest.NewServer(remote.handler())
		t.Cleanup(srv.Close)
		client = api.NewClient(srv.URL, srv.Client())
	}

	return New(ctx, Options{KV: kv, Client: client, Credentials: creds}), kv
}

func testProduct(t *testing.T, raw string) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestStore_LocalOnlyAddAndRemove(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t}
	store, _ := newTestStore(t, remote, "") // no credential

	p := testProduct(t, `{"_id":"pizza-1","name":"Margherita",
		"sizes":[{"size":"9\"","basePrice":120}],
		"toppings":[{"name":"Cheese","price":30}]}`)

	id := store.Add(ctx, p, 1, `9"`, []string{"Cheese"})
	assert.True(t, IsLocalLineID(id))
	assert.Equal(t, 1, store.TotalItems())

	store.Remove(ctx, id)
	assert.Empty(t, store.Lines())
	assert.Equal(t, int64(0), remote.requests.Load(), "no network call may be attempted without a credential")
}

func TestStore_AddMergesIdenticalSelections(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil, "")

	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Cheese","prices":{"Large":3}}]}`)

	store.Add(ctx, p, 1, "Large", []string{"Cheese"})
	store.Add(ctx, p, 2, "Large", []string{"Cheese"})

	lines := store.Lines()
	require.Len(t, lines, 1, "identical selections must merge, not duplicate")
	assert.Equal(t, 3, lines[0].Quantity)
	assert.InDelta(t, 39.0, store.TotalAmount(), 0.001) // (10+3)*3
}

func TestStore_TotalAmountWorkedExample(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil, "")

	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Cheese","prices":{"Large":3}}]}`)
	store.Add(ctx, p, 2, "Large", []string{"Cheese"})

	assert.InDelta(t, 26.0, store.TotalAmount(), 0.001)
	assert.Equal(t, 2, store.TotalItems())
}

func TestStore_UnknownAddOnPriceCountsAsZero(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil, "")

	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Mystery","prices":{}}]}`)
	store.Add(ctx, p, 2, "", []string{"Mystery"})

	assert.InDelta(t, 20.0, store.TotalAmount(), 0.001)

	lines := store.Lines()
	require.Len(t, lines, 1)
	require.Len(t, lines[0].Item.ChosenAddOns, 1)
	assert.False(t, lines[0].Item.ChosenAddOns[0].Price.Known(), "uncertainty must stay observable")
}

func TestStore_RemoteAddAdoptsServerIdentity(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t}
	store, _ := newTestStore(t, remote, testToken)

	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Cheese","price":3}]}`)
	id := store.Add(ctx, p, 1, "", []string{"Cheese"})

	assert.Equal(t, "srv-1", id)
	assert.False(t, IsLocalLineID(id))

	lines := store.Lines()
	require.Len(t, lines, 1)
	// Client-side enrichment for consistent display.
	assert.InDelta(t, 10.0, lines[0].Item.BasePrice, 0.001)
	require.Len(t, lines[0].Item.ChosenAddOns, 1)
	assert.Equal(t, "Cheese", lines[0].Item.ChosenAddOns[0].Name)
	assert.InDelta(t, 13.0, store.TotalAmount(), 0.001)
}

func TestStore_AuthRejectedAddFallsBackLocally(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t, failStatus: http.StatusForbidden}
	store, kv := newTestStore(t, remote, testToken)

	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Cheese","price":3}]}`)
	id := store.Add(ctx, p, 1, "", []string{"Cheese"})

	// Credential cleared from storage.
	_, ok, err := kv.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.False(t, ok, "auth rejection must invalidate the stored credential")

	// The fallback line carries exactly the id the no-credential path
	// would have produced.
	sel := []models.ResolvedAddOn{{Name: "Cheese", Price: models.KnownPrice(3)}}
	assert.Equal(t, LocalLineID("pizza-1", "", sel), id)
	assert.Equal(t, 1, store.TotalItems())
}

func TestStore_TransportFailureKeepsCredentialAndFallsBack(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t, failStatus: http.StatusBadGateway}
	store, kv := newTestStore(t, remote, testToken)

	p := testProduct(t, `{"_id":"pizza-1","price":10}`)
	id := store.Add(ctx, p, 1, "", nil)

	assert.True(t, IsLocalLineID(id))
	assert.Equal(t, 1, store.TotalItems())

	_, ok, err := kv.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.True(t, ok, "transport failures must not invalidate the credential")
}

func TestStore_UpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("local line updates locally only", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, "")

		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		id := store.Add(ctx, p, 1, "", nil)
		store.UpdateQuantity(ctx, id, 5)

		assert.Equal(t, 5, store.TotalItems())
		assert.Equal(t, int64(0), remote.requests.Load())
	})

	t.Run("remote line keeps requested quantity on empty response", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, testToken)

		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		id := store.Add(ctx, p, 1, "", nil)
		store.UpdateQuantity(ctx, id, 4)

		assert.Equal(t, 4, store.TotalItems())
	})

	t.Run("remote failure still updates locally", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, kv := newTestStore(t, remote, testToken)

		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		id := store.Add(ctx, p, 1, "", nil)

		remote.failStatus = http.StatusUnauthorized
		store.UpdateQuantity(ctx, id, 9)

		assert.Equal(t, 9, store.TotalItems(), "UI must never be left stale")
		_, ok, _ := kv.Get(ctx, "authToken")
		assert.False(t, ok, "401 on update must invalidate the credential")
	})
}

func TestStore_RemoveAlwaysAppliesLocally(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t}
	store, _ := newTestStore(t, remote, testToken)

	p := testProduct(t, `{"_id":"pizza-1","price":10}`)
	id := store.Add(ctx, p, 1, "", nil)

	remote.failStatus = http.StatusServiceUnavailable
	store.Remove(ctx, id)

	assert.Empty(t, store.Lines(), "removal applies even when the remote outcome is unknown")
}

func TestStore_RefusedDeleteKeepsCredential(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{t: t}
	store, kv := newTestStore(t, remote, testToken)

	p := testProduct(t, `{"_id":"pizza-1","price":10}`)
	id := store.Add(ctx, p, 1, "", nil)

	remote.refuseDeletes = true
	store.Remove(ctx, id)

	// The line goes away locally either way; a "line not found" style
	// refusal is not an auth problem and must not log the user out.
	assert.Empty(t, store.Lines())
	_, ok, err := kv.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.True(t, ok, "refused delete must not invalidate the credential")

	store.Clear(ctx)
	_, ok, err = kv.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.True(t, ok, "refused clear must not invalidate the credential")
}

func TestStore_ClearWithAndWithoutCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("without credential", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, "")
		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		store.Add(ctx, p, 2, "", nil)

		store.Clear(ctx)
		assert.Empty(t, store.Lines())
		assert.Equal(t, int64(0), remote.requests.Load())
	})

	t.Run("remote failure still clears locally", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, testToken)
		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		store.Add(ctx, p, 2, "", nil)

		remote.failStatus = http.StatusBadGateway
		store.Clear(ctx)
		assert.Empty(t, store.Lines())
	})
}

func TestStore_Hydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces state wholesale", func(t *testing.T) {
		remote := &fakeRemote{t: t, lines: []models.CartLine{
			{ID: "srv-9", Quantity: 2, Item: models.ProductSnapshot{BasePrice: 50}},
		}}
		store, _ := newTestStore(t, remote, testToken)

		// Seed a diverged local line first.
		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		store.Add(ctx, p, 1, "", nil)

		require.NoError(t, store.Hydrate(ctx))

		lines := store.Lines()
		require.Len(t, lines, 1)
		assert.Equal(t, "srv-9", lines[0].ID)
		assert.Equal(t, 2, lines[0].Quantity)
	})

	t.Run("no credential is a no-op", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, "")
		require.NoError(t, store.Hydrate(ctx))
		assert.Equal(t, int64(0), remote.requests.Load())
	})

	t.Run("transport failure leaves local state untouched", func(t *testing.T) {
		remote := &fakeRemote{t: t}
		store, _ := newTestStore(t, remote, testToken)
		p := testProduct(t, `{"_id":"pizza-1","price":10}`)
		store.Add(ctx, p, 3, "", nil)

		remote.failStatus = http.StatusBadGateway
		assert.Error(t, store.Hydrate(ctx))
		assert.Equal(t, 3, store.TotalItems())
	})

	t.Run("auth rejection invalidates the credential", func(t *testing.T) {
		remote := &fakeRemote{t: t, failStatus: http.StatusUnauthorized}
		store, kv := newTestStore(t, remote, testToken)

		assert.Error(t, store.Hydrate(ctx))
		_, ok, _ := kv.Get(ctx, "authToken")
		assert.False(t, ok)
	})
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	creds := credentials.New(kv, nil)

	first := New(ctx, Options{KV: kv, Credentials: creds})
	p := testProduct(t, `{"_id":"pizza-1","price":10,"toppings":[{"name":"Cheese","price":3}]}`)
	first.Add(ctx, p, 2, "", []string{"Cheese"})

	// A second store over the same KV sees the persisted cart.
	second := New(ctx, Options{KV: kv, Credentials: creds})
	assert.Equal(t, 2, second.TotalItems())
	assert.InDelta(t, 26.0, second.TotalAmount(), 0.001)
}

func TestStore_ConcurrentAddsPersistFinalState(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t, nil, "")

	products := make([]models.Product, 8)
	for i := range products {
		products[i] = testProduct(t, fmt.Sprintf(`{"_id":"item-%d","price":%d}`, i, i+1))
	}

	var wg sync.WaitGroup
	for _, p := range products {
		wg.Add(1)
		go func(p models.Product) {
			defer wg.Done()
			store.Add(ctx, p, 1, "", nil)
		}(p)
	}
	wg.Wait()

	// Whatever order the transitions committed in, storage must hold the
	// snapshot of the last one, not a stale intermediate.
	raw, ok, err := kv.Get(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)

	want, err := json.Marshal(store.Lines())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), raw)
}

func TestStore_CorruptPersistedCartDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.Set(ctx, "cart", "{not json"))

	store := New(ctx, Options{KV: kv})
	assert.Empty(t, store.Lines())
	assert.Equal(t, 0, store.TotalItems())
}

func TestStore_SubscribeNotifiesAfterEveryTransition(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil, "")

	var notified int
	var last State
	unsubscribe := store.Subscribe(func(s State) {
		notified++
		last = s
	})

	p := testProduct(t, `{"_id":"pizza-1","price":10}`)
	store.Add(ctx, p, 1, "", nil)
	store.Clear(ctx)

	assert.Equal(t, 2, notified)
	assert.Empty(t, last)

	unsubscribe()
	store.Add(ctx, p, 1, "", nil)
	assert.Equal(t, 2, notified, "unsubscribed callbacks must not fire")
}
