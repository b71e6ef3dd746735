// Package credentials persists the auth token the cart core presents to the
// remote service. The core never issues tokens; it only reacts to their
// presence, absence, or invalidation.
package credentials

import (
	"context"
	"log/slog"
	"time"

	"github.com/ovenfresh/cartkit/internal/auth"
	"github.com/ovenfresh/cartkit/internal/storage"
)

// tokenKey is the storage key the token lives under, shared with whatever
// login flow wrote it.
const tokenKey = "authToken"

// Store reads and invalidates the persisted credential token.
type Store struct {
	kv     storage.KV
	logger *slog.Logger
	now    func() time.Time
}

// New creates a credential store over the given KV backend.
func New(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// Token returns the stored credential. A token that is locally known to be
// expired is invalidated and reported absent: an expired credential must
// behave exactly like a missing one, just without the wasted round-trip.
// Storage errors also report absent, since every caller treats a missing
// credential as the degraded-but-fine path.
func (s *Store) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.kv.Get(ctx, tokenKey)
	if err != nil {
		s.logger.Warn("credential read failed, treating as absent", "error", err)
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	if auth.Expired(token, s.now()) {
		s.logger.Info("stored credential expired, invalidating")
		s.Invalidate(ctx)
		return "", false
	}
	return token, true
}

// Set stores a credential token.
func (s *Store) Set(ctx context.Context, token string) error {
	return s.kv.Set(ctx, tokenKey, token)
}

// Invalidate removes the stored credential. Called when the remote service
// rejects the token; failure to remove only means the next operation will
// get rejected again, so it is logged and swallowed.
func (s *Store) Invalidate(ctx context.Context) {
	if err := s.kv.Remove(ctx, tokenKey); err != nil {
		s.logger.Warn("credential invalidation failed", "error", err)
	}
}
