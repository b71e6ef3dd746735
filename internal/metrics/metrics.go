// Package metrics exposes Prometheus counters for the cart's degraded
// paths. The local-first design makes remote failures invisible to the user,
// so these counters are the only place that divergence shows up.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteFailures counts failed remote cart calls by operation and
	// failure class ("auth" or "transport").
	RemoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartkit_remote_failures_total",
		Help: "Remote cart operations that failed and triggered a local fallback.",
	}, []string{"op", "class"})

	// LocalFallbacks counts operations applied through the local-only
	// mutation path, whether by choice (no credential) or after a remote
	// failure.
	LocalFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartkit_local_fallbacks_total",
		Help: "Cart operations applied locally without remote confirmation.",
	}, []string{"op"})

	// Hydrations counts remote cart hydration attempts by outcome
	// ("ok", "auth", "transport").
	Hydrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartkit_hydrations_total",
		Help: "Remote cart hydration attempts by outcome.",
	}, []string{"outcome"})

	// CredentialInvalidations counts how often a stored credential was
	// dropped after an auth-class rejection or a local expiry check.
	CredentialInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartkit_credential_invalidations_total",
		Help: "Stored credentials invalidated after rejection or expiry.",
	})
)
