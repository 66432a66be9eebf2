// Package sticky binds a client fingerprint to the account that served it,
// so follow-up turns in the same conversation land on the same credential
// (keeping prompt caches warm upstream) for as long as the binding's TTL
// holds.
package sticky

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bindingsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "relaymux_sticky_bindings",
	Help: "Live sticky-session bindings.",
})

type binding struct {
	accountID string
	expires   time.Time
}

// Table holds fingerprint -> account bindings with a shared TTL.
type Table struct {
	ttl time.Duration

	mu       sync.RWMutex
	bindings map[string]binding
}

// New constructs a Table with the given binding TTL.
func New(ttl time.Duration) *Table {
	return &Table{
		ttl:      ttl,
		bindings: make(map[string]binding),
	}
}

// Bind records that fingerprint should route to accountID until the TTL
// elapses, refreshing the expiry on every call (so an active conversation
// never loses its binding mid-stream).
func (t *Table) Bind(fingerprint, accountID string) {
	if fingerprint == "" || accountID == "" {
		return
	}
	t.mu.Lock()
	t.bindings[fingerprint] = binding{accountID: accountID, expires: time.Now().Add(t.ttl)}
	size := len(t.bindings)
	t.mu.Unlock()
	bindingsGauge.Set(float64(size))
}

// Lookup returns the bound account for fingerprint, if any and unexpired.
func (t *Table) Lookup(fingerprint string) (string, bool) {
	if fingerprint == "" {
		return "", false
	}
	t.mu.RLock()
	b, ok := t.bindings[fingerprint]
	t.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(b.expires) {
		t.mu.Lock()
		delete(t.bindings, fingerprint)
		size := len(t.bindings)
		t.mu.Unlock()
		bindingsGauge.Set(float64(size))
		return "", false
	}
	return b.accountID, true
}

// Unbind removes fingerprint's binding immediately, regardless of TTL, so
// the next request for that fingerprint is free to bind to another
// account.
func (t *Table) Unbind(fingerprint string) {
	t.mu.Lock()
	delete(t.bindings, fingerprint)
	size := len(t.bindings)
	t.mu.Unlock()
	bindingsGauge.Set(float64(size))
}

// UnbindAccount clears every fingerprint currently bound to accountID.
// Token refresh does NOT call this — bindings are keyed by account id,
// not token, so a refresh never scatters a live conversation across
// accounts. The pipeline calls it on a 401/403 (the quarantine path); an
// account whose circuit opens keeps its bindings, and selection replaces
// a binding whose account is not eligible.
func (t *Table) UnbindAccount(accountID string) {
	t.mu.Lock()
	for fp, b := range t.bindings {
		if b.accountID == accountID {
			delete(t.bindings, fp)
		}
	}
	size := len(t.bindings)
	t.mu.Unlock()
	bindingsGauge.Set(float64(size))
}

// Size returns the current number of live bindings (expired entries
// included until their next Lookup prunes them).
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}
