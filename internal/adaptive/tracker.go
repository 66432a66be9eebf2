// Package adaptive implements the per-account AIMD (additive-increase,
// multiplicative-decrease) rate tracker the request pipeline consults
// before and after every upstream call. The inflight counter is atomic;
// limit updates take a short per-account lock.
package adaptive

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultLimit is the starting ceiling on inflight requests per account.
	DefaultLimit = 4.0
	// DefaultAdditiveStep is added to Limit by Grow.
	DefaultAdditiveStep = 1.0
	// DefaultMultiplicativeFactor shrinks Limit on a 429.
	DefaultMultiplicativeFactor = 0.5
	// MinLimit is the floor Limit can never drop below.
	MinLimit = 1.0
	// ForceExpandFactor is applied by ForceExpand after a successful probe.
	ForceExpandFactor = 1.5
)

// Window holds the AIMD state for a single account. Zero value is not
// usable; construct via NewWindow.
type Window struct {
	inflight atomic.Int32

	mu                   sync.Mutex
	limit                float64
	additiveStep         float64
	multiplicativeFactor float64
	lastSuccess          time.Time
	last429              time.Time
}

// NewWindow constructs a Window with the package defaults.
func NewWindow() *Window {
	return &Window{
		limit:                DefaultLimit,
		additiveStep:         DefaultAdditiveStep,
		multiplicativeFactor: DefaultMultiplicativeFactor,
	}
}

// Tracker owns one Window per account. Accounts are never removed; a
// deleted credential's window is simply never consulted again.
type Tracker struct {
	windows sync.Map // string -> *Window
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) window(accountID string) *Window {
	if v, ok := t.windows.Load(accountID); ok {
		return v.(*Window)
	}
	w := NewWindow()
	actual, _ := t.windows.LoadOrStore(accountID, w)
	return actual.(*Window)
}

// BeginRequest increments inflight before dispatch. Callers must pair every
// BeginRequest with exactly one terminal call (RecordSuccess,
// RecordRateLimited, or RecordError) — see EndOnce for a cancellation-safe
// helper that makes this idempotent under hedging.
func (t *Tracker) BeginRequest(accountID string) {
	t.window(accountID).inflight.Add(1)
}

// release decrements inflight, floored at zero, so a terminal call that
// was never paired with a BeginRequest cannot drive the counter
// permanently negative.
func (w *Window) release() {
	if w.inflight.Add(-1) < 0 {
		w.inflight.Store(0)
	}
}

// RecordSuccess decrements inflight and returns the window's current usage
// ratio (computed after the decrement) so callers can hand it to the
// prober. Limit is not changed here — growth only happens via ForceExpand
// after a cheap probe succeeds, or via Grow (spec's AIMD rule: limit grows only via
// additive step applied deliberately, not on every success).
func (t *Tracker) RecordSuccess(accountID string) float64 {
	w := t.window(accountID)
	w.release()
	w.mu.Lock()
	w.lastSuccess = time.Now()
	w.mu.Unlock()
	return t.UsageRatio(accountID)
}

// RecordRateLimited applies the multiplicative decrease: Limit is halved
// (by multiplicativeFactor), floored at MinLimit, and last429 is recorded.
func (t *Tracker) RecordRateLimited(accountID string) {
	w := t.window(accountID)
	w.release()
	w.mu.Lock()
	w.limit = w.limit * w.multiplicativeFactor
	if w.limit < MinLimit {
		w.limit = MinLimit
	}
	w.last429 = time.Now()
	w.mu.Unlock()
}

// RecordError decrements inflight without touching Limit, for non-429
// upstream failures.
func (t *Tracker) RecordError(accountID string) {
	t.window(accountID).release()
}

// ForceExpand is called after a successful cheap probe raises confidence
// that the account's true limit is higher than currently tracked.
func (t *Tracker) ForceExpand(accountID string) {
	w := t.window(accountID)
	w.mu.Lock()
	w.limit *= ForceExpandFactor
	w.mu.Unlock()
}

// Grow applies the additive-increase step directly (used by callers that
// want the plain AIMD growth rule rather than the probe-triggered
// ForceExpand multiplier).
func (t *Tracker) Grow(accountID string) {
	w := t.window(accountID)
	w.mu.Lock()
	w.limit += w.additiveStep
	w.mu.Unlock()
}

// UsageRatio returns inflight/limit, clamped to [0, +inf).
func (t *Tracker) UsageRatio(accountID string) float64 {
	w := t.window(accountID)
	inflight := float64(w.inflight.Load())
	w.mu.Lock()
	limit := w.limit
	w.mu.Unlock()
	if limit <= 0 {
		limit = MinLimit
	}
	ratio := inflight / limit
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// Limit returns the current ceiling for the account.
func (t *Tracker) Limit(accountID string) float64 {
	w := t.window(accountID)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.limit
}

// Inflight returns the current inflight count for the account.
func (t *Tracker) Inflight(accountID string) int32 {
	return t.window(accountID).inflight.Load()
}

// EndOnce returns a function that releases the account's inflight slot the
// first time it is called and is a no-op on subsequent calls, so a hedge
// leg's cancellation and its terminal outcome can both call it safely.
func (t *Tracker) EndOnce(accountID string) func(rateLimited bool) {
	var done atomic.Bool
	return func(rateLimited bool) {
		if !done.CompareAndSwap(false, true) {
			return
		}
		if rateLimited {
			t.RecordRateLimited(accountID)
		} else {
			t.RecordError(accountID)
		}
	}
}
