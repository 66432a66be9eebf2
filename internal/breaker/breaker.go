// Package breaker implements the per-account circuit breaker: a rolling
// failure window that trips to Open on repeated 5xx/timeout failures,
// cools down, and probes its way back to Closed through a single
// HalfOpen request.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker's current phase for one account.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config tunes the breaker; zero value falls back to DefaultConfig.
type Config struct {
	FailureThreshold int           // failures within Window to trip Open
	Window           time.Duration // rolling failure window
	Cooldown         time.Duration // base Open duration
	MaxCooldown      time.Duration // cap on doubled cooldown
}

// DefaultConfig: 5 failures in 30s trip the breaker, 30s cooldown
// doubling up to a cap.
var DefaultConfig = Config{
	FailureThreshold: 5,
	Window:           30 * time.Second,
	Cooldown:         30 * time.Second,
	MaxCooldown:      10 * time.Minute,
}

type account struct {
	mu sync.Mutex

	state        State
	failures     []time.Time
	until        time.Time // valid while state == Open
	cooldown     time.Duration
	halfOpenBusy bool // true while a single HalfOpen probe is inflight
}

// Breaker tracks circuit state for every account by ID.
type Breaker struct {
	cfg      Config
	accounts sync.Map // string -> *account
}

// New constructs a Breaker. A zero Config uses DefaultConfig.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg = DefaultConfig
	}
	return &Breaker{cfg: cfg}
}

func (b *Breaker) account(id string) *account {
	if v, ok := b.accounts.Load(id); ok {
		return v.(*account)
	}
	a := &account{cooldown: b.cfg.Cooldown}
	actual, _ := b.accounts.LoadOrStore(id, a)
	return actual.(*account)
}

// Allow reports whether a request may currently be dispatched to id, and
// transitions Open→HalfOpen when the cooldown has elapsed. At most one
// HalfOpen probe is allowed inflight at a time; callers that get false from
// Allow while already HalfOpen must skip this account just as when Open.
func (b *Breaker) Allow(id string) bool {
	a := b.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case Closed:
		return true
	case Open:
		if time.Now().Before(a.until) {
			return false
		}
		a.state = HalfOpen
		a.halfOpenBusy = true
		return true
	case HalfOpen:
		// Only the probe that flipped us into HalfOpen may proceed;
		// everyone else waits for a verdict.
		return false
	default:
		return false
	}
}

// IsOpen reports the current Open/HalfOpen-busy gating state without
// mutating anything, for selection filters that just want a yes/no.
func (b *Breaker) IsOpen(id string) bool {
	a := b.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Open {
		return time.Now().Before(a.until)
	}
	if a.state == HalfOpen {
		return a.halfOpenBusy
	}
	return false
}

// State returns the current phase for id.
func (b *Breaker) State(id string) State {
	a := b.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RecordSuccess closes the circuit. If called while HalfOpen it resolves
// the single outstanding probe and resets the failure window and cooldown.
func (b *Breaker) RecordSuccess(id string) {
	a := b.account(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Closed
	a.failures = nil
	a.cooldown = b.cfg.Cooldown
	a.halfOpenBusy = false
}

// RecordFailure registers a failure. From Closed, enough failures within
// Window trips Open. From HalfOpen, any failure reopens and doubles the
// cooldown (capped at MaxCooldown).
func (b *Breaker) RecordFailure(id string) {
	a := b.account(id)
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case HalfOpen:
		a.cooldown *= 2
		if a.cooldown > b.cfg.MaxCooldown {
			a.cooldown = b.cfg.MaxCooldown
		}
		a.state = Open
		a.until = now.Add(a.cooldown)
		a.halfOpenBusy = false
		a.failures = nil
		return
	case Open:
		return
	}

	cutoff := now.Add(-b.cfg.Window)
	kept := a.failures[:0]
	for _, ts := range a.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	a.failures = append(kept, now)

	if len(a.failures) >= b.cfg.FailureThreshold {
		a.state = Open
		a.until = now.Add(a.cooldown)
		a.failures = nil
	}
}
