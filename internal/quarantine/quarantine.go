// Package quarantine tracks auth-failure health separately from a
// credential's identity, per the arena-storage rule that Credential must
// not hold back-pointers to derived runtime state. The 401/403 thresholds
// and temporary quarantine windows live in its own keyed map instead of on
// the Credential struct, and ClearOnQuotaRefresh ends a quarantine early.
package quarantine

import (
	"sync"
	"time"
)

// Config tunes quarantine thresholds.
type Config struct {
	Threshold401 int           // consecutive 401s before quarantine
	Threshold403 int           // consecutive 403s before quarantine
	Duration401  time.Duration // quarantine length after a 401 trip
	Duration403  time.Duration // quarantine length after a 403 trip
}

// DefaultConfig quarantines on the first 401 (for two hours) or the first
// 403 (for one hour).
var DefaultConfig = Config{
	Threshold401: 1,
	Threshold403: 1,
	Duration401:  2 * time.Hour,
	Duration403:  time.Hour,
}

type entry struct {
	mu sync.Mutex

	until  time.Time
	reason string
	count401 int
	count403 int
}

// Monitor tracks quarantine state for every account by ID.
type Monitor struct {
	cfg     Config
	entries sync.Map // string -> *entry
}

// New constructs a Monitor. A zero Config uses DefaultConfig.
func New(cfg Config) *Monitor {
	if cfg.Threshold401 <= 0 && cfg.Threshold403 <= 0 {
		cfg = DefaultConfig
	}
	return &Monitor{cfg: cfg}
}

func (m *Monitor) entry(accountID string) *entry {
	if v, ok := m.entries.Load(accountID); ok {
		return v.(*entry)
	}
	e := &entry{}
	actual, _ := m.entries.LoadOrStore(accountID, e)
	return actual.(*entry)
}

// RecordAuthFailure registers a 401 or 403 from accountID and quarantines
// it once the relevant threshold is reached. Any other status code is a
// no-op; quarantine is specifically for auth-rejections, not rate limits
// or server errors, which the breaker and adaptive packages already cover.
func (m *Monitor) RecordAuthFailure(accountID string, statusCode int) {
	if statusCode != 401 && statusCode != 403 {
		return
	}
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch statusCode {
	case 401:
		e.count401++
		if e.count401 >= max(m.cfg.Threshold401, 1) {
			e.until = time.Now().Add(m.cfg.Duration401)
			e.reason = "401 unauthorized"
		}
	case 403:
		e.count403++
		if e.count403 >= max(m.cfg.Threshold403, 1) {
			e.until = time.Now().Add(m.cfg.Duration403)
			e.reason = "403 forbidden"
		}
	}
}

// IsQuarantined reports whether accountID is currently serving a
// quarantine window.
func (m *Monitor) IsQuarantined(accountID string) bool {
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.until.IsZero() && time.Now().Before(e.until)
}

// Reason returns the quarantine reason for accountID, or "" if not
// currently quarantined.
func (m *Monitor) Reason(accountID string) string {
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.until.IsZero() || time.Now().After(e.until) {
		return ""
	}
	return e.reason
}

// Until returns the quarantine expiry for accountID, the zero Time if none.
func (m *Monitor) Until(accountID string) time.Time {
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.until
}

// ClearOnQuotaRefresh releases accountID from quarantine early and resets
// its auth-failure counters, for use once a refresh has shown the account
// is usable again. The credential manager's token refresh does not call
// it; a quarantine otherwise runs out its full window.
func (m *Monitor) ClearOnQuotaRefresh(accountID string) {
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.until = time.Time{}
	e.reason = ""
	e.count401 = 0
	e.count403 = 0
}

// MarkSuccess resets both auth-failure counters without touching an
// already-active quarantine window, mirroring credential.Manager's
// MarkSuccess reset of the account's failure streak.
func (m *Monitor) MarkSuccess(accountID string) {
	e := m.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count401 = 0
	e.count403 = 0
}
