// Package credential owns the account pool: loading accounts from the
// data directory, refreshing their OAuth tokens before expiry (serialized
// per account), and supplying the selection primitives the request
// pipeline's health gates filter. It makes no business decisions about
// which account wins a request; that policy lives in the pipeline.
package credential

import "time"

// TokenData is an account's OAuth token material.
type TokenData struct {
	Access    string    `json:"access_token"`
	Refresh   string    `json:"refresh_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope,omitempty"`
}

// QuotaModel is one model's usage inside a cached quota snapshot.
type QuotaModel struct {
	Name       string  `json:"name"`
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// Quota is the cached result of an account quota probe.
type Quota struct {
	Models      []QuotaModel `json:"models,omitempty"`
	IsForbidden bool         `json:"is_forbidden"`
}

// Credential is one upstream account.
type Credential struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Token     TokenData `json:"token"`
	ProjectID string    `json:"project_id,omitempty"`
	Quota     *Quota    `json:"quota,omitempty"`

	Disabled       bool   `json:"disabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	ProxyDisabled  bool   `json:"proxy_disabled"`

	// LastUsed is epoch seconds of the last dispatch, for LRU scoring.
	LastUsed int64 `json:"last_used"`
}

// Clone returns a deep copy safe to hand outside the manager's lock.
func (c *Credential) Clone() *Credential {
	clone := *c
	if c.Quota != nil {
		q := *c.Quota
		q.Models = append([]QuotaModel(nil), c.Quota.Models...)
		clone.Quota = &q
	}
	return &clone
}

// HealthGates lets the pipeline's breaker, quarantine monitor, and AIMD
// tracker veto an account without this package importing any of them.
// Each gate returns true when the account may take the request.
type HealthGates struct {
	CircuitAllows  func(id string) bool
	NotQuarantined func(id string) bool
	UnderCapacity  func(id string) bool
}

func (g HealthGates) allows(id string) bool {
	if g.CircuitAllows != nil && !g.CircuitAllows(id) {
		return false
	}
	if g.NotQuarantined != nil && !g.NotQuarantined(id) {
		return false
	}
	if g.UnderCapacity != nil && !g.UnderCapacity(id) {
		return false
	}
	return true
}
