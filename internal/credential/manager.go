package credential

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/relaymux/relaymux/internal/config"
)

// refreshSkew refreshes a token this long before its recorded expiry.
const refreshSkew = 60 * time.Second

// state is the manager's per-account runtime bookkeeping, kept apart
// from the persisted Credential so a token refresh never races an
// accounting update.
type state struct {
	failStreak int
	lastUsed   time.Time
	// refreshMu serializes token refresh for this account; concurrent
	// callers block here and then observe the refreshed token.
	refreshMu sync.Mutex
}

// Manager holds the account pool.
type Manager struct {
	mu     sync.RWMutex
	creds  map[string]*Credential
	states map[string]*state

	store *Store
	oauth oauth2.Config
	now   func() time.Time
}

// NewManager builds an empty pool configured with the OAuth client used
// for token refresh. Store may be nil for in-memory use (tests).
func NewManager(cfg config.OAuthConfig, store *Store) *Manager {
	return &Manager{
		creds:  make(map[string]*Credential),
		states: make(map[string]*state),
		store:  store,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		now: time.Now,
	}
}

// Load reads every account from the store into the pool and returns how
// many loaded.
func (m *Manager) Load() (int, error) {
	if m.store == nil {
		return 0, nil
	}
	creds, err := m.store.LoadAll()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	for _, cred := range creds {
		m.creds[cred.ID] = cred
		if _, ok := m.states[cred.ID]; !ok {
			m.states[cred.ID] = &state{}
		}
	}
	n := len(m.creds)
	m.mu.Unlock()
	return n, nil
}

// Add inserts or replaces an account (OAuth login flow, tests).
func (m *Manager) Add(cred *Credential) {
	m.mu.Lock()
	m.creds[cred.ID] = cred.Clone()
	if _, ok := m.states[cred.ID]; !ok {
		m.states[cred.ID] = &state{}
	}
	m.mu.Unlock()
	m.persist(cred.ID)
}

// Delete removes an account from the pool and the store.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.creds, id)
	delete(m.states, id)
	m.mu.Unlock()
	if m.store != nil {
		return m.store.Delete(id)
	}
	return nil
}

// GetCredentialByID returns a copy of one account.
func (m *Manager) GetCredentialByID(id string) (*Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[id]
	if !ok {
		return nil, false
	}
	return cred.Clone(), true
}

// List returns copies of every account, ordered by id.
func (m *Manager) List() []*Credential {
	m.mu.RLock()
	out := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		out = append(out, cred.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetDisabled flips an account's disabled flag and persists it.
func (m *Manager) SetDisabled(id string, disabled bool, reason string) bool {
	m.mu.Lock()
	cred, ok := m.creds[id]
	if ok {
		cred.Disabled = disabled
		cred.DisabledReason = reason
		if !disabled {
			m.states[id].failStreak = 0
		}
	}
	m.mu.Unlock()
	if ok {
		m.persist(id)
	}
	return ok
}

// UpdateQuota replaces an account's cached quota snapshot.
func (m *Manager) UpdateQuota(id string, q *Quota) {
	m.mu.Lock()
	if cred, ok := m.creds[id]; ok {
		cred.Quota = q
	}
	m.mu.Unlock()
	m.persist(id)
}

// SelectEligible returns the best account passing every gate: healthiest
// first (shortest failure streak), then least recently used, ties broken
// by id. preferID short-circuits when that account is itself eligible
// (the sticky-session fast path). It never falls back to an ineligible
// account.
func (m *Manager) SelectEligible(gates HealthGates, preferID string, exclude map[string]bool) (*Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type candidate struct {
		cred *Credential
		st   *state
	}
	var eligible []candidate
	for id, cred := range m.creds {
		if !m.eligibleLocked(id, cred, gates, exclude) {
			continue
		}
		eligible = append(eligible, candidate{cred, m.states[id]})
	}
	if len(eligible) == 0 {
		return nil, false
	}

	if preferID != "" {
		for _, c := range eligible {
			if c.cred.ID == preferID {
				return c.cred.Clone(), true
			}
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.st.failStreak != b.st.failStreak {
			return a.st.failStreak < b.st.failStreak
		}
		if !a.st.lastUsed.Equal(b.st.lastUsed) {
			return a.st.lastUsed.Before(b.st.lastUsed)
		}
		return a.cred.ID < b.cred.ID
	})
	return eligible[0].cred.Clone(), true
}

// EligibleCount reports how many accounts currently pass every gate,
// without selecting one. Used to weigh a synthetic pooled account (z.ai)
// proportionally to pool size.
func (m *Manager) EligibleCount(gates HealthGates, exclude map[string]bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id, cred := range m.creds {
		if m.eligibleLocked(id, cred, gates, exclude) {
			n++
		}
	}
	return n
}

func (m *Manager) eligibleLocked(id string, cred *Credential, gates HealthGates, exclude map[string]bool) bool {
	if cred.Disabled || cred.ProxyDisabled {
		return false
	}
	if cred.Quota != nil && cred.Quota.IsForbidden {
		return false
	}
	if exclude != nil && exclude[id] {
		return false
	}
	return gates.allows(id)
}

// MarkSuccess records a successful dispatch: failure streak resets and
// the LRU clock advances.
func (m *Manager) MarkSuccess(id string) {
	now := m.now()
	m.mu.Lock()
	if st, ok := m.states[id]; ok {
		st.failStreak = 0
		st.lastUsed = now
	}
	if cred, ok := m.creds[id]; ok {
		cred.LastUsed = now.Unix()
	}
	m.mu.Unlock()
}

// MarkFailure records a failed dispatch. The streak only feeds selection
// ordering; disabling an account is the quarantine monitor's and the
// operator's call, not this counter's.
func (m *Manager) MarkFailure(id, reason string, status int) {
	now := m.now()
	m.mu.Lock()
	if st, ok := m.states[id]; ok {
		st.failStreak++
		st.lastUsed = now
	}
	if cred, ok := m.creds[id]; ok {
		cred.LastUsed = now.Unix()
	}
	m.mu.Unlock()
	log.WithFields(log.Fields{"account": id, "reason": reason, "status": status}).Debug("account failure recorded")
}

// FailStreak exposes the consecutive-failure count for stats endpoints.
func (m *Manager) FailStreak(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[id]; ok {
		return st.failStreak
	}
	return 0
}

// AccessToken returns a currently-valid access token for the account,
// refreshing first when expiry is within the skew. Refresh is serialized
// per account; a failed refresh disables the account (the refresh token
// is kept for a later manual recovery) and propagates the error.
func (m *Manager) AccessToken(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	cred, ok := m.creds[id]
	st := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("credential: unknown account %q", id)
	}
	if cred.Disabled {
		return "", fmt.Errorf("credential: account %q is disabled: %s", id, cred.DisabledReason)
	}

	m.mu.RLock()
	token, expiry := cred.Token.Access, cred.Token.ExpiresAt
	m.mu.RUnlock()
	if token != "" && m.now().Add(refreshSkew).Before(expiry) {
		return token, nil
	}

	st.refreshMu.Lock()
	defer st.refreshMu.Unlock()

	// A concurrent caller may have refreshed while we waited.
	m.mu.RLock()
	token, expiry = cred.Token.Access, cred.Token.ExpiresAt
	m.mu.RUnlock()
	if token != "" && m.now().Add(refreshSkew).Before(expiry) {
		return token, nil
	}

	return m.refreshLocked(ctx, id)
}

func (m *Manager) refreshLocked(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	refresh := m.creds[id].Token.Refresh
	m.mu.RUnlock()

	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		m.mu.Lock()
		if cred, ok := m.creds[id]; ok {
			cred.Disabled = true
			cred.DisabledReason = "token refresh failed: " + err.Error()
		}
		m.mu.Unlock()
		m.persist(id)
		return "", fmt.Errorf("credential: refresh for %q failed: %w", id, err)
	}

	m.mu.Lock()
	cred := m.creds[id]
	cred.Token.Access = tok.AccessToken
	cred.Token.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		cred.Token.Refresh = tok.RefreshToken
	}
	m.mu.Unlock()
	m.persist(id)

	log.WithField("account", id).Info("access token refreshed")
	return tok.AccessToken, nil
}

func (m *Manager) persist(id string) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	cred, ok := m.creds[id]
	var clone *Credential
	if ok {
		clone = cred.Clone()
	}
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := m.store.Save(clone); err != nil {
		log.WithError(err).WithField("account", id).Warn("failed to persist account")
	}
}
