package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymux/relaymux/internal/config"
)

func allowAll() HealthGates {
	return HealthGates{
		CircuitAllows:  func(string) bool { return true },
		NotQuarantined: func(string) bool { return true },
		UnderCapacity:  func(string) bool { return true },
	}
}

func memManager(ids ...string) *Manager {
	m := NewManager(config.OAuthConfig{}, nil)
	for _, id := range ids {
		m.Add(&Credential{ID: id, Email: id + "@example.com"})
	}
	return m
}

func TestSelectEligiblePrefersSticky(t *testing.T) {
	m := memManager("a", "b", "c")
	cred, ok := m.SelectEligible(allowAll(), "b", nil)
	require.True(t, ok)
	assert.Equal(t, "b", cred.ID)
}

func TestSelectEligibleSkipsDisabledAndGated(t *testing.T) {
	m := memManager("a", "b")
	m.SetDisabled("a", true, "operator")

	gates := allowAll()
	gates.CircuitAllows = func(id string) bool { return id != "b" }
	_, ok := m.SelectEligible(gates, "", nil)
	assert.False(t, ok)
}

func TestSelectEligibleNeverFallsBackToIneligibleSticky(t *testing.T) {
	m := memManager("a", "b")
	gates := allowAll()
	gates.NotQuarantined = func(id string) bool { return id != "a" }

	cred, ok := m.SelectEligible(gates, "a", nil)
	require.True(t, ok)
	assert.Equal(t, "b", cred.ID, "quarantined sticky account must be replaced")
}

func TestSelectionOrdersByFailStreakThenLRU(t *testing.T) {
	m := memManager("a", "b")
	m.MarkFailure("a", "boom", 500)

	cred, ok := m.SelectEligible(allowAll(), "", nil)
	require.True(t, ok)
	assert.Equal(t, "b", cred.ID, "account with shorter failure streak wins")

	m.MarkSuccess("a") // streak reset; a was used more recently, so LRU still picks b
	cred, ok = m.SelectEligible(allowAll(), "", nil)
	require.True(t, ok)
	assert.Equal(t, "b", cred.ID)
}

func TestEligibleCount(t *testing.T) {
	m := memManager("a", "b", "c")
	gates := allowAll()
	gates.UnderCapacity = func(id string) bool { return id != "c" }

	assert.Equal(t, 2, m.EligibleCount(gates, nil))
	assert.Equal(t, 1, m.EligibleCount(gates, map[string]bool{"a": true}))
}

func TestQuotaForbiddenExcludesAccount(t *testing.T) {
	m := memManager("a")
	m.UpdateQuota("a", &Quota{IsForbidden: true})
	_, ok := m.SelectEligible(allowAll(), "", nil)
	assert.False(t, ok)
}

func TestAccessTokenSkipsRefreshWhenFresh(t *testing.T) {
	m := memManager()
	m.Add(&Credential{ID: "a", Token: TokenData{
		Access:    "fresh",
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	token, err := m.AccessToken(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "refreshed",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	m := NewManager(config.OAuthConfig{TokenURL: srv.URL}, nil)
	m.Add(&Credential{ID: "a", Token: TokenData{
		Access:    "stale",
		Refresh:   "refresh-token",
		ExpiresAt: time.Now().Add(10 * time.Second), // inside the 60s skew
	}})

	// Concurrent callers serialize on the per-account lock and all see
	// the refreshed token from a single upstream call.
	var wg sync.WaitGroup
	tokens := make([]string, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.AccessToken(context.Background(), "a")
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "refreshed", tokens[i])
	}
	mu.Lock()
	assert.Equal(t, 1, hits, "refresh must happen exactly once")
	mu.Unlock()
}

func TestAccessTokenRefreshFailureDisablesAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewManager(config.OAuthConfig{TokenURL: srv.URL}, nil)
	m.Add(&Credential{ID: "a", Token: TokenData{
		Access:    "stale",
		Refresh:   "refresh-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	}})

	_, err := m.AccessToken(context.Background(), "a")
	require.Error(t, err)

	cred, ok := m.GetCredentialByID("a")
	require.True(t, ok)
	assert.True(t, cred.Disabled)
	assert.Equal(t, "refresh-token", cred.Token.Refresh, "refresh token survives a failed refresh")
}

func TestDeleteRemovesFromPool(t *testing.T) {
	m := memManager("a")
	require.NoError(t, m.Delete("a"))
	_, ok := m.GetCredentialByID("a")
	assert.False(t, ok)
}
