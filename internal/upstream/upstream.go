// Package upstream defines the provider abstraction the pipeline
// dispatches through and the shared HTTP plumbing providers build on.
// A Provider owns one upstream API surface (Gemini Code Assist, z.ai);
// the Manager picks which provider serves a given base model.
package upstream

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/relaymux/relaymux/internal/credential"
)

// Provider is one upstream API surface.
type Provider interface {
	Name() string
	SupportsModel(baseModel string) bool
	// Stream issues a streaming request; the caller reads and closes
	// Resp.Body.
	Stream(RequestContext) ProviderResponse
	// Generate issues a buffered request.
	Generate(RequestContext) ProviderResponse
	ListModels(RequestContext) ProviderListResponse
	// Invalidate evicts any cached per-credential state after an auth
	// failure.
	Invalidate(credID string)
}

// RequestContext carries one upstream call's inputs.
type RequestContext struct {
	Ctx             context.Context
	Credential      *credential.Credential
	BaseModel       string
	ProjectID       string
	Body            []byte
	HeaderOverrides http.Header
}

// ProviderResponse is one upstream call's outcome.
type ProviderResponse struct {
	Resp       *http.Response
	UsedModel  string
	Err        error
	Credential *credential.Credential
}

// ProviderListResponse enumerates the models an upstream offers.
type ProviderListResponse struct {
	Models     []string
	Err        error
	Credential *credential.Credential
}

// Manager holds the registered providers. Registration order is
// priority order: the first provider claiming a model serves it, and the
// first registered one is the fallback for unclaimed models.
type Manager struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Provider
}

// NewManager registers the given providers in order.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{byName: make(map[string]Provider)}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

// Register adds a provider; a name already registered is ignored.
func (m *Manager) Register(p Provider) {
	if p == nil {
		return
	}
	name := strings.ToLower(p.Name())
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byName[name]; dup {
		return
	}
	m.byName[name] = p
	m.order = append(m.order, name)
}

// Providers returns the registered providers in priority order.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// ProviderFor returns the first provider claiming baseModel, or the
// first registered provider when none claims it.
func (m *Manager) ProviderFor(baseModel string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var fallback Provider
	for i, name := range m.order {
		p := m.byName[name]
		if i == 0 {
			fallback = p
		}
		if p.SupportsModel(baseModel) {
			return p
		}
	}
	return fallback
}

// ReadAll drains and closes a response body; a nil response reads as
// empty.
func ReadAll(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
