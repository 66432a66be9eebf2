package zai

import (
	"context"
	"strings"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/upstream"
)

// DispatchMode controls how the pipeline weighs z.ai against the Gemini
// credential pool for Claude-family requests.
type DispatchMode string

const (
	// ModeOff disables z.ai entirely; every Claude request goes to Gemini.
	ModeOff DispatchMode = "off"
	// ModeExclusive routes every Claude-family request to z.ai only.
	ModeExclusive DispatchMode = "exclusive"
	// ModePooled treats z.ai as one more account in the selection pool.
	ModePooled DispatchMode = "pooled"
	// ModeFallback only calls z.ai once every Gemini account is
	// ineligible (quarantined, circuit open, or over its usage ratio).
	ModeFallback DispatchMode = "fallback"
)

// Mode returns the provider's configured DispatchMode, defaulting to Off.
func Mode(cfg *config.Config) DispatchMode {
	switch DispatchMode(strings.ToLower(cfg.ZAI.DispatchMode)) {
	case ModeExclusive:
		return ModeExclusive
	case ModePooled:
		return ModePooled
	case ModeFallback:
		return ModeFallback
	default:
		return ModeOff
	}
}

// Provider implements upstream.Provider for the z.ai alternate upstream.
// It only ever supports the Claude model family and only when enabled.
type Provider struct {
	cfg    *config.Config
	client *Client
}

// NewProvider constructs a Provider. The returned provider's SupportsModel
// always reports false if z.ai is disabled, so registering it
// unconditionally is safe.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{cfg: cfg, client: New(cfg)}
}

func (p *Provider) Name() string { return "zai" }

func (p *Provider) SupportsModel(baseModel string) bool {
	if p.client == nil || Mode(p.cfg) == ModeOff {
		return false
	}
	return strings.HasPrefix(strings.ToLower(baseModel), "claude-")
}

// mappedModel applies the z.ai-specific model mapping on top of the
// already-resolved base model, falling back to the base model unchanged
// when no override is configured.
func (p *Provider) mappedModel(baseModel string) string {
	if p.cfg.ZAI.ModelMapping == nil {
		return baseModel
	}
	if v, ok := p.cfg.ZAI.ModelMapping[baseModel]; ok && v != "" {
		return v
	}
	return baseModel
}

func (p *Provider) Stream(ctx upstream.RequestContext) upstream.ProviderResponse {
	if ctx.Ctx == nil {
		ctx.Ctx = context.Background()
	}
	resp, err := p.client.Messages(ctx.Ctx, ctx.Body, true)
	return upstream.ProviderResponse{Resp: resp, UsedModel: p.mappedModel(ctx.BaseModel), Err: err, Credential: ctx.Credential}
}

func (p *Provider) Generate(ctx upstream.RequestContext) upstream.ProviderResponse {
	if ctx.Ctx == nil {
		ctx.Ctx = context.Background()
	}
	resp, err := p.client.Messages(ctx.Ctx, ctx.Body, false)
	return upstream.ProviderResponse{Resp: resp, UsedModel: p.mappedModel(ctx.BaseModel), Err: err, Credential: ctx.Credential}
}

func (p *Provider) ListModels(ctx upstream.RequestContext) upstream.ProviderListResponse {
	models := make([]string, 0, len(p.cfg.ZAI.ModelMapping))
	for k := range p.cfg.ZAI.ModelMapping {
		models = append(models, k)
	}
	return upstream.ProviderListResponse{Models: models, Credential: ctx.Credential}
}

// Invalidate is a no-op: z.ai authenticates with a single static API key,
// not a per-account OAuth token that can need refreshing or eviction.
func (p *Provider) Invalidate(credID string) {}
