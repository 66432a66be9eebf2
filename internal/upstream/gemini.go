package upstream

import (
	"context"
	"net/http"
	"strings"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/tidwall/sjson"
)

// GeminiProvider talks to the Gemini Code Assist API. Requests arrive
// already translated to the Gemini wire shape; this provider wraps them
// in the Code Assist envelope ({model, project, request}), attaches the
// account's access token, and posts them.
type GeminiProvider struct {
	cfg   *config.Config
	creds *credential.Manager
	cli   *http.Client
}

// NewGeminiProvider constructs the primary upstream provider.
func NewGeminiProvider(cfg *config.Config, creds *credential.Manager) *GeminiProvider {
	return &GeminiProvider{cfg: cfg, creds: creds, cli: NewHTTPClient(cfg)}
}

func (p *GeminiProvider) Name() string { return "code_assist" }

func (p *GeminiProvider) SupportsModel(baseModel string) bool {
	lower := strings.ToLower(baseModel)
	return strings.HasPrefix(lower, "gemini") || strings.HasPrefix(lower, "gemma")
}

func (p *GeminiProvider) Generate(rc RequestContext) ProviderResponse {
	return p.call(rc, ":generateContent", "")
}

func (p *GeminiProvider) Stream(rc RequestContext) ProviderResponse {
	return p.call(rc, ":streamGenerateContent", "?alt=sse")
}

func (p *GeminiProvider) call(rc RequestContext, action, query string) ProviderResponse {
	ctx := rc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	header := http.Header{}
	if rc.Credential != nil {
		token, err := p.creds.AccessToken(ctx, rc.Credential.ID)
		if err != nil {
			return ProviderResponse{Err: err, Credential: rc.Credential}
		}
		header.Set("Authorization", "Bearer "+token)
	}

	body := envelope(rc)
	url := strings.TrimRight(p.cfg.UpstreamBaseURL, "/") + "/v1internal" + action + query

	resp, err := postJSON(ctx, p.cli, url, body, header)
	return ProviderResponse{Resp: resp, UsedModel: rc.BaseModel, Err: err, Credential: rc.Credential}
}

// envelope wraps a translated Gemini request body in the Code Assist
// request envelope. Image-hint suffixes (-2k, -16x9, ...) are part of the
// client-facing model name, not the upstream one; the translator has
// already folded them into generationConfig, so they are stripped here.
func envelope(rc RequestContext) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", stripImageHints(rc.BaseModel))
	if rc.ProjectID != "" {
		out, _ = sjson.SetBytes(out, "project", rc.ProjectID)
	}
	out, _ = sjson.SetRawBytes(out, "request", rc.Body)
	return out
}

func stripImageHints(model string) string {
	if !strings.Contains(strings.ToLower(model), "image") {
		return model
	}
	for _, suffix := range []string{"-1k", "-2k", "-4k", "-1x1", "-16x9", "-9x16", "-4x3", "-3x4", "-21x9"} {
		for strings.HasSuffix(strings.ToLower(model), suffix) {
			model = model[:len(model)-len(suffix)]
		}
	}
	return model
}

func (p *GeminiProvider) ListModels(RequestContext) ProviderListResponse {
	return ProviderListResponse{Models: []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-3-pro-preview",
		"gemini-3-pro-image",
	}}
}

// Invalidate is a no-op: the only per-credential state is the token,
// which lives in the credential manager and expires on its own clock.
func (p *GeminiProvider) Invalidate(string) {}
