package anthropic

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/pipeline"
	"github.com/relaymux/relaymux/internal/upstream"
)

type stubProvider struct {
	status int
	body   string
}

func (p *stubProvider) Name() string              { return "code_assist" }
func (p *stubProvider) SupportsModel(string) bool { return true }
func (p *stubProvider) Invalidate(string)         {}
func (p *stubProvider) ListModels(upstream.RequestContext) upstream.ProviderListResponse {
	return upstream.ProviderListResponse{}
}

func (p *stubProvider) respond() upstream.ProviderResponse {
	return upstream.ProviderResponse{Resp: &http.Response{
		StatusCode: p.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(p.body)),
	}}
}

func (p *stubProvider) Generate(upstream.RequestContext) upstream.ProviderResponse { return p.respond() }
func (p *stubProvider) Stream(upstream.RequestContext) upstream.ProviderResponse   { return p.respond() }

func newTestRouter(t *testing.T, prov upstream.Provider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr := credential.NewManager(config.OAuthConfig{}, nil)
	mgr.Add(&credential.Credential{
		ID:    "acct-1",
		Token: credential.TokenData{Access: "token", ExpiresAt: time.Now().Add(time.Hour)},
	})

	cfg := &config.Config{
		CustomModelMapping: map[string]string{"claude-3-5-sonnet-20241022": "gemini-2.5-pro"},
	}
	pl := pipeline.New(pipeline.Options{
		Config:      cfg,
		Credentials: mgr,
		Providers:   upstream.NewManager(prov),
	})

	engine := gin.New()
	engine.POST("/v1/messages", New(cfg, pl).Messages)
	return engine
}

const geminiBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":4}}`

func TestMessagesHappyPath(t *testing.T) {
	engine := newTestRouter(t, &stubProvider{status: 200, body: geminiBody})

	req := httptest.NewRequest("POST", "/v1/messages",
		strings.NewReader(`{"model":"claude-3-5-sonnet-20241022","max_tokens":32,"messages":[{"role":"user","content":"hi"}]}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gemini-2.5-pro", w.Header().Get("X-Resolved-Model"))

	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "assistant", body.Get("role").String())
	assert.Equal(t, "message", body.Get("type").String())
	assert.Equal(t, "hello", body.Get("content.0.text").String())
	assert.Equal(t, "end_turn", body.Get("stop_reason").String())
	assert.EqualValues(t, 2, body.Get("usage.input_tokens").Int())
}

func TestMessagesMissingModel(t *testing.T) {
	engine := newTestRouter(t, &stubProvider{status: 200, body: geminiBody})

	req := httptest.NewRequest("POST", "/v1/messages",
		strings.NewReader(`{"max_tokens":32,"messages":[{"role":"user","content":"hi"}]}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesUnknownModelAnthropicErrorShape(t *testing.T) {
	engine := newTestRouter(t, &stubProvider{status: 200, body: geminiBody})

	req := httptest.NewRequest("POST", "/v1/messages",
		strings.NewReader(`{"model":"no-such-model","max_tokens":32,"messages":[{"role":"user","content":"hi"}]}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "error", body.Get("type").String())
	assert.NotEmpty(t, body.Get("error.message").String())
}
