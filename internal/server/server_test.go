package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/monitor"
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

const geminiOK = `{"response":{"candidates":[{"content":{"role":"model","parts":[{"text":"pong"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":5}}}`

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
		cfg.DataDir = t.TempDir()
	}
	if cfg.CustomModelMapping == nil {
		cfg.CustomModelMapping = map[string]string{"gpt-4o": "gemini-2.5-pro"}
	}

	creds := credential.NewManager(config.OAuthConfig{}, nil)
	creds.Add(&credential.Credential{
		ID:    "acct-1",
		Email: "one@example.com",
		Token: credential.TokenData{Access: "tok", ExpiresAt: time.Now().Add(time.Hour)},
	})

	return New(Options{
		Config:    cfg,
		Creds:     creds,
		Providers: upstream.NewManager(&stubProvider{status: 200, body: geminiOK}),
	})
}

func do(srv *Server, method, path, body, key string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/health", "/healthz"} {
		w := do(srv, "GET", path, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	}
}

func TestOpenAIHappyPathEndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(srv, "POST", "/v1/chat/completions",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"ping"}],"stream":false}`, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gemini-2.5-pro", w.Header().Get("X-Resolved-Model"))
	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "assistant", body.Get("choices.0.message.role").String())
	assert.Equal(t, "pong", body.Get("choices.0.message.content").String())

	// one terminal log row, status matching what the client saw; the
	// sink write is async, so poll briefly
	var rows []monitor.Row
	require.Eventually(t, func() bool {
		rows = srv.Monitor.GetLogs(context.Background(), 10)
		return len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusOK, rows[0].Status)
	assert.Equal(t, "gpt-4o", rows[0].Model)
	assert.Equal(t, "gemini-2.5-pro", rows[0].MappedModel)
}

func TestUnknownModelReturns400(t *testing.T) {
	srv := newTestServer(t, nil)
	w := do(srv, "POST", "/v1/chat/completions",
		`{"model":"does-not-exist","messages":[{"role":"user","content":"x"}]}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "does-not-exist")
}

func TestGeminiActionRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	w := do(srv, "POST", "/v1beta/models/gemini-2.5-pro:generateContent",
		`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// envelope unwrapped for the Gemini-native client
	body := gjson.Parse(w.Body.String())
	assert.True(t, body.Get("candidates").Exists())
	assert.False(t, body.Get("response").Exists())
}

func TestAuthStrictGatesEverything(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.AuthMode = "strict"
	cfg.APIKey = "sk-secret"
	srv := newTestServer(t, cfg)

	w := do(srv, "POST", "/v1/chat/completions", `{"model":"gpt-4o","messages":[]}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(srv, "GET", "/health", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(srv, "GET", "/health", "", "sk-secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthAllExceptHealth(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.AuthMode = "all-except-health"
	cfg.APIKey = "sk-secret"
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(srv, "GET", "/healthz", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(srv, "POST", "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"x"}]}`, "").Code)
}

func TestModelsListIncludesCustomAndImageVariants(t *testing.T) {
	srv := newTestServer(t, nil)
	w := do(srv, "GET", "/v1/models", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `"gpt-4o"`)
	assert.Contains(t, body, "image")
	assert.Contains(t, body, "-16x9")
}

func TestModelDetect(t *testing.T) {
	srv := newTestServer(t, nil)
	w := do(srv, "POST", "/v1/models/detect", `{"model":"gpt-4o"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := gjson.Parse(w.Body.String())
	assert.Equal(t, "gpt-4o", body.Get("model").String())
	assert.Equal(t, "gemini-2.5-pro", body.Get("mapped_model").String())
	assert.Equal(t, "gemini", body.Get("type").String())
}

func TestStopStartProxy(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, do(srv, "POST", "/api/proxy/stop", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(srv, "POST", "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"x"}]}`, "").Code)

	require.Equal(t, http.StatusOK, do(srv, "POST", "/api/proxy/start", "", "").Code)
	assert.Equal(t, http.StatusOK,
		do(srv, "POST", "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"x"}]}`, "").Code)
}

func TestAdminAccountsAndLogs(t *testing.T) {
	srv := newTestServer(t, nil)

	// generate one request so a log row exists
	require.Equal(t, http.StatusOK,
		do(srv, "POST", "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"x"}]}`, "").Code)

	w := do(srv, "GET", "/api/accounts", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	accounts := gjson.Get(w.Body.String(), "accounts").Array()
	require.Len(t, accounts, 1)
	assert.Equal(t, "one@example.com", accounts[0].Get("email").String())
	assert.False(t, accounts[0].Get("circuit_open").Bool())

	require.Eventually(t, func() bool {
		w = do(srv, "GET", "/api/logs?limit=10", "", "")
		return w.Code == http.StatusOK && gjson.Get(w.Body.String(), "count").Int() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	w = do(srv, "POST", "/api/logs/clear", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(srv, "GET", "/api/logs", "", "")
	assert.EqualValues(t, 0, gjson.Get(w.Body.String(), "count").Int())
}

func TestBodyLimitReturns413(t *testing.T) {
	srv := newTestServer(t, nil)
	big := strings.Repeat("x", 1024)
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(big))
	req.ContentLength = maxRequestBody + 1
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
