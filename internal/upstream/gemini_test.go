package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
)

func TestGeminiProviderWrapsEnvelopeAndAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"candidates":[]}}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.UpstreamBaseURL = srv.URL

	creds := credential.NewManager(config.OAuthConfig{}, nil)
	creds.Add(&credential.Credential{
		ID:    "a",
		Token: credential.TokenData{Access: "tok-a", ExpiresAt: time.Now().Add(time.Hour)},
	})
	cred, _ := creds.GetCredentialByID("a")

	p := NewGeminiProvider(cfg, creds)
	resp := p.Generate(RequestContext{
		Ctx:        context.Background(),
		Credential: cred,
		BaseModel:  "gemini-2.5-pro",
		ProjectID:  "proj-1",
		Body:       []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`),
	})

	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Resp)
	resp.Resp.Body.Close()

	assert.Equal(t, "/v1internal:generateContent", gotPath)
	assert.Equal(t, "Bearer tok-a", gotAuth)
	assert.Equal(t, "gemini-2.5-pro", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "proj-1", gjson.GetBytes(gotBody, "project").String())
	assert.Equal(t, "hi", gjson.GetBytes(gotBody, "request.contents.0.parts.0.text").String())
}

func TestGeminiProviderStreamPath(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.UpstreamBaseURL = srv.URL

	p := NewGeminiProvider(cfg, credential.NewManager(config.OAuthConfig{}, nil))
	resp := p.Stream(RequestContext{Ctx: context.Background(), BaseModel: "gemini-2.5-flash", Body: []byte(`{}`)})

	require.NoError(t, resp.Err)
	resp.Resp.Body.Close()
	assert.Equal(t, "/v1internal:streamGenerateContent", gotPath)
	assert.Equal(t, "alt=sse", gotQuery)
}

func TestManagerProviderFor(t *testing.T) {
	cfg := config.Default()
	p := NewGeminiProvider(cfg, credential.NewManager(config.OAuthConfig{}, nil))
	m := NewManager(p)

	assert.Equal(t, p, m.ProviderFor("gemini-2.5-pro"))
	// unknown family falls back to the first registered provider
	assert.Equal(t, p, m.ProviderFor("claude-opus-4"))
}
