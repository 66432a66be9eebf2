// Package zai implements the optional z.ai alternate upstream for the
// Claude model family: a separate base URL and API key that can be
// dispatched to exclusively, pooled alongside the Gemini credentials, or
// used only as a fallback once every Gemini account is exhausted.
// Uses the same transport settings as internal/upstream's shared HTTP
// client, bearer plus x-api-key auth, and its own exponential backoff with
// jitter, trimmed to z.ai's single-account, API-key-auth model, which has
// no per-credential OAuth refresh to manage.
package zai

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/relaymux/relaymux/internal/config"
)

// Client talks to a z.ai-compatible Anthropic Messages endpoint.
type Client struct {
	cfg     *config.Config
	baseURL string
	apiKey  string
	cli     *http.Client
}

// New constructs a Client from the active ZAI config section. Returns nil
// if z.ai is not enabled, so callers can skip provider registration.
func New(cfg *config.Config) *Client {
	if !cfg.ZAI.Enabled {
		return nil
	}
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.ZAI.BaseURL, "/"),
		apiKey:  cfg.ZAI.APIKey,
		cli:     &http.Client{Transport: tr},
	}
}

// Messages posts an Anthropic Messages-shaped payload to z.ai and returns
// the raw response; the caller is responsible for closing resp.Body.
func (c *Client) Messages(ctx context.Context, payload []byte, stream bool) (*http.Response, error) {
	url := c.baseURL + "/v1/messages"
	return c.postWithRetry(ctx, url, payload)
}

func (c *Client) postWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.cli.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			time.Sleep(backoff(attempt))
			continue
		}
		if resp.StatusCode == 429 || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
			if attempt < 2 {
				resp.Body.Close()
				time.Sleep(backoff(attempt))
				continue
			}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("zai: request failed after retries: %w", lastErr)
}

func backoff(attempt int) time.Duration {
	base := float64(time.Second)
	dur := base * math.Pow(2, float64(attempt))
	jitter := 0.5 + rand.Float64()
	return time.Duration(dur * jitter)
}
