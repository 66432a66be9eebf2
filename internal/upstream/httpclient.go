package upstream

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/config"
)

// transportRetries bounds retries of network-level failures that happen
// before any response headers arrive. Protocol-level statuses are the
// pipeline's business, never retried here.
const transportRetries = 2

// NewHTTPClient builds the shared client providers use: pooled transport,
// the configured request timeout, and the optional forward proxy.
func NewHTTPClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout(cfg),
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.UpstreamProxy.Enabled && cfg.UpstreamProxy.URL != "" {
		if proxyURL, err := url.Parse(cfg.UpstreamProxy.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			log.WithError(err).Warn("invalid upstream proxy url, going direct")
		}
	}
	return &http.Client{Transport: transport}
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.RequestTimeoutSec > 0 {
		return time.Duration(cfg.RequestTimeoutSec) * time.Second
	}
	return 180 * time.Second
}

// postJSON sends one JSON POST, retrying only transport-level failures
// (connection reset, refused) with a short linear backoff. Any response
// with headers, whatever its status, is returned to the caller.
func postJSON(ctx context.Context, cli *http.Client, url string, body []byte, header http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= transportRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := cli.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	return nil, lastErr
}
