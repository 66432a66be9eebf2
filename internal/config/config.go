// Package config holds the proxy configuration: the HTTP surface, client
// auth, the model-mapping table, credential-selection tuning, and the
// optional z.ai alternate upstream. The file lives at
// <data_dir>/config.json under a top-level "proxy" key; a YAML file works
// too. A handful of environment variables override the file for
// deployments that don't want one.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// UpstreamProxyConfig points every upstream call through a forward proxy.
type UpstreamProxyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

// ZAIConfig is the optional z.ai alternate upstream for the Claude model
// family.
type ZAIConfig struct {
	Enabled      bool              `json:"enabled" yaml:"enabled"`
	DispatchMode string            `json:"dispatch_mode" yaml:"dispatch_mode"` // exclusive|pooled|fallback|off
	BaseURL      string            `json:"base_url" yaml:"base_url"`
	APIKey       string            `json:"api_key" yaml:"api_key"`
	ModelMapping map[string]string `json:"model_mapping" yaml:"model_mapping"`
}

// OAuthConfig identifies the client used to refresh credential tokens.
type OAuthConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
}

// Config is the full proxy configuration.
type Config struct {
	Port    int  `json:"port" yaml:"port"`
	BindLAN bool `json:"bind_lan" yaml:"bind_lan"`

	// AuthMode is one of off | strict | all-except-health | auto.
	AuthMode string `json:"auth_mode" yaml:"auth_mode"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	// AdminKey guards the /api management surface; empty falls back to
	// APIKey.
	AdminKey string `json:"admin_key" yaml:"admin_key"`

	RequestTimeoutSec int `json:"request_timeout_s" yaml:"request_timeout_s"`
	MaxAccountRetries int `json:"max_account_retries" yaml:"max_account_retries"`

	CustomModelMapping map[string]string `json:"custom_mapping" yaml:"custom_mapping"`

	DataDir         string `json:"data_dir" yaml:"data_dir"`
	UpstreamBaseURL string `json:"upstream_base_url" yaml:"upstream_base_url"`
	LogLevel        string `json:"log_level" yaml:"log_level"`

	RateLimitRPS   float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst" yaml:"rate_limit_burst"`

	UpstreamProxy UpstreamProxyConfig `json:"upstream_proxy" yaml:"upstream_proxy"`

	SchedulingEnabled bool   `json:"scheduling_enabled" yaml:"scheduling_enabled"`
	SchedulingMode    string `json:"scheduling_mode" yaml:"scheduling_mode"`
	SchedulingTTLSec  int    `json:"scheduling_ttl_s" yaml:"scheduling_ttl_s"`

	ExperimentalSignatureCache   bool `json:"enable_signature_cache" yaml:"enable_signature_cache"`
	ExperimentalSigCacheCap      int  `json:"signature_cache_cap" yaml:"signature_cache_cap"`
	ExperimentalSigCacheTTLSec   int  `json:"signature_cache_ttl_s" yaml:"signature_cache_ttl_s"`
	ExperimentalToolLoopRecovery bool `json:"tool_loop_recovery" yaml:"tool_loop_recovery"`
	ExperimentalCrossModelChecks bool `json:"cross_model_checks" yaml:"cross_model_checks"`

	OAuth OAuthConfig `json:"oauth" yaml:"oauth"`
	ZAI   ZAIConfig   `json:"zai" yaml:"zai"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Port:              8045,
		AuthMode:          "auto",
		RequestTimeoutSec: 180,
		MaxAccountRetries: 2,
		DataDir:           defaultDataDir(),
		UpstreamBaseURL:   "https://cloudcode-pa.googleapis.com",
		LogLevel:          "info",
		SchedulingTTLSec:  300,
		ZAI: ZAIConfig{
			DispatchMode: "off",
			BaseURL:      "https://api.z.ai/api/anthropic",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".antigravity_tools"
	}
	return filepath.Join(home, ".antigravity_tools")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	switch c.AuthMode {
	case "", "off", "strict", "all-except-health", "auto":
	default:
		return fmt.Errorf("config: invalid auth_mode %q", c.AuthMode)
	}
	if c.UpstreamProxy.Enabled {
		if _, err := url.Parse(c.UpstreamProxy.URL); err != nil || c.UpstreamProxy.URL == "" {
			return fmt.Errorf("config: invalid upstream_proxy.url %q", c.UpstreamProxy.URL)
		}
	}
	switch c.ZAI.DispatchMode {
	case "", "off", "exclusive", "pooled", "fallback":
	default:
		return fmt.Errorf("config: invalid zai.dispatch_mode %q", c.ZAI.DispatchMode)
	}
	return nil
}

// BindAddr is the listen address derived from Port and BindLAN.
func (c *Config) BindAddr() string {
	host := "127.0.0.1"
	if c.BindLAN {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// AdminAPIKey returns the key guarding /api, falling back to the client
// key when no dedicated admin key is set.
func (c *Config) AdminAPIKey() string {
	if c.AdminKey != "" {
		return c.AdminKey
	}
	return c.APIKey
}
