package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 8045, cfg.Port)
	assert.Equal(t, "auto", cfg.AuthMode)
	assert.Equal(t, 2, cfg.MaxAccountRetries)
}

func TestLoadJSONProxyEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"proxy": {
			"port": 9090,
			"auth_mode": "strict",
			"api_key": "sk-test",
			"custom_mapping": {"gpt-4o": "gemini-2.5-pro"},
			"scheduling_enabled": true,
			"scheduling_ttl_s": 60,
			"zai": {"enabled": true, "dispatch_mode": "fallback", "api_key": "zk"}
		}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "strict", cfg.AuthMode)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.CustomModelMapping["gpt-4o"])
	assert.True(t, cfg.SchedulingEnabled)
	assert.Equal(t, 60, cfg.SchedulingTTLSec)
	assert.True(t, cfg.ZAI.Enabled)
	assert.Equal(t, "fallback", cfg.ZAI.DispatchMode)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"proxy:\n  port: 7001\n  auth_mode: all-except-health\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "all-except-health", cfg.AuthMode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAYMUX_PORT", "7777")
	t.Setenv("RELAYMUX_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "sk-env", cfg.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AuthMode = "sometimes"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.UpstreamProxy = UpstreamProxyConfig{Enabled: true, URL: ""}
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ZAI.DispatchMode = "sideways"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Port = 8123
	cfg.CustomModelMapping = map[string]string{"gpt-*": "gemini-2.5-flash"}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, loaded.Port)
	assert.Equal(t, "gemini-2.5-flash", loaded.CustomModelMapping["gpt-*"])
}

func TestBindAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8045", cfg.BindAddr())
	cfg.BindLAN = true
	assert.Equal(t, "0.0.0.0:8045", cfg.BindAddr())
}

func TestLoadBareLayoutWithoutEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 6500, "api_key": "sk-bare"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6500, cfg.Port)
	assert.Equal(t, "sk-bare", cfg.APIKey)
}
