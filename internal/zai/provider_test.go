package zai

import (
	"testing"

	"github.com/relaymux/relaymux/internal/config"
	"github.com/stretchr/testify/require"
)

func TestModeDefaultsToOff(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, ModeOff, Mode(cfg))
}

func TestModeParsesKnownValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.ZAI.DispatchMode = "pooled"
	require.Equal(t, ModePooled, Mode(cfg))

	cfg.ZAI.DispatchMode = "EXCLUSIVE"
	require.Equal(t, ModeExclusive, Mode(cfg))

	cfg.ZAI.DispatchMode = "fallback"
	require.Equal(t, ModeFallback, Mode(cfg))

	cfg.ZAI.DispatchMode = "garbage"
	require.Equal(t, ModeOff, Mode(cfg))
}

func TestProviderDisabledNeverSupportsAnyModel(t *testing.T) {
	cfg := &config.Config{}
	cfg.ZAI.Enabled = false
	p := NewProvider(cfg)
	require.False(t, p.SupportsModel("claude-sonnet-4-5"))
}

func TestProviderEnabledOnlySupportsClaudeFamily(t *testing.T) {
	cfg := &config.Config{}
	cfg.ZAI.Enabled = true
	cfg.ZAI.DispatchMode = "pooled"
	cfg.ZAI.BaseURL = "https://example.invalid"
	cfg.ZAI.APIKey = "test-key"
	p := NewProvider(cfg)

	require.True(t, p.SupportsModel("claude-sonnet-4-5"))
	require.False(t, p.SupportsModel("gemini-2.5-pro"))
}

func TestMappedModelFallsBackToBaseWhenUnmapped(t *testing.T) {
	cfg := &config.Config{}
	cfg.ZAI.Enabled = true
	cfg.ZAI.DispatchMode = "pooled"
	cfg.ZAI.BaseURL = "https://example.invalid"
	cfg.ZAI.ModelMapping = map[string]string{"claude-opus-4-5": "glm-4.6"}
	p := NewProvider(cfg)

	require.Equal(t, "glm-4.6", p.mappedModel("claude-opus-4-5"))
	require.Equal(t, "claude-sonnet-4-5", p.mappedModel("claude-sonnet-4-5"))
}
