package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// fileEnvelope matches the on-disk JSON layout: the proxy block sits under
// a top-level "proxy" key so the same file can carry unrelated tool state.
type fileEnvelope struct {
	Proxy *Config `json:"proxy" yaml:"proxy"`
}

// Load reads the configuration from path (JSON or YAML by extension),
// falling back to defaults when the file is absent, then applies
// environment overrides. A missing file is not an error; an unparsable
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := unmarshalInto(path, data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		log.WithField("path", path).Debug("no config file, using defaults")
	default:
		return nil, err
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshalInto(path string, data []byte, cfg *Config) error {
	isYAML := strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")

	var probe map[string]any
	if isYAML {
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return err
		}
	} else {
		if err := json.Unmarshal(data, &probe); err != nil {
			return err
		}
	}

	// The canonical layout nests the proxy block under "proxy"; a bare
	// block is accepted too.
	if _, enveloped := probe["proxy"]; enveloped {
		env := fileEnvelope{Proxy: cfg}
		if isYAML {
			return yaml.Unmarshal(data, &env)
		}
		return json.Unmarshal(data, &env)
	}
	if isYAML {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RELAYMUX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("RELAYMUX_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("RELAYMUX_AUTH_MODE"); v != "" {
		cfg.AuthMode = v
	}
	if v := os.Getenv("RELAYMUX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RELAYMUX_UPSTREAM_BASE_URL"); v != "" {
		cfg.UpstreamBaseURL = v
	}
	if v := os.Getenv("RELAYMUX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RELAYMUX_PROXY_URL"); v != "" {
		cfg.UpstreamProxy = UpstreamProxyConfig{Enabled: true, URL: v}
	}
}

// Save writes the configuration back to path in the JSON envelope layout.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileEnvelope{Proxy: cfg}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
