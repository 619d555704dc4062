package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phishguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Port != "8080" || cfg.FetchMode != FetchModeHTTP {
		t.Errorf("unexpected defaults: port=%s fetch=%s", cfg.Port, cfg.FetchMode)
	}
	if cfg.PageTimeout != 2*time.Second || cfg.WhoisTimeout != 2*time.Second || cfg.JoinGrace != 500*time.Millisecond {
		t.Errorf("unexpected evidence timeouts: %s %s %s", cfg.PageTimeout, cfg.WhoisTimeout, cfg.JoinGrace)
	}
	if cfg.Threat.HighConfidence != 80 {
		t.Errorf("expected high confidence 80, got %v", cfg.Threat.HighConfidence)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero page timeout", func(c *Config) { c.PageTimeout = 0 }, "page timeout"},
		{"negative grace", func(c *Config) { c.JoinGrace = -time.Second }, "join grace"},
		{"unknown fetch mode", func(c *Config) { c.FetchMode = "carrier-pigeon" }, "fetch mode"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
		{"zero rule threshold", func(c *Config) { c.Rules.LongURLThreshold = 0 }, "rule thresholds"},
		{"obfuscation length too large", func(c *Config) { c.Rules.ObfuscationLength = 1001 }, "obfuscation length"},
		{"confidence above 100", func(c *Config) { c.Threat.HighConfidence = 120 }, "high confidence"},
		{"bad blocked network", func(c *Config) { c.BlockedNetworks = []string{"10.0.0.0/33"} }, "blocked network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
model_path: /srv/models/gbdt.json
evidence:
  page_timeout: 4s
  join_grace: 250ms
  fetch_mode: browser
  block_private_networks: false
rules:
  brands: [acme, globex]
  long_url_threshold: 200
threat:
  high_confidence: 0
logging:
  level: debug
  format: json
`)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := Default()
	f.apply(cfg)

	if cfg.ModelPath != "/srv/models/gbdt.json" {
		t.Errorf("expected model path from file, got %s", cfg.ModelPath)
	}
	if cfg.PageTimeout != 4*time.Second || cfg.JoinGrace != 250*time.Millisecond {
		t.Errorf("unexpected durations: %s %s", cfg.PageTimeout, cfg.JoinGrace)
	}
	if cfg.WhoisTimeout != 2*time.Second {
		t.Errorf("expected whois timeout to keep its default, got %s", cfg.WhoisTimeout)
	}
	if cfg.FetchMode != FetchModeBrowser {
		t.Errorf("expected browser fetch mode, got %s", cfg.FetchMode)
	}
	if cfg.BlockPrivateNetworks {
		t.Error("expected private network blocking to be disabled by the file")
	}
	if len(cfg.Rules.Brands) != 2 || cfg.Rules.Brands[0] != "acme" {
		t.Errorf("unexpected brands: %v", cfg.Rules.Brands)
	}
	if len(cfg.Rules.Keywords) == 0 {
		t.Error("expected keywords to keep their defaults")
	}
	if cfg.Rules.LongURLThreshold != 200 || cfg.Rules.QueryParamsThreshold != 5 {
		t.Errorf("unexpected thresholds: %+v", cfg.Rules)
	}
	if cfg.Threat.HighConfidence != 0 {
		t.Errorf("expected explicit zero high confidence, got %v", cfg.Threat.HighConfidence)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("unexpected logging: %s %s", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestValidateAcceptsLogLevels(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "INFO", " warn ", "warning", "error"} {
		cfg := Default()
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected level %q to validate, got %v", level, err)
		}
	}

	cfg := Default()
	cfg.Rules.ObfuscationLength = 1000
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected obfuscation length 1000 to validate, got %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	path := writeConfig(t, "evidence:\n  page_timeout: soon\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "evidence.page_timeout") {
		t.Errorf("expected duration error, got %v", err)
	}

	path = writeConfig(t, "rules: [not, a, map]\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected YAML type error")
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	if _, err := FindConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound for explicit missing file, got %v", err)
	}

	path := writeConfig(t, "model_path: x.json\n")
	got, err := FindConfigFile(path)
	if err != nil || got != path {
		t.Errorf("expected %s, got %s (%v)", path, got, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "model_path: from-file.json\nevidence:\n  page_timeout: 4s\n")

	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvModelPath, "from-env.json")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvWhoisTimeout, "3s")
	t.Setenv(EnvFetchMode, "browser")
	t.Setenv(EnvChromePath, "/usr/bin/chromium")
	t.Setenv(EnvHighConfidence, "90")
	t.Setenv(EnvMaxBodySize, "1024")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfigFile != path {
		t.Errorf("expected config file %s, got %s", path, cfg.ConfigFile)
	}
	if cfg.ModelPath != "from-env.json" {
		t.Errorf("expected env to win over file, got %s", cfg.ModelPath)
	}
	if cfg.PageTimeout != 4*time.Second {
		t.Errorf("expected page timeout from file, got %s", cfg.PageTimeout)
	}
	if cfg.WhoisTimeout != 3*time.Second {
		t.Errorf("expected whois timeout from env, got %s", cfg.WhoisTimeout)
	}
	if cfg.Port != "9090" || cfg.FetchMode != FetchModeBrowser || cfg.ChromePath != "/usr/bin/chromium" {
		t.Errorf("unexpected env overrides: %+v", cfg)
	}
	if cfg.Threat.HighConfidence != 90 || cfg.MaxBodySize != 1024 {
		t.Errorf("unexpected numeric overrides: %v %d", cfg.Threat.HighConfidence, cfg.MaxBodySize)
	}
}

func TestLoadEnvErrors(t *testing.T) {
	path := writeConfig(t, "model_path: x.json\n")
	t.Setenv(EnvConfigFile, "")

	tests := []struct {
		env   string
		value string
	}{
		{EnvPageTimeout, "fast"},
		{EnvMaxBodySize, "huge"},
		{EnvHighConfidence, "very"},
		{EnvFetchMode, "telnet"},
		{EnvBlockPrivate, "maybe"},
		{EnvLogLevel, "chatty"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s=%s", tt.env, tt.value)
			}
		})
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, "static_dir: /srv/www\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StaticDir != "/srv/www" {
		t.Errorf("expected static dir from %s, got %s", EnvConfigFile, cfg.StaticDir)
	}
}
