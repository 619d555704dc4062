package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = "phishguard.yaml"

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file. Unset fields leave the defaults alone.
type File struct {
	ModelPath string `yaml:"model_path"`
	StaticDir string `yaml:"static_dir"`

	Evidence struct {
		ProbeTimeout string `yaml:"probe_timeout"`
		PageTimeout  string `yaml:"page_timeout"`
		WhoisTimeout string `yaml:"whois_timeout"`
		JoinGrace    string `yaml:"join_grace"`
		FetchMode    string `yaml:"fetch_mode"`
		UserAgent    string `yaml:"user_agent"`

		BlockPrivateNetworks *bool    `yaml:"block_private_networks"`
		BlockedNetworks      []string `yaml:"blocked_networks"`
	} `yaml:"evidence"`

	Rules struct {
		Brands               []string `yaml:"brands"`
		Keywords             []string `yaml:"keywords"`
		LongURLThreshold     int      `yaml:"long_url_threshold"`
		QueryParamsThreshold int      `yaml:"query_params_threshold"`
		ObfuscationLength    int      `yaml:"obfuscation_length"`
	} `yaml:"rules"`

	Threat struct {
		HighConfidence *float64 `yaml:"high_confidence"`
	} `yaml:"threat"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	durations map[string]time.Duration
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	f.durations = make(map[string]time.Duration)
	for key, raw := range map[string]string{
		"probe_timeout": f.Evidence.ProbeTimeout,
		"page_timeout":  f.Evidence.PageTimeout,
		"whois_timeout": f.Evidence.WhoisTimeout,
		"join_grace":    f.Evidence.JoinGrace,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("evidence.%s: %w", key, err)
		}
		f.durations[key] = d
	}
	return &f, nil
}

func (f *File) apply(c *Config) {
	if f.ModelPath != "" {
		c.ModelPath = f.ModelPath
	}
	if f.StaticDir != "" {
		c.StaticDir = f.StaticDir
	}

	if d, ok := f.durations["probe_timeout"]; ok {
		c.ProbeTimeout = d
	}
	if d, ok := f.durations["page_timeout"]; ok {
		c.PageTimeout = d
	}
	if d, ok := f.durations["whois_timeout"]; ok {
		c.WhoisTimeout = d
	}
	if d, ok := f.durations["join_grace"]; ok {
		c.JoinGrace = d
	}
	if f.Evidence.FetchMode != "" {
		c.FetchMode = f.Evidence.FetchMode
	}
	if f.Evidence.UserAgent != "" {
		c.UserAgent = f.Evidence.UserAgent
	}
	if f.Evidence.BlockPrivateNetworks != nil {
		c.BlockPrivateNetworks = *f.Evidence.BlockPrivateNetworks
	}
	if len(f.Evidence.BlockedNetworks) > 0 {
		c.BlockedNetworks = f.Evidence.BlockedNetworks
	}

	if len(f.Rules.Brands) > 0 {
		c.Rules.Brands = f.Rules.Brands
	}
	if len(f.Rules.Keywords) > 0 {
		c.Rules.Keywords = f.Rules.Keywords
	}
	if f.Rules.LongURLThreshold != 0 {
		c.Rules.LongURLThreshold = f.Rules.LongURLThreshold
	}
	if f.Rules.QueryParamsThreshold != 0 {
		c.Rules.QueryParamsThreshold = f.Rules.QueryParamsThreshold
	}
	if f.Rules.ObfuscationLength != 0 {
		c.Rules.ObfuscationLength = f.Rules.ObfuscationLength
	}
	if f.Threat.HighConfidence != nil {
		c.Threat.HighConfidence = *f.Threat.HighConfidence
	}

	if f.Logging.Level != "" {
		c.LogLevel = f.Logging.Level
	}
	if f.Logging.Format != "" {
		c.LogFormat = f.Logging.Format
	}
}

// FindConfigFile resolves the configuration file to use:
//  1. configPath, if given, which must exist
//  2. phishguard.yaml in the working directory
//  3. $XDG_CONFIG_HOME/phishguard/config.yaml
//
// It returns "" when no file is found and none was requested.
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return configPath, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	p := filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", nil
}
