// Package config loads phishguard settings from defaults, an optional YAML
// file, and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"phishguard/detection"
)

// Default configuration values.
const (
	DefaultPort         = "8080"
	DefaultModelPath    = "models/phishing_model.json"
	DefaultStaticDir    = "dist"
	DefaultProbeTimeout = 3 * time.Second
	DefaultFetchMode    = FetchModeHTTP
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"

	// AppName is used for the XDG config directory.
	AppName = "phishguard"
)

// Page fetch modes.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Environment variable names.
const (
	EnvPort           = "PORT"
	EnvConfigFile     = "PHISHGUARD_CONFIG"
	EnvModelPath      = "PHISHGUARD_MODEL_PATH"
	EnvStaticDir      = "PHISHGUARD_STATIC_DIR"
	EnvProbeTimeout   = "PHISHGUARD_PROBE_TIMEOUT"
	EnvPageTimeout    = "PHISHGUARD_PAGE_TIMEOUT"
	EnvWhoisTimeout   = "PHISHGUARD_WHOIS_TIMEOUT"
	EnvJoinGrace      = "PHISHGUARD_JOIN_GRACE"
	EnvFetchMode      = "PHISHGUARD_FETCH_MODE"
	EnvChromePath     = "CHROME_PATH"
	EnvUserAgent      = "PHISHGUARD_USER_AGENT"
	EnvMaxBodySize    = "PHISHGUARD_MAX_BODY_SIZE"
	EnvBlockPrivate   = "PHISHGUARD_BLOCK_PRIVATE_NETWORKS"
	EnvHighConfidence = "PHISHGUARD_HIGH_CONFIDENCE"
	EnvLogLevel       = "PHISHGUARD_LOG_LEVEL"
	EnvLogFormat      = "PHISHGUARD_LOG_FORMAT"
)

// Config holds every runtime setting. It is built once at startup and passed
// down explicitly.
type Config struct {
	Port      string
	ModelPath string
	StaticDir string

	ProbeTimeout time.Duration
	PageTimeout  time.Duration
	WhoisTimeout time.Duration
	JoinGrace    time.Duration

	// FetchMode selects the page fetcher: "http" or "browser".
	FetchMode   string
	ChromePath  string
	UserAgent   string
	MaxBodySize int64

	// BlockPrivateNetworks keeps page fetches away from BlockedNetworks.
	BlockPrivateNetworks bool
	BlockedNetworks      []string

	MaxURLLength int
	Rules        detection.RuleConfig
	Threat       detection.ThreatThresholds

	LogLevel  string
	LogFormat string

	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:         DefaultPort,
		ModelPath:    DefaultModelPath,
		StaticDir:    DefaultStaticDir,
		ProbeTimeout: DefaultProbeTimeout,
		PageTimeout:  detection.DefaultPageTimeout,
		WhoisTimeout: detection.DefaultWhoisTimeout,
		JoinGrace:    detection.DefaultJoinGrace,
		FetchMode:    DefaultFetchMode,
		UserAgent:    detection.DefaultUserAgent,
		MaxBodySize:  detection.DefaultMaxBodySize,
		MaxURLLength: detection.DefaultMaxURLLength,

		BlockPrivateNetworks: true,
		BlockedNetworks:      detection.DefaultBlockedNetworks,

		Rules:     detection.DefaultRuleConfig(),
		Threat:    detection.DefaultThreatThresholds(),
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present. configPath, when set, must name an existing YAML
// file; otherwise the usual locations are searched.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigFile)
	}
	path, err := FindConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		f.apply(cfg)
		cfg.ConfigFile = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, EnvPort)
	setString(&c.ModelPath, EnvModelPath)
	setString(&c.StaticDir, EnvStaticDir)
	setString(&c.FetchMode, EnvFetchMode)
	setString(&c.ChromePath, EnvChromePath)
	setString(&c.UserAgent, EnvUserAgent)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.LogFormat, EnvLogFormat)

	durations := []struct {
		dst *time.Duration
		env string
	}{
		{&c.ProbeTimeout, EnvProbeTimeout},
		{&c.PageTimeout, EnvPageTimeout},
		{&c.WhoisTimeout, EnvWhoisTimeout},
		{&c.JoinGrace, EnvJoinGrace},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.env); err != nil {
			return err
		}
	}

	if v := os.Getenv(EnvMaxBodySize); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxBodySize, err)
		}
		c.MaxBodySize = n
	}
	if v := os.Getenv(EnvBlockPrivate); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBlockPrivate, err)
		}
		c.BlockPrivateNetworks = b
	}
	if v := os.Getenv(EnvHighConfidence); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHighConfidence, err)
		}
		c.Threat.HighConfidence = f
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"probe timeout": c.ProbeTimeout,
		"page timeout":  c.PageTimeout,
		"whois timeout": c.WhoisTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.JoinGrace < 0 {
		errs = append(errs, fmt.Errorf("join grace must not be negative, got %s", c.JoinGrace))
	}
	switch c.FetchMode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		errs = append(errs, fmt.Errorf("unknown fetch mode %q", c.FetchMode))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	for _, cidr := range c.BlockedNetworks {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("blocked network: %w", err))
		}
	}
	if c.Rules.LongURLThreshold <= 0 || c.Rules.QueryParamsThreshold <= 0 || c.Rules.ObfuscationLength <= 0 {
		errs = append(errs, errors.New("rule thresholds must be positive"))
	}
	if c.Rules.ObfuscationLength > detection.MaxObfuscationLength {
		errs = append(errs, fmt.Errorf("obfuscation length must be at most %d, got %d", detection.MaxObfuscationLength, c.Rules.ObfuscationLength))
	}
	if c.Threat.HighConfidence < 0 || c.Threat.HighConfidence > 100 {
		errs = append(errs, fmt.Errorf("high confidence threshold must be within [0, 100], got %v", c.Threat.HighConfidence))
	}
	return errors.Join(errs...)
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = d
	return nil
}
