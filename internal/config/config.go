// ABOUTME: Configuration loading and parsing for botline
// ABOUTME: Supports TOML or YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Frontend kinds
const (
	FrontendTwitter = "twitter"
	FrontendMatrix  = "matrix"
)

// Defaults applied by Load when a value is not set
const (
	DefaultDirectLineBaseURL  = "https://directline.botframework.com"
	DefaultDirectLinePoll     = 2 * time.Second
	DefaultTwitterAPIBase     = "https://api.twitter.com"
	DefaultTwitterPoll        = 30 * time.Second
	DefaultCacheTTL           = 30 * time.Second
	DefaultRetryInterval      = 5 * time.Second
	DefaultDedupeTTL          = 10 * time.Minute
	DefaultDedupeSize         = 10000
	DefaultMetricsInterval    = 30 * time.Second
	DefaultBotUserName        = "botline"
	defaultConfigDirName      = "botline"
	defaultConfigFileName     = "botline.toml"
	defaultLedgerDatabaseName = "ledger.db"
)

// Config represents the complete botline configuration
type Config struct {
	Frontend   string           `toml:"frontend" yaml:"frontend"`
	DirectLine DirectLineConfig `toml:"directline" yaml:"directline"`
	Twitter    TwitterConfig    `toml:"twitter" yaml:"twitter"`
	Matrix     MatrixConfig     `toml:"matrix" yaml:"matrix"`
	Bridge     BridgeConfig     `toml:"bridge" yaml:"bridge"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
}

// DirectLineConfig holds the Bot Framework Direct Line connection settings
type DirectLineConfig struct {
	Secret  string `toml:"secret" yaml:"secret"`
	BaseURL string `toml:"base_url" yaml:"base_url"`

	// BotUserID and BotUserName identify the bridge itself; replies sent
	// from this account are ignored.
	BotUserID   string `toml:"bot_user_id" yaml:"bot_user_id"`
	BotUserName string `toml:"bot_user_name" yaml:"bot_user_name"`

	PollInterval    time.Duration `toml:"-" yaml:"-"`
	PollIntervalRaw string        `toml:"poll_interval" yaml:"poll_interval"`
}

// TwitterConfig holds Twitter direct message settings
type TwitterConfig struct {
	BearerToken string `toml:"bearer_token" yaml:"bearer_token"`
	UserID      string `toml:"user_id" yaml:"user_id"`
	APIBase     string `toml:"api_base" yaml:"api_base"`

	PollInterval    time.Duration `toml:"-" yaml:"-"`
	PollIntervalRaw string        `toml:"poll_interval" yaml:"poll_interval"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Homeserver   string   `toml:"homeserver" yaml:"homeserver"`
	UserID       string   `toml:"user_id" yaml:"user_id"`
	AccessToken  string   `toml:"access_token" yaml:"access_token"`
	AllowedRooms []string `toml:"allowed_rooms" yaml:"allowed_rooms"`
}

// BridgeConfig holds correlation timing configuration
type BridgeConfig struct {
	CacheTTL      time.Duration `toml:"-" yaml:"-"`
	RetryInterval time.Duration `toml:"-" yaml:"-"`
	DedupeTTL     time.Duration `toml:"-" yaml:"-"`
	DedupeSize    int           `toml:"dedupe_size" yaml:"dedupe_size"`

	// Raw string values for unmarshaling
	CacheTTLRaw      string `toml:"cache_ttl" yaml:"cache_ttl"`
	RetryIntervalRaw string `toml:"retry_interval" yaml:"retry_interval"`
	DedupeTTLRaw     string `toml:"dedupe_ttl" yaml:"dedupe_ttl"`
}

// DatabaseConfig holds ledger database configuration.
// An empty path disables the ledger.
type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// ServerConfig holds the status endpoint address.
// An empty address disables the HTTP server.
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds OTLP metrics export configuration
type MetricsConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint" yaml:"otlp_endpoint"`

	Interval    time.Duration `toml:"-" yaml:"-"`
	IntervalRaw string        `toml:"interval" yaml:"interval"`
}

// DefaultPath returns the path to the config file.
// Priority: BOTLINE_CONFIG env var > XDG_CONFIG_HOME/botline/botline.toml > ~/.config/botline/botline.toml
func DefaultPath() string {
	if envPath := os.Getenv("BOTLINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return defaultConfigFileName // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, defaultConfigDirName, defaultConfigFileName)
}

// DefaultDatabasePath returns the ledger location under the XDG data directory.
// Priority: XDG_DATA_HOME/botline/ledger.db > ~/.local/share/botline/ledger.db
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return defaultLedgerDatabaseName // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, defaultConfigDirName, defaultLedgerDatabaseName)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, formatFromPath(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration content in the given format ("toml" or "yaml").
func Parse(data []byte, format string) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "yaml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values left unset by the file
func (c *Config) applyDefaults() {
	if c.Frontend == "" {
		c.Frontend = FrontendTwitter
	}
	if c.DirectLine.BaseURL == "" {
		c.DirectLine.BaseURL = DefaultDirectLineBaseURL
	}
	if c.DirectLine.PollInterval == 0 {
		c.DirectLine.PollInterval = DefaultDirectLinePoll
	}
	if c.DirectLine.BotUserName == "" {
		c.DirectLine.BotUserName = DefaultBotUserName
	}
	if c.DirectLine.BotUserID == "" {
		c.DirectLine.BotUserID = c.DirectLine.BotUserName
	}
	if c.Twitter.APIBase == "" {
		c.Twitter.APIBase = DefaultTwitterAPIBase
	}
	if c.Twitter.PollInterval == 0 {
		c.Twitter.PollInterval = DefaultTwitterPoll
	}
	if c.Bridge.CacheTTL == 0 {
		c.Bridge.CacheTTL = DefaultCacheTTL
	}
	if c.Bridge.RetryInterval == 0 {
		c.Bridge.RetryInterval = DefaultRetryInterval
	}
	if c.Bridge.DedupeTTL == 0 {
		c.Bridge.DedupeTTL = DefaultDedupeTTL
	}
	if c.Bridge.DedupeSize == 0 {
		c.Bridge.DedupeSize = DefaultDedupeSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = DefaultMetricsInterval
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.DirectLine.Secret == "" {
		return fmt.Errorf("directline.secret is required")
	}
	if err := validateHTTPURL("directline.base_url", c.DirectLine.BaseURL); err != nil {
		return err
	}

	switch c.Frontend {
	case FrontendTwitter:
		if c.Twitter.BearerToken == "" {
			return fmt.Errorf("twitter.bearer_token is required")
		}
		if c.Twitter.UserID == "" {
			return fmt.Errorf("twitter.user_id is required")
		}
		if err := validateHTTPURL("twitter.api_base", c.Twitter.APIBase); err != nil {
			return err
		}
	case FrontendMatrix:
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required")
		}
		if err := validateHTTPURL("matrix.homeserver", c.Matrix.Homeserver); err != nil {
			return err
		}
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required")
		}
	default:
		return fmt.Errorf("frontend must be %q or %q, got %q", FrontendTwitter, FrontendMatrix, c.Frontend)
	}

	if c.Bridge.CacheTTL < 0 {
		return fmt.Errorf("bridge.cache_ttl must be positive")
	}
	if c.Bridge.RetryInterval < 0 {
		return fmt.Errorf("bridge.retry_interval must be positive")
	}
	if c.Bridge.DedupeSize < 0 {
		return fmt.Errorf("bridge.dedupe_size must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.OTLPEndpoint == "" {
		return fmt.Errorf("metrics.otlp_endpoint is required when metrics are enabled")
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"directline.poll_interval", cfg.DirectLine.PollIntervalRaw, &cfg.DirectLine.PollInterval},
		{"twitter.poll_interval", cfg.Twitter.PollIntervalRaw, &cfg.Twitter.PollInterval},
		{"bridge.cache_ttl", cfg.Bridge.CacheTTLRaw, &cfg.Bridge.CacheTTL},
		{"bridge.retry_interval", cfg.Bridge.RetryIntervalRaw, &cfg.Bridge.RetryInterval},
		{"bridge.dedupe_ttl", cfg.Bridge.DedupeTTLRaw, &cfg.Bridge.DedupeTTL},
		{"metrics.interval", cfg.Metrics.IntervalRaw, &cfg.Metrics.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
