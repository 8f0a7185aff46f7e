// ABOUTME: Configuration loading and parsing for coven-discord
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-discord configuration
type Config struct {
	Discord      DiscordConfig      `yaml:"discord" toml:"discord"`
	Gateway      GatewayConfig      `yaml:"gateway" toml:"gateway"`
	Interactions InteractionsConfig `yaml:"interactions" toml:"interactions"`
	Bot          BotConfig          `yaml:"bot" toml:"bot"`
	REST         RESTConfig         `yaml:"rest" toml:"rest"`
	Addons       AddonsConfig       `yaml:"addons" toml:"addons"`
	Dedupe       DedupeConfig       `yaml:"dedupe" toml:"dedupe"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
}

// DiscordConfig identifies the bot and the endpoints it talks to
type DiscordConfig struct {
	// GatewayURL is discovered through GET gateway/bot when empty
	GatewayURL    string `yaml:"gateway_url" toml:"gateway_url"`
	APIBaseURL    string `yaml:"api_base_url" toml:"api_base_url"`
	BotToken      string `yaml:"bot_token" toml:"bot_token"`
	ApplicationID string `yaml:"application_id" toml:"application_id"`
	Intents       int    `yaml:"intents" toml:"intents"`
}

// GatewayConfig holds session engine settings
type GatewayConfig struct {
	ThreadFactor     int           `yaml:"thread_factor" toml:"thread_factor"`
	ResumeStrategy   string        `yaml:"resume_strategy" toml:"resume_strategy"`
	MissedAckLimit   int           `yaml:"missed_ack_limit" toml:"missed_ack_limit"`
	ReconnectBackoff BackoffConfig `yaml:"reconnect_backoff" toml:"reconnect_backoff"`
	QueueSize        int           `yaml:"queue_size" toml:"queue_size"`

	WriteTimeout time.Duration `yaml:"-" toml:"-"`
	CloseTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
	CloseTimeoutRaw string `yaml:"close_timeout" toml:"close_timeout"`
}

// BackoffConfig shapes the delay between failed connection attempts
type BackoffConfig struct {
	Multiplier float64 `yaml:"multiplier" toml:"multiplier"`
	Jitter     float64 `yaml:"jitter" toml:"jitter"`

	InitialDelay time.Duration `yaml:"-" toml:"-"`
	MaxDelay     time.Duration `yaml:"-" toml:"-"`

	InitialDelayRaw string `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelayRaw     string `yaml:"max_delay" toml:"max_delay"`
}

// InteractionsConfig holds the interaction deadline race settings
type InteractionsConfig struct {
	Placeholder string `yaml:"placeholder" toml:"placeholder"`

	Deadline    time.Duration `yaml:"-" toml:"-"`
	DeadlineRaw string        `yaml:"deadline" toml:"deadline"`
}

// BotConfig holds the mention-trigger behavior
type BotConfig struct {
	Trigger string `yaml:"trigger" toml:"trigger"`
	Reply   string `yaml:"reply" toml:"reply"`
}

// RESTConfig holds REST side-channel settings
type RESTConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
	UserAgent         string  `yaml:"user_agent" toml:"user_agent"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// AddonsConfig holds settings for commands that call external services
type AddonsConfig struct {
	HTTPCat HTTPCatConfig `yaml:"http_cat" toml:"http_cat"`
}

// HTTPCatConfig points the http-cat command at its image host
type HTTPCatConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Suffix  string `yaml:"suffix" toml:"suffix"`
}

// DedupeConfig bounds the replayed-dispatch window
type DedupeConfig struct {
	MaxSize int `yaml:"max_size" toml:"max_size"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

const (
	// DefaultIntents is GuildMessages | MessageContent.
	DefaultIntents = 1<<9 | 1<<15

	// maxDeadline is the platform's interaction callback window.
	maxDeadline = 3 * time.Second
)

// Default returns a configuration with every optional field filled in,
// durations already parsed.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			APIBaseURL: "https://discord.com/api/v10",
			Intents:    DefaultIntents,
		},
		Gateway: GatewayConfig{
			ThreadFactor:    4,
			ResumeStrategy:  "resume",
			MissedAckLimit:  1,
			QueueSize:       64,
			WriteTimeout:    10 * time.Second,
			CloseTimeout:    5 * time.Second,
			WriteTimeoutRaw: "10s",
			CloseTimeoutRaw: "5s",
			ReconnectBackoff: BackoffConfig{
				Multiplier:      2,
				Jitter:          0.2,
				InitialDelay:    time.Second,
				MaxDelay:        time.Minute,
				InitialDelayRaw: "1s",
				MaxDelayRaw:     "1m",
			},
		},
		Interactions: InteractionsConfig{
			Placeholder: "Give me a second, still thinking...",
			Deadline:    2200 * time.Millisecond,
			DeadlineRaw: "2200ms",
		},
		Bot: BotConfig{
			Trigger: "ping",
			Reply:   "pong",
		},
		REST: RESTConfig{
			RequestsPerSecond: 40,
			Burst:             10,
			Timeout:           15 * time.Second,
			TimeoutRaw:        "15s",
		},
		Addons: AddonsConfig{
			HTTPCat: HTTPCatConfig{
				BaseURL: "https://http.cat/",
				Suffix:  ".jpg",
			},
		},
		Dedupe: DedupeConfig{
			MaxSize: 10000,
			TTL:     10 * time.Minute,
			TTLRaw:  "10m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
			Path: "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("discord.bot_token is required")
	}
	if c.Discord.APIBaseURL == "" {
		return fmt.Errorf("discord.api_base_url is required")
	}
	if c.Discord.Intents < 0 {
		return fmt.Errorf("discord.intents must not be negative")
	}

	if c.Gateway.ThreadFactor < 1 {
		return fmt.Errorf("gateway.thread_factor must be at least 1, got %d", c.Gateway.ThreadFactor)
	}
	switch c.Gateway.ResumeStrategy {
	case "resume", "identify":
	default:
		return fmt.Errorf("gateway.resume_strategy must be resume or identify, got %q", c.Gateway.ResumeStrategy)
	}
	if c.Gateway.MissedAckLimit < 1 {
		return fmt.Errorf("gateway.missed_ack_limit must be at least 1, got %d", c.Gateway.MissedAckLimit)
	}
	b := c.Gateway.ReconnectBackoff
	if b.Multiplier < 1 {
		return fmt.Errorf("gateway.reconnect_backoff.multiplier must be at least 1")
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("gateway.reconnect_backoff.jitter must be between 0 and 1")
	}
	if b.InitialDelay <= 0 || b.MaxDelay < b.InitialDelay {
		return fmt.Errorf("gateway.reconnect_backoff needs 0 < initial_delay <= max_delay")
	}

	if c.Interactions.Deadline <= 0 || c.Interactions.Deadline >= maxDeadline {
		return fmt.Errorf("interactions.deadline must be between 0 and %s, got %s", maxDeadline, c.Interactions.Deadline)
	}

	if c.Bot.Trigger == "" {
		return fmt.Errorf("bot.trigger is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
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
		{"gateway.write_timeout", cfg.Gateway.WriteTimeoutRaw, &cfg.Gateway.WriteTimeout},
		{"gateway.close_timeout", cfg.Gateway.CloseTimeoutRaw, &cfg.Gateway.CloseTimeout},
		{"gateway.reconnect_backoff.initial_delay", cfg.Gateway.ReconnectBackoff.InitialDelayRaw, &cfg.Gateway.ReconnectBackoff.InitialDelay},
		{"gateway.reconnect_backoff.max_delay", cfg.Gateway.ReconnectBackoff.MaxDelayRaw, &cfg.Gateway.ReconnectBackoff.MaxDelay},
		{"interactions.deadline", cfg.Interactions.DeadlineRaw, &cfg.Interactions.Deadline},
		{"rest.timeout", cfg.REST.TimeoutRaw, &cfg.REST.Timeout},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
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
