package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/recach/recach/internal/storage"
)

// Duration is a time.Duration that reads "30s" / "15m" style strings from
// TOML and YAML files.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration
func D(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the client configuration
type Config struct {
	Env     string        `toml:"env" yaml:"env"`
	API     APIConfig     `toml:"api" yaml:"api"`
	Storage StorageConfig `toml:"storage" yaml:"storage"`
	Session SessionConfig `toml:"session" yaml:"session"`
	Polling PollingConfig `toml:"polling" yaml:"polling"`
	Forms   FormsConfig   `toml:"forms" yaml:"forms"`
	UI      UIConfig      `toml:"ui" yaml:"ui"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Live    LiveConfig    `toml:"live" yaml:"live"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// APIConfig holds remote API settings
type APIConfig struct {
	Base           string   `toml:"base" yaml:"base"`
	BaseURL        string   `toml:"base_url" yaml:"base_url"`
	Timeout        Duration `toml:"timeout" yaml:"timeout"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" yaml:"rate_limit_burst"`
	Breaker        bool     `toml:"breaker" yaml:"breaker"`
}

// StorageConfig selects the client-local persisted storage
type StorageConfig struct {
	Backend     string `toml:"backend" yaml:"backend"`
	Path        string `toml:"path" yaml:"path"`
	RedisAddr   string `toml:"redis_addr" yaml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix" yaml:"redis_prefix"`
	Watch       bool   `toml:"watch" yaml:"watch"`
}

// SessionConfig holds session lifetime settings
type SessionConfig struct {
	IdleTimeout      Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	ValidateInterval Duration `toml:"validate_interval" yaml:"validate_interval"`
}

// PollingConfig holds per-screen refresh periods
type PollingConfig struct {
	Feed        Duration `toml:"feed" yaml:"feed"`
	Inbox       Duration `toml:"inbox" yaml:"inbox"`
	Badge       Duration `toml:"badge" yaml:"badge"`
	Leaderboard Duration `toml:"leaderboard" yaml:"leaderboard"`
	Profile     Duration `toml:"profile" yaml:"profile"`
	Search      Duration `toml:"search" yaml:"search"`
	Circle      Duration `toml:"circle" yaml:"circle"`
	Reflections Duration `toml:"reflections" yaml:"reflections"`
}

// FormsConfig holds submission form settings
type FormsConfig struct {
	Cooldown Duration `toml:"cooldown" yaml:"cooldown"`
}

// UIConfig holds terminal UI preferences
type UIConfig struct {
	Theme string `toml:"theme" yaml:"theme"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

// LiveConfig enables the websocket push subscription
type LiveConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// MetricsConfig holds the prometheus listener used by the watch command
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the default client configuration
func Default() *Config {
	return &Config{
		Env: "development",
		API: APIConfig{
			Base:           "http://localhost:8000",
			Timeout:        D(15 * time.Second),
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			Breaker:        true,
		},
		Storage: StorageConfig{
			Backend:     "file",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "recach:",
			Watch:       true,
		},
		Session: SessionConfig{
			IdleTimeout:      D(30 * time.Minute),
			ValidateInterval: D(60 * time.Second),
		},
		Polling: PollingConfig{
			Feed:        D(15 * time.Second),
			Inbox:       D(15 * time.Second),
			Badge:       D(15 * time.Second),
			Leaderboard: D(30 * time.Second),
			Profile:     D(30 * time.Second),
			Search:      D(30 * time.Second),
			Circle:      D(30 * time.Second),
			Reflections: D(60 * time.Second),
		},
		Forms: FormsConfig{Cooldown: D(20 * time.Second)},
		UI:    UIConfig{Theme: "recach"},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   "~/.recach/recach.log",
		},
	}
}

// SearchPaths lists the files tried, in order, when no config path is given
func SearchPaths() []string {
	return []string{
		"./recach.toml",
		"./config/recach.toml",
		os.ExpandEnv("$HOME/.config/recach/recach.toml"),
		"~/.recach/config.toml",
	}
}

// Load reads the configuration. An empty path searches SearchPaths and falls
// back to defaults when none exists. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(ExpandHome(candidate)); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		if err := cfg.loadFile(ExpandHome(path)); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from RECACH_* environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("RECACH_API_BASE"); ok {
		c.API.Base = v
	}
	if v, ok := lookup("RECACH_API_BASE_URL"); ok {
		c.API.BaseURL = v
	}
	if v, ok := lookup("RECACH_ENV"); ok && v != "" {
		c.Env = v
	}
	if v, ok := lookup("RECACH_STORAGE"); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := lookup("RECACH_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("RECACH_LIVE"); ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Live.Enabled = enabled
		}
	}
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}

	positive := map[string]Duration{
		"session.idle_timeout":      c.Session.IdleTimeout,
		"session.validate_interval": c.Session.ValidateInterval,
		"polling.feed":              c.Polling.Feed,
		"polling.inbox":             c.Polling.Inbox,
		"polling.badge":             c.Polling.Badge,
		"polling.leaderboard":       c.Polling.Leaderboard,
		"polling.profile":           c.Polling.Profile,
		"polling.search":            c.Polling.Search,
		"polling.circle":            c.Polling.Circle,
		"polling.reflections":       c.Polling.Reflections,
	}
	for key, d := range positive {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// IsProduction reports whether production-only rules apply
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

var localBase = regexp.MustCompile(`localhost|127\.0\.0\.1`)

// ResolveAPIBase picks the API origin. Outside production the first of
// api.base and api.base_url wins. In production a local candidate is swapped
// for api.base_url when that one is remote, and otherwise dropped. The second
// return value is false when production ends up with no usable base.
func (c *Config) ResolveAPIBase() (string, bool) {
	candidate := c.API.Base
	if candidate == "" {
		candidate = c.API.BaseURL
	}

	if !c.IsProduction() {
		return candidate, true
	}

	resolved := candidate
	if localBase.MatchString(candidate) {
		resolved = ""
		if c.API.BaseURL != "" && !localBase.MatchString(c.API.BaseURL) {
			resolved = c.API.BaseURL
		}
	}
	return resolved, resolved != ""
}

// StorageOptions converts the storage section into backend options
func (c *Config) StorageOptions() storage.Options {
	path := c.Storage.Path
	if path == "" {
		switch c.Storage.Backend {
		case "sqlite":
			path = "~/.recach/storage.db"
		default:
			path = "~/.recach/storage.json"
		}
	}

	return storage.Options{
		Backend:     c.Storage.Backend,
		Path:        ExpandHome(path),
		RedisAddr:   c.Storage.RedisAddr,
		RedisPrefix: c.Storage.RedisPrefix,
	}
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
