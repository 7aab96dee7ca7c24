package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/gigwatch/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
	MusicBrainz UpstreamConfig    `yaml:"musicbrainz"`
	Songkick    UpstreamConfig    `yaml:"songkick"`
	Bandsintown UpstreamConfig    `yaml:"bandsintown"`
	Matching    MatchingConfig    `yaml:"matching"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Shortener   ShortenerConfig   `yaml:"shortener"`
	Reporting   ReportingConfig   `yaml:"reporting"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     logging.Config    `yaml:"logging"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SpotifyConfig holds Spotify app credentials for client-credentials auth.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// UpstreamConfig holds per-upstream HTTP client settings.
type UpstreamConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Retries        int     `yaml:"retries"`
	ThrottleCode   int     `yaml:"throttle_code"`
	DelaySeconds   float64 `yaml:"delay_seconds"`
}

// MatchingConfig holds name-matching engine settings.
type MatchingConfig struct {
	FuzzyThreshold int `yaml:"fuzzy_threshold"`
}

// TrackerConfig holds batch reconciliation settings.
type TrackerConfig struct {
	ArtistsPerMinute int `yaml:"artists_per_minute"`
	Concurrency      int `yaml:"concurrency"`
}

// ShortenerConfig holds URL shortener settings.
type ShortenerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ReportingConfig holds outbound error tracking settings.
type ReportingConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// HTTPConfig holds settings shared by all outbound clients.
type HTTPConfig struct {
	UserAgent string `yaml:"user_agent"`
	ProxyURL  string `yaml:"proxy_url"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/data/gigwatch.db",
		},
		MusicBrainz: UpstreamConfig{
			BaseURL:        "https://musicbrainz.org/ws/2",
			TimeoutSeconds: 20,
			Retries:        10,
			ThrottleCode:   503,
			DelaySeconds:   1.0,
		},
		Songkick: UpstreamConfig{
			BaseURL:        "https://www.songkick.com",
			TimeoutSeconds: 20,
			Retries:        10,
			ThrottleCode:   429,
		},
		Bandsintown: UpstreamConfig{
			BaseURL:        "https://www.bandsintown.com",
			TimeoutSeconds: 20,
			Retries:        10,
			ThrottleCode:   403,
		},
		Matching: MatchingConfig{
			FuzzyThreshold: 85,
		},
		Tracker: TrackerConfig{
			ArtistsPerMinute: 30,
			Concurrency:      4,
		},
		Shortener: ShortenerConfig{
			BaseURL: "https://gw.fyi",
		},
		HTTP: HTTPConfig{
			UserAgent: "gigwatch (https://github.com/sydlexius/gigwatch)",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("GW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GW_SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("GW_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("GW_SENTRY_DSN"); v != "" {
		c.Reporting.SentryDSN = v
	}
	if v := os.Getenv("GW_PROXY_URL"); v != "" {
		c.HTTP.ProxyURL = v
	}
	if v := os.Getenv("GW_USER_AGENT"); v != "" {
		c.HTTP.UserAgent = v
	}
	if v := os.Getenv("GW_SHORTENER_BASE_URL"); v != "" {
		c.Shortener.BaseURL = v
	}
	if v := os.Getenv("GW_FUZZY_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Matching.FuzzyThreshold = n
		}
	}
	if v := os.Getenv("GW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 100 {
		return fmt.Errorf("invalid fuzzy threshold: %d", c.Matching.FuzzyThreshold)
	}
	for name, u := range map[string]UpstreamConfig{
		"musicbrainz": c.MusicBrainz,
		"songkick":    c.Songkick,
		"bandsintown": c.Bandsintown,
	} {
		if u.BaseURL == "" {
			return fmt.Errorf("%s base URL is required", name)
		}
		if u.Retries < 1 {
			return fmt.Errorf("%s retries must be at least 1", name)
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}
