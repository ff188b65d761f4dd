// Package config loads marketd configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it parses from YAML strings ("30s") and
// environment variables alike.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Decode implements envdecode.Decoder.
func (d *Duration) Decode(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string   `yaml:"host" env:"MARKETD_SERVER_HOST"`
	Port         int      `yaml:"port" env:"MARKETD_SERVER_PORT"`
	ReadTimeout  Duration `yaml:"readTimeout" env:"MARKETD_SERVER_READ_TIMEOUT"`
	WriteTimeout Duration `yaml:"writeTimeout" env:"MARKETD_SERVER_WRITE_TIMEOUT"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig controls persistence. An empty URL selects the in-memory
// store.
type DatabaseConfig struct {
	URL          string `yaml:"url" env:"MARKETD_DATABASE_URL"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"MARKETD_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" env:"MARKETD_DATABASE_MAX_IDLE_CONNS"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"MARKETD_LOG_LEVEL"`
	Format string `yaml:"format" env:"MARKETD_LOG_FORMAT"`
}

// TokenizationConfig selects and addresses the tokenization collaborator.
// Enabled=false uses the mock collaborator with synthetic identifiers.
type TokenizationConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MARKETD_TOKENIZATION_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"MARKETD_TOKENIZATION_ENDPOINT"`
	APIKey   string `yaml:"apiKey" env:"MARKETD_TOKENIZATION_API_KEY"`
}

// EndpointConfig addresses one HTTP collaborator. An empty endpoint selects
// the mock.
type EndpointConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// CollaboratorConfig bounds calls to all collaborators.
type CollaboratorConfig struct {
	Timeout Duration `yaml:"timeout" env:"MARKETD_COLLABORATOR_TIMEOUT"`
}

// AuctionConfig parameterizes the auction engine.
type AuctionConfig struct {
	BidIncrementPct    float64 `yaml:"bidIncrementPct" env:"MARKETD_AUCTION_BID_INCREMENT_PCT"`
	MinDurationSeconds int64   `yaml:"minDurationSeconds" env:"MARKETD_AUCTION_MIN_DURATION_SECONDS"`
	MaxDurationSeconds int64   `yaml:"maxDurationSeconds" env:"MARKETD_AUCTION_MAX_DURATION_SECONDS"`
}

// SchedulerConfig controls the auction clock.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tickInterval" env:"MARKETD_SCHEDULER_TICK_INTERVAL"`
}

// ReconcilerConfig controls the stuck-transaction reconciler.
type ReconcilerConfig struct {
	Enabled    bool     `yaml:"enabled" env:"MARKETD_RECONCILER_ENABLED"`
	Interval   Duration `yaml:"interval" env:"MARKETD_RECONCILER_INTERVAL"`
	StuckAfter Duration `yaml:"stuckAfter" env:"MARKETD_RECONCILER_STUCK_AFTER"`
}

// PaginationConfig bounds list queries.
type PaginationConfig struct {
	DefaultLimit int `yaml:"defaultLimit" env:"MARKETD_PAGINATION_DEFAULT_LIMIT"`
	MaxLimit     int `yaml:"maxLimit" env:"MARKETD_PAGINATION_MAX_LIMIT"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" env:"MARKETD_RATELIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"MARKETD_RATELIMIT_BURST"`
}

// AuditConfig controls the audit trail sink.
type AuditConfig struct {
	File string `yaml:"file" env:"MARKETD_AUDIT_FILE"`
}

// CORSConfig controls cross-origin access.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Config is the full marketd configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tokenization TokenizationConfig `yaml:"tokenization"`
	Escrow       EndpointConfig     `yaml:"escrow"`
	Payment      EndpointConfig     `yaml:"payment"`
	Transfer     EndpointConfig     `yaml:"transfer"`
	KYC          EndpointConfig     `yaml:"kyc"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`
	Auction      AuctionConfig      `yaml:"auction"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Pagination   PaginationConfig   `yaml:"pagination"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Audit        AuditConfig        `yaml:"audit"`
	CORS         CORSConfig         `yaml:"cors"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Collaborator: CollaboratorConfig{
			Timeout: Duration{30 * time.Second},
		},
		Auction: AuctionConfig{
			BidIncrementPct:    0.05,
			MinDurationSeconds: 3600,
			MaxDurationSeconds: 2592000,
		},
		Scheduler: SchedulerConfig{
			TickInterval: Duration{30 * time.Second},
		},
		Reconciler: ReconcilerConfig{
			Enabled:    true,
			Interval:   Duration{time.Minute},
			StuckAfter: Duration{10 * time.Minute},
		},
		Pagination: PaginationConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus environment
// overrides when the file does not exist.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := applyEnv(&cfg); err != nil {
			return Config{}, err
		}
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return Load(path)
}

func applyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return fmt.Errorf("apply env overrides: %w", err)
	}
	return nil
}

// Validate rejects configurations the engines cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Auction.BidIncrementPct <= 0 || c.Auction.BidIncrementPct >= 1 {
		return fmt.Errorf("auction.bidIncrementPct must be in (0, 1), got %v", c.Auction.BidIncrementPct)
	}
	if c.Auction.MinDurationSeconds <= 0 {
		return fmt.Errorf("auction.minDurationSeconds must be positive")
	}
	if c.Auction.MinDurationSeconds > c.Auction.MaxDurationSeconds {
		return fmt.Errorf("auction.minDurationSeconds exceeds maxDurationSeconds")
	}
	if c.Scheduler.TickInterval.Duration <= 0 {
		return fmt.Errorf("scheduler.tickInterval must be positive")
	}
	if c.Reconciler.Interval.Duration <= 0 {
		return fmt.Errorf("reconciler.interval must be positive")
	}
	if c.Reconciler.StuckAfter.Duration <= 0 {
		return fmt.Errorf("reconciler.stuckAfter must be positive")
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit <= 0 {
		return fmt.Errorf("pagination limits must be positive")
	}
	if c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return fmt.Errorf("pagination.defaultLimit exceeds maxLimit")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit values must be positive")
	}
	if c.Tokenization.Enabled && c.Tokenization.Endpoint == "" {
		return fmt.Errorf("tokenization.endpoint is required when tokenization is enabled")
	}
	return nil
}
