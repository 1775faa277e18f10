// Package config provides unified configuration loading for the Atlas retrieval engine.
// Supports YAML files, a .env file, environment variables, and programmatic overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingKey is returned when a required credential is absent.
var ErrMissingKey = errors.New("missing required key")

// Config holds all configuration for the retrieval engine.
type Config struct {
	RootPath      string              `yaml:"root_path"`
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Corpus        CorpusConfig        `yaml:"corpus"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Sessions      SessionConfig       `yaml:"sessions"`
	Generator     GeneratorConfig     `yaml:"generator"`
	Weather       WeatherConfig       `yaml:"weather"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// AuthConfig holds the shared client key checked on every query.
type AuthConfig struct {
	ClientAPIKey string `yaml:"client_api_key"`
}

// CorpusConfig holds knowledge directory settings.
type CorpusConfig struct {
	Dir           string        `yaml:"dir"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// RetrievalConfig holds ranking and assembly constants.
type RetrievalConfig struct {
	TopN                   int         `yaml:"top_n"`
	MinWorkingSet          int         `yaml:"min_working_set"`
	MaxChunks              int         `yaml:"max_chunks"`
	TokenBudget            int         `yaml:"token_budget"`
	LowConfidenceThreshold float64     `yaml:"low_confidence_threshold"`
	MaxExpansionLength     int         `yaml:"max_expansion_length"`
	FuzzyRatio             float64     `yaml:"fuzzy_ratio"`
	FactMultiplier         float64     `yaml:"fact_multiplier"`
	VehicleFilterMinimum   int         `yaml:"vehicle_filter_minimum"`
	Boosts                 BoostConfig `yaml:"boosts"`
	RuleOrder              []string    `yaml:"rule_order"`
}

// BoostConfig holds the additive re-ranking boosts.
type BoostConfig struct {
	Area          float64 `yaml:"area"`
	City          float64 `yaml:"city"`
	Vehicle       float64 `yaml:"vehicle"`
	PerfectMatch  float64 `yaml:"perfect_match"`
	ForceAddFloor float64 `yaml:"force_add_floor"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// GeneratorConfig holds settings for the OpenAI-compatible answer generator.
type GeneratorConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"`
	Burst           int           `yaml:"burst"`
	// ClassifyCacheTTL memoizes knowledge/chat decisions in the session
	// backend. Zero disables it.
	ClassifyCacheTTL time.Duration `yaml:"classify_cache_ttl"`
}

// WeatherConfig holds OpenWeather settings used by the weather tool.
type WeatherConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig holds turn audit storage settings.
type AuditConfig struct {
	Driver   string         `yaml:"driver"` // none, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file, the root .env file and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadLocal is Load for offline tools: the client and generator keys may be
// absent.
func LoadLocal(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateSettings(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("ATLAS_ROOT_PATH"); v != "" {
		cfg.RootPath = v
	}

	// A missing .env is normal in production.
	_ = godotenv.Load(filepath.Join(cfg.RootPath, ".env"))

	applyEnvOverrides(cfg)
	cfg.Corpus.Dir = ResolveRelativePath(cfg.RootPath, cfg.Corpus.Dir)

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		RootPath: ".",
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             3001,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     75 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   70 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Corpus: CorpusConfig{
			Dir:           "knowledge",
			Watch:         false,
			WatchDebounce: 500 * time.Millisecond,
		},
		Retrieval: DefaultRetrievalConfig(),
		Sessions: SessionConfig{
			Driver: "memory",
			TTL:    0,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "atlas:",
			},
		},
		Generator: GeneratorConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-mini",
			ClassifyTimeout:  15 * time.Second,
			Timeout:          30 * time.Second,
			MaxRetries:       2,
			RequestsPerSec:   5,
			Burst:            5,
			ClassifyCacheTTL: time.Hour,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.openweathermap.org/data/2.5",
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Driver: "none",
			SQLite: SQLiteConfig{
				Path:         "atlas-audit.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "atlas",
		},
	}
}

// DefaultRetrievalConfig returns the ranking constants the corpus was tuned against.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopN:                   25,
		MinWorkingSet:          15,
		MaxChunks:              18,
		TokenBudget:            3000,
		LowConfidenceThreshold: 0.25,
		MaxExpansionLength:     250,
		FuzzyRatio:             0.2,
		FactMultiplier:         1.8,
		VehicleFilterMinimum:   3,
		Boosts: BoostConfig{
			Area:          600,
			City:          200,
			Vehicle:       6000,
			PerfectMatch:  2_000_000,
			ForceAddFloor: 9999,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Auth.ClientAPIKey == "" {
		return fmt.Errorf("%w: CLIENT_API_KEY", ErrMissingKey)
	}

	if c.Generator.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingKey)
	}

	return c.validateSettings()
}

func (c *Config) validateSettings() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Corpus.Dir == "" {
		return fmt.Errorf("corpus dir must be set")
	}

	if c.Sessions.Driver != "memory" && c.Sessions.Driver != "redis" {
		return fmt.Errorf("invalid session driver: %s", c.Sessions.Driver)
	}

	switch c.Audit.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid audit driver: %s", c.Audit.Driver)
	}

	if c.Audit.Driver == "postgres" && c.Audit.Postgres.DSN == "" {
		return fmt.Errorf("audit postgres dsn must be set")
	}

	r := c.Retrieval
	if r.MaxChunks < 1 {
		return fmt.Errorf("max_chunks must be positive")
	}
	if r.TokenBudget < 1 {
		return fmt.Errorf("token_budget must be positive")
	}
	if r.MinWorkingSet > r.TopN {
		return fmt.Errorf("min_working_set (%d) cannot exceed top_n (%d)", r.MinWorkingSet, r.TopN)
	}

	return nil
}

// AuditDSN returns the appropriate audit database connection string.
func (c *Config) AuditDSN() string {
	if c.Audit.Driver == "sqlite" {
		return ResolveRelativePath(c.RootPath, c.Audit.SQLite.Path)
	}
	return c.Audit.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("CLIENT_API_KEY"); v != "" {
		cfg.Auth.ClientAPIKey = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}

	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Generator.Model = v
	}

	if v := os.Getenv("OPENWEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}

	if v := os.Getenv("KNOWLEDGE_DIR"); v != "" {
		cfg.Corpus.Dir = v
	}

	if v := os.Getenv("KNOWLEDGE_WATCH"); v == "true" {
		cfg.Corpus.Watch = true
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Sessions.Driver = "redis"
		cfg.Sessions.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("AUDIT_DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Audit.Driver = "sqlite"
			cfg.Audit.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Audit.Driver = "postgres"
			cfg.Audit.Postgres.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the root directory.
func ResolveRelativePath(root, targetPath string) string {
	if filepath.IsAbs(targetPath) || root == "" {
		return targetPath
	}
	return filepath.Join(root, targetPath)
}
