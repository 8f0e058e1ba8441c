package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/lodgetix/reconcile/internal/match"
	"github.com/lodgetix/reconcile/internal/store"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	Matching  MatchingConfig
	Reprocess ReprocessConfig
	Logging   LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOriginsCSV string        `env:"SERVER_ALLOWED_ORIGINS"`
}

// StoreConfig describes connectivity to the document store.
type StoreConfig struct {
	URI         string        `env:"MONGO_URI"`
	Database    string        `env:"MONGO_DATABASE" envDefault:"lodgetix"`
	Timeout     time.Duration `env:"MONGO_TIMEOUT" envDefault:"5s"`
	MaxPoolSize uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"16"`
}

// MatchingConfig holds the tunable thresholds and weights of the scoring
// engine. Defaults reproduce the documented rule set; deployments tune them
// without a rebuild.
type MatchingConfig struct {
	AcceptThreshold      int           `env:"MATCH_ACCEPT_THRESHOLD" envDefault:"50"`
	HighConfidence       int           `env:"MATCH_HIGH_CONFIDENCE" envDefault:"75"`
	AmountToleranceCents int64         `env:"MATCH_AMOUNT_TOLERANCE_CENTS" envDefault:"0"`
	DateWindow           time.Duration `env:"MATCH_DATE_WINDOW" envDefault:"24h"`
	CandidateLimit       int           `env:"MATCH_CANDIDATE_LIMIT" envDefault:"25"`
	NameWeight           int           `env:"MATCH_NAME_WEIGHT" envDefault:"0"`
}

// ReprocessConfig controls the batch reprocessor. An empty Cron disables the
// in-process scheduler.
type ReprocessConfig struct {
	Workers int    `env:"REPROCESS_WORKERS" envDefault:"4"`
	Cron    string `env:"REPROCESS_CRON"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `env:"LOG_LEVEL" envDefault:"info"`
	Format        string `env:"LOG_FORMAT" envDefault:"text"` // text|json
	IncludeCaller bool   `env:"LOG_INCLUDE_CALLER" envDefault:"false"`
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Config{}, fmt.Errorf("port %d is out of range", cfg.HTTP.Port)
	}
	if cfg.Matching.AcceptThreshold > cfg.Matching.HighConfidence {
		return Config{}, fmt.Errorf("MATCH_ACCEPT_THRESHOLD %d exceeds MATCH_HIGH_CONFIDENCE %d",
			cfg.Matching.AcceptThreshold, cfg.Matching.HighConfidence)
	}
	return cfg, nil
}

// MatchConfig maps the environment-driven matching settings onto the engine
// configuration, leaving per-rule weights at their defaults.
func (c Config) MatchConfig() match.Config {
	mc := match.DefaultConfig()
	mc.AcceptThreshold = c.Matching.AcceptThreshold
	mc.HighConfidence = c.Matching.HighConfidence
	mc.AmountToleranceCents = c.Matching.AmountToleranceCents
	mc.DateWindow = c.Matching.DateWindow
	mc.CandidateLimit = c.Matching.CandidateLimit
	mc.NameWeight = c.Matching.NameWeight
	return mc
}

// StoreOptions maps the store section onto client options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		URI:         c.Store.URI,
		Database:    c.Store.Database,
		Timeout:     c.Store.Timeout,
		MaxPoolSize: c.Store.MaxPoolSize,
	}
}
