package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings shared by the server and the worker.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	WorkerHTTPAddr string `env:"WORKER_HTTP_ADDR" envDefault:":9091"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// OTelEndpoint is an OTLP/HTTP collector URL. Empty disables tracing.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	// DatabaseURL selects the Postgres ledger. Empty runs the server standalone in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"cash-postings"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"balance-projector"`

	BalanceTTL        time.Duration `env:"BALANCE_TTL" envDefault:"1h"`
	DeduplicateEvents bool          `env:"DEDUPLICATE_EVENTS" envDefault:"true"`
	RetryInterval     time.Duration `env:"PROJECTOR_RETRY_INTERVAL" envDefault:"500ms"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HTTPAddr == cfg.WorkerHTTPAddr {
		return Config{}, fmt.Errorf("parse env: HTTP_ADDR and WORKER_HTTP_ADDR must differ, both are %q", cfg.HTTPAddr)
	}
	if cfg.BalanceTTL <= 0 {
		return Config{}, fmt.Errorf("parse env: BALANCE_TTL must be positive, got %s", cfg.BalanceTTL)
	}
	return cfg, nil
}

// Level maps LogLevel onto a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
