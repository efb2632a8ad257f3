package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"HTTP_ADDR", "WORKER_HTTP_ADDR", "DATABASE_URL", "KAFKA_BROKERS", "BALANCE_TTL", "DEDUPLICATE_EVENTS", "OTEL_ENDPOINT", "OTEL_ENABLED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9091", cfg.WorkerHTTPAddr)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.True(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "cash-postings", cfg.KafkaTopic)
	assert.Equal(t, time.Hour, cfg.BalanceTTL)
	assert.True(t, cfg.DeduplicateEvents)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BALANCE_TTL", "30m")
	t.Setenv("DEDUPLICATE_EVENTS", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("WORKER_HTTP_ADDR", ":7070")
	t.Setenv("OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.BalanceTTL)
	assert.False(t, cfg.DeduplicateEvents)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, ":7070", cfg.WorkerHTTPAddr)
	assert.Equal(t, "http://collector:4318", cfg.OTelEndpoint)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))

	t.Setenv("REDIS_DB", "0")
	t.Setenv("BALANCE_TTL", "0s")
	_, err = Load()
	assert.ErrorContains(t, err, "BALANCE_TTL must be positive")
}

func TestLoad_ServerAndWorkerAddrsMustDiffer(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("WORKER_HTTP_ADDR", ":8080")

	_, err := Load()
	assert.ErrorContains(t, err, "must differ")
}
