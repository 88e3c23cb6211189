package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/feedrelay/internal/history"
	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/sink"
	"github.com/Aidin1998/feedrelay/pkg/errors"
)

func TestLoadDefaultsMatchEurOneMinuteVariant(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultVariant, cfg.Relay.Variant)
	assert.Equal(t, "wss://ws-feed.exchange.coinbase.com", cfg.Relay.FeedURL)
	assert.Equal(t, []string{"ETH-EUR", "BTC-EUR"}, cfg.Relay.ProductIDs)
	assert.Equal(t, []string{"ticker"}, cfg.Relay.Channels)
	assert.Equal(t, 60*time.Second, cfg.Relay.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.Pacing)
	assert.Equal(t, "dev-coinbase-stream", cfg.Relay.Stream)
	assert.Equal(t, []string{"subscriptions", "error"}, cfg.Relay.HousekeepingTypes)
	assert.Equal(t, 0, cfg.Relay.Reconnect.MaxAttempts)
	assert.Equal(t, relay.OnFailureAbort, cfg.Relay.Write.OnFailure)

	assert.Equal(t, sink.KindKinesis, cfg.Sink.Kind)
	assert.Equal(t, "us-east-1", cfg.Sink.Kinesis.Region)
	assert.Equal(t, history.BackendMemory, cfg.History.Backend)
	assert.False(t, cfg.Schedule.Enabled)
	assert.Equal(t, 1.0, cfg.Server.RateLimit)
	assert.Equal(t, 5, cfg.Server.RateBurst)
}

func TestLoadHistoryIsStoreConfig(t *testing.T) {
	t.Setenv("FEEDRELAY_HISTORY_BACKEND", "redis")
	t.Setenv("FEEDRELAY_HISTORY_SIZE", "7")
	t.Setenv("FEEDRELAY_HISTORY_REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	var store history.Config = cfg.History
	assert.Equal(t, history.BackendRedis, store.Backend)
	assert.Equal(t, 7, store.Size)
	assert.Equal(t, "cache:6379", store.Redis.Addr)
}

func TestLoadRejectsUnknownHistoryBackend(t *testing.T) {
	t.Setenv("FEEDRELAY_HISTORY_BACKEND", "etcd")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidConfig))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Fields, errors.NewFieldError("oneof", "history.backend", e.Fields[0].Message))
	assert.Len(t, e.Fields, 1)
}

func TestLoadVariantPresets(t *testing.T) {
	tests := []struct {
		variant  string
		duration time.Duration
		pacing   time.Duration
	}{
		{"eur-1m", 60 * time.Second, 500 * time.Millisecond},
		{"usd-5m", 300 * time.Second, time.Second},
		{"usd-14m", 840 * time.Second, 2 * time.Second},
		{"eur-14m-unpaced", 840 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			t.Setenv("FEEDRELAY_RELAY_VARIANT", tt.variant)
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.duration, cfg.Relay.Duration)
			assert.Equal(t, tt.pacing, cfg.Relay.Pacing)
		})
	}
}

func TestLoadEnvOverridesPreset(t *testing.T) {
	t.Setenv("FEEDRELAY_RELAY_VARIANT", "usd-5m")
	t.Setenv("FEEDRELAY_RELAY_DURATION", "90s")
	t.Setenv("FEEDRELAY_RELAY_PRODUCT_IDS", "BTC-USD,SOL-USD")
	t.Setenv("FEEDRELAY_SINK_KIND", "kafka")
	t.Setenv("FEEDRELAY_SINK_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FEEDRELAY_RELAY_RECONNECT_MAX_ATTEMPTS", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Relay.Duration)
	assert.Equal(t, time.Second, cfg.Relay.Pacing)
	assert.Equal(t, []string{"BTC-USD", "SOL-USD"}, cfg.Relay.ProductIDs)
	assert.Equal(t, sink.KindKafka, cfg.Sink.Kind)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Sink.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Relay.Reconnect.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay:
  variant: usd-14m
  stream: prod-ticks
  pacing: 0s
  write:
    retries: 2
    on_failure: skip
sink:
  kind: redis
  redis:
    addr: redis:6379
schedule:
  enabled: true
  spec: "*/14 * * * *"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "usd-14m", cfg.Relay.Variant)
	assert.Equal(t, "prod-ticks", cfg.Relay.Stream)
	assert.Equal(t, time.Duration(0), cfg.Relay.Pacing)
	assert.Equal(t, 840*time.Second, cfg.Relay.Duration)
	assert.Equal(t, 2, cfg.Relay.Write.Retries)
	assert.Equal(t, relay.OnFailureSkip, cfg.Relay.Write.OnFailure)
	assert.Equal(t, "redis:6379", cfg.Sink.Redis.Addr)
	assert.True(t, cfg.Schedule.Enabled)
	assert.Equal(t, "*/14 * * * *", cfg.Schedule.Spec)
}

func TestLoadUnknownVariant(t *testing.T) {
	t.Setenv("FEEDRELAY_RELAY_VARIANT", "jpy-1h")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidConfig))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("FEEDRELAY_SINK_KIND", "sqs")
	t.Setenv("FEEDRELAY_RELAY_WRITE_ON_FAILURE", "retry-forever")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidConfig))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.GreaterOrEqual(t, len(e.Fields), 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVariantNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"eur-14m-unpaced", "eur-1m", "usd-14m", "usd-5m"}, VariantNames())
}
