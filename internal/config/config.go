// Package config loads relay configuration from defaults, an optional YAML
// file, a .env file, and FEEDRELAY_* environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Aidin1998/feedrelay/internal/feed"
	"github.com/Aidin1998/feedrelay/internal/history"
	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/sink"
	"github.com/Aidin1998/feedrelay/pkg/errors"
	"github.com/Aidin1998/feedrelay/pkg/validation"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "FEEDRELAY"

// Config holds all configuration for the relay binaries
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Sink      sink.Config     `mapstructure:"sink"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Server    ServerConfig    `mapstructure:"server"`
	History   history.Config  `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"` // e.g., "local", "prod"
	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
}

// RelayConfig is the session configuration plus the preset it started from
type RelayConfig struct {
	Variant          string        `mapstructure:"variant"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	relay.Config     `mapstructure:",squash"`
}

type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per second per client on /v1; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
}

type TelemetryConfig struct {
	Tracing     string `mapstructure:"tracing" validate:"oneof=none stdout"`
	ServiceName string `mapstructure:"service_name"`
}

// LoadConfig reads configuration from .env, an optional config file named by
// FEEDRELAY_CONFIG, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}
	return Load(os.Getenv(EnvPrefix + "_CONFIG"))
}

// Load builds the configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v,
		"app.name", "app.env", "app.log_level", "app.log_format",
		"relay.variant", "relay.feed_url", "relay.product_ids", "relay.channels", "relay.duration",
		"relay.stream", "relay.pacing", "relay.housekeeping_types", "relay.handshake_timeout",
		"relay.reconnect.max_attempts", "relay.reconnect.initial_backoff", "relay.reconnect.max_backoff",
		"relay.write.retries", "relay.write.backoff", "relay.write.on_failure",
		"sink.kind", "sink.kinesis.region", "sink.kinesis.endpoint",
		"sink.kafka.brokers", "sink.kafka.required_acks", "sink.kafka.compression", "sink.kafka.write_timeout",
		"sink.kafka.max_attempts",
		"sink.redis.addr", "sink.redis.password", "sink.redis.db", "sink.redis.max_len",
		"schedule.enabled", "schedule.spec",
		"server.addr", "server.shutdown_timeout", "server.rate_limit", "server.rate_burst",
		"history.backend", "history.size", "history.key",
		"history.redis.addr", "history.redis.password", "history.redis.db",
		"telemetry.tracing", "telemetry.service_name",
	)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	name := v.GetString("relay.variant")
	if name == "" {
		name = DefaultVariant
	}
	preset, ok := LookupVariant(name)
	if !ok {
		return nil, errors.InvalidConfig.
			Explain("unknown relay variant %q", name).
			WithField("oneof", "relay.variant", "known variants: "+strings.Join(VariantNames(), ", "))
	}
	v.SetDefault("relay.variant", name)
	v.SetDefault("relay.product_ids", preset.ProductIDs)
	v.SetDefault("relay.duration", preset.Duration)
	v.SetDefault("relay.pacing", preset.Pacing)
	v.SetDefault("relay.stream", preset.Stream)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	invalid := validation.Struct(c, "configuration validation failed")
	bad := invalid != nil
	if !bad {
		invalid = errors.InvalidConfig.Explain("configuration validation failed")
	}

	if c.Sink.Kind == sink.KindKafka && len(c.Sink.Kafka.Brokers) == 0 {
		invalid, bad = invalid.WithField("required", "sink.kafka.brokers", "kafka brokers cannot be empty"), true
	}
	if c.Sink.Kind == sink.KindRedis && c.Sink.Redis.Addr == "" {
		invalid, bad = invalid.WithField("required", "sink.redis.addr", "redis address cannot be empty"), true
	}
	if bad {
		return invalid
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "feedrelay")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("relay.feed_url", feed.DefaultURL)
	v.SetDefault("relay.channels", []string{feed.ChannelTicker})
	v.SetDefault("relay.housekeeping_types", []string{feed.TypeSubscriptions, feed.TypeError})
	v.SetDefault("relay.handshake_timeout", 10*time.Second)
	v.SetDefault("relay.reconnect.max_attempts", 0)
	v.SetDefault("relay.reconnect.initial_backoff", time.Second)
	v.SetDefault("relay.reconnect.max_backoff", 30*time.Second)
	v.SetDefault("relay.write.retries", 0)
	v.SetDefault("relay.write.backoff", 100*time.Millisecond)
	v.SetDefault("relay.write.on_failure", relay.OnFailureAbort)

	kafkaDefaults := sink.DefaultKafkaConfig()
	v.SetDefault("sink.kind", sink.KindKinesis)
	v.SetDefault("sink.kinesis.region", "us-east-1")
	v.SetDefault("sink.kinesis.endpoint", "")
	v.SetDefault("sink.kafka.brokers", kafkaDefaults.Brokers)
	v.SetDefault("sink.kafka.required_acks", kafkaDefaults.RequiredAcks)
	v.SetDefault("sink.kafka.compression", kafkaDefaults.Compression)
	v.SetDefault("sink.kafka.write_timeout", kafkaDefaults.WriteTimeout)
	v.SetDefault("sink.kafka.max_attempts", kafkaDefaults.MaxAttempts)
	v.SetDefault("sink.redis.addr", "localhost:6379")
	v.SetDefault("sink.redis.password", "")
	v.SetDefault("sink.redis.db", 0)
	v.SetDefault("sink.redis.max_len", 100000)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.spec", "@every 15m")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)

	v.SetDefault("history.backend", history.BackendMemory)
	v.SetDefault("history.size", 100)
	v.SetDefault("history.key", "feedrelay:sessions")
	v.SetDefault("history.redis.addr", "localhost:6379")
	v.SetDefault("history.redis.password", "")
	v.SetDefault("history.redis.db", 0)

	v.SetDefault("telemetry.tracing", "none")
	v.SetDefault("telemetry.service_name", "feedrelay")
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
