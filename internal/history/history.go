// Package history keeps summaries of recent relay sessions.
package history

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/sink"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store records session results, newest first
type Store interface {
	Record(ctx context.Context, res relay.Result) error
	// Recent returns up to n results, newest first. n <= 0 returns all kept.
	Recent(ctx context.Context, n int) ([]relay.Result, error)
	Close() error
}

// Config selects the history backend
type Config struct {
	Backend string           `mapstructure:"backend" validate:"oneof=memory redis"`
	Size    int              `mapstructure:"size" validate:"gt=0"`
	Key     string           `mapstructure:"key"`
	Redis   sink.RedisConfig `mapstructure:"redis"`
}

// New opens the configured store
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(cfg.Size), nil
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Session history backed by redis",
			zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Key))
		return NewRedis(rdb, cfg.Key, cfg.Size), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
