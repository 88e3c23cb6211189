package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis Streams destination
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// MaxLen caps each stream approximately; 0 leaves it unbounded.
	MaxLen int64 `mapstructure:"max_len"`
}

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream appends records with XADD. A single stream keeps global order,
// so the partition key is stored as a field for consumers that shard by it.
type RedisStream struct {
	client streamClient
	maxLen int64
}

// NewRedisStream connects and pings the server
func NewRedisStream(ctx context.Context, cfg RedisConfig) (*RedisStream, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisStream{client: rdb, maxLen: cfg.MaxLen}, nil
}

func (r *RedisStream) Append(ctx context.Context, rec Record) (Ack, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rec.Stream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: []any{"partition_key", rec.PartitionKey, "data", rec.Data},
	}).Result()
	if err != nil {
		return Ack{}, fmt.Errorf("redis xadd to %s: %w", rec.Stream, err)
	}
	return Ack{Shard: rec.Stream, Sequence: id}, nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}
