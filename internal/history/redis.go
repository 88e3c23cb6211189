package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Aidin1998/feedrelay/internal/relay"
)

type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// Redis keeps results in a capped list so every daemon replica sees the same
// history.
type Redis struct {
	client listClient
	key    string
	size   int64
}

func NewRedis(client listClient, key string, size int) *Redis {
	if size <= 0 {
		size = 100
	}
	return &Redis{client: client, key: key, size: int64(size)}
}

func (r *Redis) Record(ctx context.Context, res relay.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", res.SessionID, err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("record session %s: %w", res.SessionID, err)
	}
	if err := r.client.LTrim(ctx, r.key, 0, r.size-1).Err(); err != nil {
		return fmt.Errorf("trim session history: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, n int) ([]relay.Result, error) {
	stop := int64(n) - 1
	if n <= 0 || int64(n) > r.size {
		stop = r.size - 1
	}
	items, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}
	out := make([]relay.Result, 0, len(items))
	for _, item := range items {
		var res relay.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			return nil, fmt.Errorf("decode session history: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
