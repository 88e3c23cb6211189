// Package sink appends feed messages to durable, partitioned streams.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Supported sink kinds
const (
	KindKinesis = "kinesis"
	KindKafka   = "kafka"
	KindRedis   = "redis"
	KindLog     = "log"
)

// Record is one append to a named stream. Data is written verbatim.
type Record struct {
	Stream       string
	Data         []byte
	PartitionKey string
}

// Ack is the destination's write acknowledgment. Fields the destination does
// not report are left empty.
type Ack struct {
	Shard    string
	Sequence string
}

// Writer appends records to a stream. Records sharing a partition key are
// routed to the same shard.
type Writer interface {
	Append(ctx context.Context, rec Record) (Ack, error)
	Close() error
}

// Config selects and configures the destination
type Config struct {
	Kind    string        `mapstructure:"kind" validate:"oneof=kinesis kafka redis log"`
	Kinesis KinesisConfig `mapstructure:"kinesis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// New builds the writer selected by cfg.Kind.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Writer, error) {
	switch cfg.Kind {
	case KindKinesis:
		return NewKinesis(ctx, cfg.Kinesis)
	case KindKafka:
		return NewKafka(cfg.Kafka, logger)
	case KindRedis:
		return NewRedisStream(ctx, cfg.Redis)
	case KindLog, "":
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}
