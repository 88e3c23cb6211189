package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for the Kafka destination
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// DefaultKafkaConfig returns defaults favouring durability over latency
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		RequiredAcks: int(kafka.RequireAll),
		Compression:  "snappy",
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}
}

// messageWriter is the subset of *kafka.Writer used here
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka appends records to a topic named after the stream. The key is the
// partition key and the hash balancer maps equal keys to the same partition.
type Kafka struct {
	config    KafkaConfig
	logger    *zap.Logger
	newWriter func(topic string) messageWriter

	mu      sync.RWMutex
	writers map[string]messageWriter
}

// NewKafka creates a Kafka sink
func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Kafka{
		config:  cfg,
		logger:  logger,
		writers: make(map[string]messageWriter),
	}
	k.newWriter = k.kafkaWriter
	return k, nil
}

func (k *Kafka) kafkaWriter(topic string) messageWriter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(k.config.RequiredAcks),
		WriteTimeout: k.config.WriteTimeout,
		MaxAttempts:  k.config.MaxAttempts,
		BatchSize:    1,
	}

	switch k.config.Compression {
	case "gzip":
		w.Compression = kafka.Gzip
	case "snappy":
		w.Compression = kafka.Snappy
	case "lz4":
		w.Compression = kafka.Lz4
	case "zstd":
		w.Compression = kafka.Zstd
	}
	return w
}

// getWriter returns or creates a writer for the specified topic
func (k *Kafka) getWriter(topic string) messageWriter {
	k.mu.RLock()
	writer, exists := k.writers[topic]
	k.mu.RUnlock()
	if exists {
		return writer
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	// Double-check pattern
	if writer, exists := k.writers[topic]; exists {
		return writer
	}
	writer = k.newWriter(topic)
	k.writers[topic] = writer
	return writer
}

// Append writes one message synchronously and returns once the broker acked it.
func (k *Kafka) Append(ctx context.Context, rec Record) (Ack, error) {
	msg := kafka.Message{
		Key:   []byte(rec.PartitionKey),
		Value: rec.Data,
		Time:  time.Now(),
	}
	if err := k.getWriter(rec.Stream).WriteMessages(ctx, msg); err != nil {
		return Ack{}, fmt.Errorf("kafka write to %s: %w", rec.Stream, err)
	}
	return Ack{}, nil
}

// Close shuts down every topic writer
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var firstErr error
	for topic, w := range k.writers {
		if err := w.Close(); err != nil {
			k.logger.Error("Failed to close kafka writer", zap.String("topic", topic), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	k.writers = make(map[string]messageWriter)
	return firstErr
}
