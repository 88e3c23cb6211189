package sink

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

// Log writes records to the logger instead of a stream. Used for dry runs.
type Log struct {
	logger *zap.Logger
	seq    atomic.Uint64
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("sink")}
}

func (l *Log) Append(ctx context.Context, rec Record) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	seq := strconv.FormatUint(l.seq.Add(1), 10)
	l.logger.Info("record",
		zap.String("stream", rec.Stream),
		zap.String("partition_key", rec.PartitionKey),
		zap.String("sequence", seq),
		zap.ByteString("data", rec.Data))
	return Ack{Shard: rec.PartitionKey, Sequence: seq}, nil
}

func (l *Log) Close() error {
	_ = l.logger.Sync()
	return nil
}
