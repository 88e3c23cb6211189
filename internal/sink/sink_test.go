package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeWriter implements the same methods as *kafka.Writer
type fakeWriter struct {
	topic  string
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, m ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestKafka(t *testing.T) (*Kafka, map[string]*fakeWriter) {
	t.Helper()
	k, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	require.NoError(t, err)
	writers := make(map[string]*fakeWriter)
	k.newWriter = func(topic string) messageWriter {
		fw := &fakeWriter{topic: topic}
		writers[topic] = fw
		return fw
	}
	return k, writers
}

func TestKafkaAppendUsesPartitionKeyAndVerbatimPayload(t *testing.T) {
	k, writers := newTestKafka(t)
	payload := []byte(`{"type":"ticker","product_id":"BTC-USD","price":"50000"}`)

	_, err := k.Append(context.Background(), Record{Stream: "coinbase", Data: payload, PartitionKey: "BTC-USD"})
	require.NoError(t, err)
	_, err = k.Append(context.Background(), Record{Stream: "coinbase", Data: []byte(`{}`), PartitionKey: "ETH-USD"})
	require.NoError(t, err)

	require.Len(t, writers, 1)
	fw := writers["coinbase"]
	require.Len(t, fw.msgs, 2)
	assert.Equal(t, "BTC-USD", string(fw.msgs[0].Key))
	assert.Equal(t, payload, fw.msgs[0].Value)
	assert.Equal(t, "ETH-USD", string(fw.msgs[1].Key))
}

func TestKafkaWriterPerStream(t *testing.T) {
	k, writers := newTestKafka(t)

	_, err := k.Append(context.Background(), Record{Stream: "a", PartitionKey: "k"})
	require.NoError(t, err)
	_, err = k.Append(context.Background(), Record{Stream: "b", PartitionKey: "k"})
	require.NoError(t, err)

	assert.Len(t, writers, 2)
	require.NoError(t, k.Close())
	assert.True(t, writers["a"].closed)
	assert.True(t, writers["b"].closed)
}

func TestKafkaAppendError(t *testing.T) {
	k, _ := newTestKafka(t)
	k.newWriter = func(string) messageWriter { return &fakeWriter{err: errors.New("leader not available")} }

	_, err := k.Append(context.Background(), Record{Stream: "s", PartitionKey: "k"})
	assert.ErrorContains(t, err, "leader not available")
}

func TestKafkaWriterConfiguration(t *testing.T) {
	k, err := NewKafka(KafkaConfig{Brokers: []string{"b1:9092"}, RequiredAcks: -1, Compression: "zstd"}, nil)
	require.NoError(t, err)

	w, ok := k.kafkaWriter("topic").(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "topic", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, kafka.Zstd, w.Compression)
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{}, nil)
	assert.Error(t, err)
}

type fakeKinesis struct {
	inputs []*kinesis.PutRecordInput
	err    error
}

func (f *fakeKinesis) PutRecord(ctx context.Context, in *kinesis.PutRecordInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &kinesis.PutRecordOutput{
		ShardId:        aws.String("shardId-000000000001"),
		SequenceNumber: aws.String("4960"),
	}, nil
}

func TestKinesisAppend(t *testing.T) {
	fk := &fakeKinesis{}
	k := &Kinesis{client: fk}

	ack, err := k.Append(context.Background(), Record{Stream: "dev-coinbase-stream", Data: []byte(`{"a":1}`), PartitionKey: "ETH-EUR"})
	require.NoError(t, err)

	assert.Equal(t, Ack{Shard: "shardId-000000000001", Sequence: "4960"}, ack)
	require.Len(t, fk.inputs, 1)
	assert.Equal(t, "dev-coinbase-stream", aws.ToString(fk.inputs[0].StreamName))
	assert.Equal(t, "ETH-EUR", aws.ToString(fk.inputs[0].PartitionKey))
	assert.Equal(t, []byte(`{"a":1}`), fk.inputs[0].Data)
}

func TestKinesisAppendError(t *testing.T) {
	k := &Kinesis{client: &fakeKinesis{err: errors.New("ProvisionedThroughputExceededException")}}
	_, err := k.Append(context.Background(), Record{Stream: "s", PartitionKey: "k"})
	assert.ErrorContains(t, err, "ProvisionedThroughputExceededException")
}

type fakeStreamClient struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStreamClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func (f *fakeStreamClient) Close() error { return nil }

func TestRedisStreamAppend(t *testing.T) {
	fc := &fakeStreamClient{}
	r := &RedisStream{client: fc, maxLen: 1000}

	ack, err := r.Append(context.Background(), Record{Stream: "ticks", Data: []byte(`{}`), PartitionKey: "BTC-USD"})
	require.NoError(t, err)

	assert.Equal(t, "1700000000000-0", ack.Sequence)
	require.Len(t, fc.args, 1)
	assert.Equal(t, "ticks", fc.args[0].Stream)
	assert.Equal(t, int64(1000), fc.args[0].MaxLen)
	assert.True(t, fc.args[0].Approx)
	assert.Equal(t, []any{"partition_key", "BTC-USD", "data", []byte(`{}`)}, fc.args[0].Values)
}

func TestRedisStreamAppendError(t *testing.T) {
	r := &RedisStream{client: &fakeStreamClient{err: errors.New("OOM")}}
	_, err := r.Append(context.Background(), Record{Stream: "ticks", PartitionKey: "k"})
	assert.ErrorContains(t, err, "OOM")
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))

	ack, err := l.Append(context.Background(), Record{Stream: "s", Data: []byte(`{}`), PartitionKey: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, "1", ack.Sequence)

	ack, err = l.Append(context.Background(), Record{Stream: "s", PartitionKey: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, "2", ack.Sequence)

	entries := logs.FilterMessage("record").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "BTC-USD", entries[0].ContextMap()["partition_key"])
	assert.NoError(t, l.Close())
}

func TestNewSelectsKind(t *testing.T) {
	w, err := New(context.Background(), Config{Kind: KindLog}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Log{}, w)

	w, err = New(context.Background(), Config{Kind: KindKafka, Kafka: DefaultKafkaConfig()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, w)

	_, err = New(context.Background(), Config{Kind: "sqs"}, zap.NewNop())
	assert.Error(t, err)
}
