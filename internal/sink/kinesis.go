package sink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// KinesisConfig configures the Kinesis Data Streams destination. Credentials
// come from the default AWS chain of the execution environment.
type KinesisConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type kinesisAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

// Kinesis appends records with PutRecord
type Kinesis struct {
	client kinesisAPI
}

// NewKinesis loads the default AWS configuration and creates a client
func NewKinesis(ctx context.Context, cfg KinesisConfig) (*Kinesis, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Kinesis{client: client}, nil
}

func (k *Kinesis) Append(ctx context.Context, rec Record) (Ack, error) {
	out, err := k.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(rec.Stream),
		Data:         rec.Data,
		PartitionKey: aws.String(rec.PartitionKey),
	})
	if err != nil {
		return Ack{}, fmt.Errorf("kinesis put record to %s: %w", rec.Stream, err)
	}
	return Ack{
		Shard:    aws.ToString(out.ShardId),
		Sequence: aws.ToString(out.SequenceNumber),
	}, nil
}

func (k *Kinesis) Close() error { return nil }
