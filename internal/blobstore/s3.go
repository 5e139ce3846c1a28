package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"durable-command-scheduler/internal/config"
)

// S3 offloads oversized command payloads to an S3-compatible bucket. Client
// construction mirrors the teacher's image handler S3 uploader, including
// support for path-style addressing against non-AWS endpoints (MinIO, etc).
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds an S3 blob store from configuration.
func NewS3(ctx context.Context, cfg config.Config) (*S3, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &S3{client: client, bucket: cfg.BlobS3Bucket}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.BlobS3Region),
	}
	if cfg.BlobS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.BlobS3Endpoint,
					HostnameImmutable: cfg.BlobS3PathStyle,
					SigningRegion:     cfg.BlobS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BlobS3PathStyle
	}), nil
}

func (b *S3) Put(ctx context.Context, aggregateID string, sequenceNumber int64, payload string) (string, string, error) {
	key := blobKey(aggregateID, sequenceNumber)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(payload)),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", "", fmt.Errorf("put blob: %w", err)
	}
	return LocationS3, key, nil
}

func (b *S3) Get(ctx context.Context, location, key string) (string, error) {
	if location != LocationS3 {
		return "", fmt.Errorf("s3 blob store cannot serve location %q", location)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get blob: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read blob body: %w", err)
	}
	return string(data), nil
}
