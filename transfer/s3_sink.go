package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientAPI is the subset of the S3 client used by S3Sink.
type S3ClientAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores uploads locally and mirrors each one to an S3 bucket.
// A failed mirror is logged; the local copy remains the result.
type S3Sink struct {
	Local  Sink
	Client S3ClientAPI
	Bucket string
	Prefix string
}

// NewS3Sink builds an S3Sink from the default AWS credential chain.
func NewS3Sink(ctx context.Context, local Sink, bucket, region string) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Sink{
		Local:  local,
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Prefix: "incoming",
	}, nil
}

// Store writes locally then uploads the same bytes under Prefix/filename.
func (s *S3Sink) Store(ctx context.Context, filename string, content []byte) (string, error) {
	location, err := s.Local.Store(ctx, filename, content)
	if err != nil {
		return "", err
	}

	key := path.Join(s.Prefix, filename)
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		slog.Warn("s3 mirror failed", "bucket", s.Bucket, "key", key, "error", err)
		return location, nil
	}
	slog.Info("received file mirrored", "bucket", s.Bucket, "key", key)
	return location, nil
}
