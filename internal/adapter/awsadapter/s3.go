package awsadapter

import (
	"context"
	"io"
	"mime"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/internal/core/delivery"
)

var _ delivery.ObjectStore = (*S3Store)(nil)

// s3API 便于测试替换
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store S3 对象存储
type S3Store struct {
	client s3API
}

// NewS3Store SDK 不做重试，重试策略由 delivery 决定
func NewS3Store(cfg aws.Config) *S3Store {
	return &S3Store{client: s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
	})}
}

// NewStoreFactory 每个租约构造一个客户端
func NewStoreFactory(base aws.Config) delivery.StoreFactory {
	return func(_ context.Context, lease credential.Lease) (delivery.ObjectStore, error) {
		return NewS3Store(WithLease(base, lease)), nil
	}
}

// Put implements delivery.ObjectStore.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, meta map[string]string) error {
	in := s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata:      meta,
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	_, err := s.client.PutObject(ctx, &in)
	return mapError(err)
}

// Head implements delivery.ObjectStore.
func (s *S3Store) Head(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return mapError(err)
}
