package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Storage stores each snapshot as one JSON object in a bucket.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	storage := persist.NewS3Storage(s3.NewFromConfig(cfg), "my-bucket", "snapshots/")
type S3Storage struct {
	client S3API
	bucket string
	prefix string
	closed atomic.Bool
}

// NewS3Storage creates an S3-backed storage. Object keys are prefix joined
// with the snapshot name and ".json".
func NewS3Storage(client S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *S3Storage) objectKey(name string) string {
	return path.Join(s.prefix, name+".json")
}

// Save uploads the snapshot.
func (s *S3Storage) Save(ctx context.Context, name string, data []byte) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("persist: s3 put %q: %w", name, err)
	}
	return nil
}

// Load downloads the snapshot. A missing object returns (nil, nil).
func (s *S3Storage) Load(ctx context.Context, name string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: s3 get %q: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("persist: s3 read %q: %w", name, err)
	}
	return data, nil
}

// Delete removes the snapshot object.
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		return fmt.Errorf("persist: s3 delete %q: %w", name, err)
	}
	return nil
}

// Close marks the storage closed.
func (s *S3Storage) Close() error {
	s.closed.Store(true)
	return nil
}
