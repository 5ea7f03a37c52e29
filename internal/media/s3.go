package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures the object-store client. Endpoint is optional and
// supports S3-compatible stores (MinIO, R2) with path-style addressing.
type S3Options struct {
	Endpoint string
	Region   string
	Key      string
	Secret   string
	Bucket   string
}

// S3Store implements ObjectStore on an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates the client and validates required settings.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Key == "" || opts.Secret == "" {
		return nil, fmt.Errorf("key and secret are required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "auto"
	}

	clientOpts := s3.Options{
		Region:       opts.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, ""),
		UsePathStyle: true,
	}
	if opts.Endpoint != "" {
		endpoint := strings.TrimSuffix(opts.Endpoint, "/"+opts.Bucket)
		clientOpts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Store{
		client: s3.New(clientOpts),
		bucket: opts.Bucket,
	}, nil
}

// Put uploads an object with its tracing metadata. Mirrored keys never
// change content, so the immutable cache policy is set at write time.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(CacheControl),
		Metadata:     metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Get retrieves an object and its content type.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return result.Body, contentType, nil
}
