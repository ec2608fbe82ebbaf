package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"arpa-go/internal/arpa"
)

// checksumMetadataKey is the S3 object metadata key carrying the
// SHA-256 of the archived content.
const checksumMetadataKey = "arpa-checksum"

// S3Storage archives raw observation files in an S3-compatible bucket
// (AWS S3 or MinIO). Keys map to object keys under an optional prefix.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds explicit construction parameters. Credentials fall
// back to the default AWS chain when not set.
type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional
	SecretAccessKey string // optional
	PathStyle       bool
}

// NewS3Storage creates an S3 archive from S3Config.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put archives content under key and returns the s3:// URL of the
// stored object. If the object already exists its recorded checksum is
// compared against the incoming one, so re-uploading identical content
// is a no-op and conflicting content is an error.
func (s *S3Storage) Put(key string, checksum string, r io.Reader, size int64) (string, error) {
	ctx := context.Background()
	objKey := s.objectKey(key)
	location := fmt.Sprintf("s3://%s/%s", s.bucket, objKey)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err == nil {
		if existing := head.Metadata[checksumMetadataKey]; existing != checksum {
			return "", fmt.Errorf("checksum mismatch for existing key %s", key)
		}
		// Consume the reader to maintain expected behavior
		got, written, err := digestAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		if got != checksum {
			return "", fmt.Errorf("checksum mismatch: expected %s, got %s", checksum, got)
		}
		return location, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &objKey,
		Body:          r,
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{checksumMetadataKey: checksum},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return location, nil
}

// Get retrieves archived content by key and writes it to w.
func (s *S3Storage) Get(key string, w io.Writer) error {
	ctx := context.Background()
	objKey := s.objectKey(key)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		return fmt.Errorf("archive content not found: %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read archived object: %w", err)
	}
	return nil
}

// ValidateSetup verifies the bucket is accessible.
func (s *S3Storage) ValidateSetup() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// Compile-time check that S3Storage implements arpa.Storage
var _ arpa.Storage = (*S3Storage)(nil)
