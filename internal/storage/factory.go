package storage

import (
	"context"
	"fmt"

	"arpa-go/internal/arpa"
	"arpa-go/internal/config"
)

// NewStorageFromConfig creates a Storage implementation based on the archive config type.
func NewStorageFromConfig(ctx context.Context, cfg config.ArchiveConfig) (arpa.Storage, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("root required for filesystem archive")
		}
		return NewFileSystemStorage(cfg.Root)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3_bucket required for s3 archive")
		}
		return NewS3Storage(ctx, S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
