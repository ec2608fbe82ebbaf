package storage

import (
	"context"
	"testing"

	"arpa-go/internal/config"
)

func TestNewStorageFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("filesystem", func(t *testing.T) {
		s, err := NewStorageFromConfig(ctx, config.ArchiveConfig{
			Type: "filesystem", Root: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewStorageFromConfig() error = %v", err)
		}
		if _, ok := s.(*FileSystemStorage); !ok {
			t.Fatalf("got %T, want *FileSystemStorage", s)
		}
	})

	t.Run("filesystem requires a root", func(t *testing.T) {
		if _, err := NewStorageFromConfig(ctx, config.ArchiveConfig{Type: "filesystem"}); err == nil {
			t.Fatal("NewStorageFromConfig() = nil error without root")
		}
	})

	t.Run("memory", func(t *testing.T) {
		s, err := NewStorageFromConfig(ctx, config.ArchiveConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStorageFromConfig() error = %v", err)
		}
		if _, ok := s.(*MemoryStorage); !ok {
			t.Fatalf("got %T, want *MemoryStorage", s)
		}
	})

	t.Run("s3 requires a bucket", func(t *testing.T) {
		if _, err := NewStorageFromConfig(ctx, config.ArchiveConfig{Type: "s3"}); err == nil {
			t.Fatal("NewStorageFromConfig() = nil error without bucket")
		}
	})

	t.Run("unknown type is an error", func(t *testing.T) {
		if _, err := NewStorageFromConfig(ctx, config.ArchiveConfig{Type: "tape"}); err == nil {
			t.Fatal("NewStorageFromConfig() = nil error for unknown type")
		}
	})
}
