package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arpa-go/internal/arpa"
)

// FileSystemStorage archives raw observation files under a root
// directory. Keys are relative paths, so the on-disk layout mirrors
// the archive hierarchy:
//
//	<root>/
//	  <PULSAR>/<telescope>/<frontend>/<backend>/<name>
type FileSystemStorage struct {
	root string
}

// NewFileSystemStorage creates a filesystem archive rooted at the given path.
func NewFileSystemStorage(root string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FileSystemStorage{root: root}, nil
}

// resolve maps a key to a path under root, rejecting keys that would
// escape it.
func (s *FileSystemStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid archive key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put archives content under key and returns the absolute stored path.
// The operation is idempotent: if the key already exists the incoming
// content is consumed and verified against the expected checksum, so a
// repeated upload of different bytes under the same key is an error.
func (s *FileSystemStorage) Put(key string, checksum string, r io.Reader, size int64) (string, error) {
	destPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(destPath); err == nil {
		got, written, err := digestAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		if got != checksum {
			return "", fmt.Errorf("checksum mismatch for existing key %s", key)
		}
		return destPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := s.writeFile(destPath, checksum, r, size); err != nil {
		return "", err
	}
	return destPath, nil
}

// Get retrieves archived content by key and writes it to w.
func (s *FileSystemStorage) Get(key string, w io.Writer) error {
	srcPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive content not found: %s", key)
		}
		return fmt.Errorf("failed to open archived file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archived file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the archive root is accessible.
func (s *FileSystemStorage) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write
// (temp file + rename), verifying size and checksum before the rename.
func (s *FileSystemStorage) writeFile(destPath, checksum string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	written, err := io.Copy(tmpFile, io.TeeReader(r, h))
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", checksum, got)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// digestAll consumes r fully, returning its SHA-256 hex digest and length.
func digestAll(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Compile-time check that FileSystemStorage implements arpa.Storage
var _ arpa.Storage = (*FileSystemStorage)(nil)
