package storage

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"arpa-go/internal/arpa"
)

// MemoryStorage is an in-memory implementation of the Storage
// interface, useful for testing. It is safe for concurrent use.
type MemoryStorage struct {
	content map[string][]byte // key -> content
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory archive.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		content: make(map[string][]byte),
	}
}

// Put archives content under key and returns "mem://" + key.
func (m *MemoryStorage) Put(key string, checksum string, r io.Reader, size int64) (string, error) {
	got, data, err := digestAndBuffer(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	if got != checksum {
		return "", fmt.Errorf("checksum mismatch: expected %s, got %s", checksum, got)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.content[key]; ok {
		if !bytes.Equal(existing, data) {
			return "", fmt.Errorf("checksum mismatch for existing key %s", key)
		}
		return "mem://" + key, nil
	}

	m.content[key] = data
	return "mem://" + key, nil
}

// Get retrieves archived content by key.
func (m *MemoryStorage) Get(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[key]
	if !ok {
		return fmt.Errorf("archive content not found: %s", key)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory storage.
func (m *MemoryStorage) ValidateSetup() error {
	return nil
}

// Len returns the number of archived objects. For tests.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// digestAndBuffer consumes r fully, returning its SHA-256 hex digest
// and the buffered bytes.
func digestAndBuffer(r io.Reader) (string, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	sum, _, err := digestAll(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}
	return sum, data, nil
}

// Compile-time check that MemoryStorage implements arpa.Storage
var _ arpa.Storage = (*MemoryStorage)(nil)
