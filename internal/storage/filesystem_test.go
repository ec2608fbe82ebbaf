package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func TestFileSystemStorage(t *testing.T) {
	newStore := func(t *testing.T) *FileSystemStorage {
		t.Helper()
		s, err := NewFileSystemStorage(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemStorage() error = %v", err)
		}
		return s
	}

	t.Run("put then get round-trips", func(t *testing.T) {
		s := newStore(t)
		content := "raw observation bytes"

		location, err := s.Put("0437/parkes/MULTI/CPSR2/obs1.cf", sum(content),
			strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if !filepath.IsAbs(location) {
			t.Errorf("location = %q, want absolute path", location)
		}

		var buf bytes.Buffer
		if err := s.Get("0437/parkes/MULTI/CPSR2/obs1.cf", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != content {
			t.Errorf("Get() = %q, want %q", buf.String(), content)
		}
	})

	t.Run("repeated put of identical content is a no-op", func(t *testing.T) {
		s := newStore(t)
		content := "raw observation bytes"

		first, err := s.Put("key", sum(content), strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("first Put() error = %v", err)
		}
		second, err := s.Put("key", sum(content), strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("second Put() error = %v", err)
		}
		if second != first {
			t.Errorf("locations differ: %q vs %q", first, second)
		}
	})

	t.Run("put of different content under an existing key fails", func(t *testing.T) {
		s := newStore(t)
		content := "raw observation bytes"
		if _, err := s.Put("key", sum(content), strings.NewReader(content), int64(len(content))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		other := "different bytes"
		if _, err := s.Put("key", sum(other), strings.NewReader(other), int64(len(other))); err == nil {
			t.Fatal("Put() with conflicting content = nil error")
		}
	})

	t.Run("checksum mismatch leaves nothing behind", func(t *testing.T) {
		s := newStore(t)
		content := "raw observation bytes"

		_, err := s.Put("key", sum("something else"), strings.NewReader(content), int64(len(content)))
		if err == nil {
			t.Fatal("Put() with wrong checksum = nil error")
		}
		var buf bytes.Buffer
		if err := s.Get("key", &buf); err == nil {
			t.Fatal("Get() succeeded after failed Put")
		}
	})

	t.Run("size mismatch is an error", func(t *testing.T) {
		s := newStore(t)
		content := "raw observation bytes"
		if _, err := s.Put("key", sum(content), strings.NewReader(content), 5); err == nil {
			t.Fatal("Put() with wrong size = nil error")
		}
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		s := newStore(t)
		for _, key := range []string{"../evil", "/etc/passwd", ".."} {
			if _, err := s.Put(key, sum("x"), strings.NewReader("x"), 1); err == nil {
				t.Errorf("Put(%q) = nil error, want rejection", key)
			}
		}
	})

	t.Run("missing key is an error", func(t *testing.T) {
		s := newStore(t)
		var buf bytes.Buffer
		if err := s.Get("nope", &buf); err == nil {
			t.Fatal("Get(missing) = nil error")
		}
	})

	t.Run("validate setup flags a removed root", func(t *testing.T) {
		root := t.TempDir()
		s, err := NewFileSystemStorage(root)
		if err != nil {
			t.Fatalf("NewFileSystemStorage() error = %v", err)
		}
		if err := s.ValidateSetup(); err != nil {
			t.Fatalf("ValidateSetup() error = %v", err)
		}
		os.RemoveAll(root)
		if err := s.ValidateSetup(); err == nil {
			t.Fatal("ValidateSetup() = nil error after root removal")
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	t.Run("put then get round-trips", func(t *testing.T) {
		s := NewMemoryStorage()
		content := "raw observation bytes"

		location, err := s.Put("key", sum(content), strings.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if location != "mem://key" {
			t.Errorf("location = %q, want mem://key", location)
		}

		var buf bytes.Buffer
		if err := s.Get("key", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != content {
			t.Errorf("Get() = %q, want %q", buf.String(), content)
		}
	})

	t.Run("conflicting content under an existing key fails", func(t *testing.T) {
		s := NewMemoryStorage()
		content := "raw observation bytes"
		if _, err := s.Put("key", sum(content), strings.NewReader(content), int64(len(content))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		other := "different bytes"
		if _, err := s.Put("key", sum(other), strings.NewReader(other), int64(len(other))); err == nil {
			t.Fatal("Put() with conflicting content = nil error")
		}
	})

	t.Run("wrong checksum is rejected", func(t *testing.T) {
		s := NewMemoryStorage()
		if _, err := s.Put("key", sum("other"), strings.NewReader("content"), 7); err == nil {
			t.Fatal("Put() with wrong checksum = nil error")
		}
	})
}
