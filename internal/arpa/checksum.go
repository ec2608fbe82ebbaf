package arpa

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeChecksum computes the SHA-256 digest of a file's content,
// returned as lowercase hex. This is the archive's content identity:
// stable across runs and platforms for the same bytes.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s for checksum: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumReader computes the digest of everything read from r.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("reading for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
