package arpa

import "io"

// Storage is the archival backend for raw observation files. Keys are
// relative paths of the form <PULSAR>/<telescope>/<frontend>/<backend>/<name>,
// so a filesystem backend lays files out the way observers expect to
// browse them.
type Storage interface {
	// Put archives content under key and returns the canonical stored
	// location (an absolute path, mem:// key, or s3:// URL). Storing
	// the same key twice is a no-op returning the existing location.
	// checksum is the SHA-256 of the content; backends that can verify
	// the written bytes must do so before returning.
	Put(key string, checksum string, r io.Reader, size int64) (string, error)

	// Get retrieves archived content by key and writes it to w.
	Get(key string, w io.Writer) error

	// ValidateSetup verifies the backend is accessible and writable.
	ValidateSetup() error
}
