// Package checksum computes streaming SHA-256 digests and persists a
// per-filename checksum sidecar used for local resumption.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// chunkSize keeps hashing memory-bounded for multi-gigabyte scans.
const chunkSize = 64 * 1024

// Entry records the digest of one downloaded file.
type Entry struct {
	SHA256     string `json:"sha256"`
	Size       int64  `json:"size"`
	Downloaded string `json:"downloaded"`
	Identifier string `json:"identifier"`
}

// Store is an in-memory checksum map backed by a JSON sidecar file. It is
// mutated only by the orchestrating goroutine, so it carries no lock.
type Store struct {
	path    string
	entries map[string]Entry
}

// Load reads the sidecar if present; a missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read checksum file: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("decode checksum file: %w", err)
	}
	return s, nil
}

// Put records the entry for a filename.
func (s *Store) Put(filename, identifier, digest string, size int64, at time.Time) {
	s.entries[filename] = Entry{
		SHA256:     digest,
		Size:       size,
		Downloaded: at.Format(time.RFC3339),
		Identifier: identifier,
	}
}

// Get returns the entry for a filename, if known.
func (s *Store) Get(filename string) (Entry, bool) {
	e, ok := s.entries[filename]
	return e, ok
}

// Len reports the number of tracked files.
func (s *Store) Len() int { return len(s.entries) }

// Flush writes the sidecar to disk.
func (s *Store) Flush() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checksums: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checksum file: %w", err)
	}
	return nil
}

// SumFile computes the hex SHA-256 of a file in fixed-size chunks.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
