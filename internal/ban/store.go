// Package ban owns the bridge's ban table: a durable, IP-keyed set of ban
// records consulted on every connection attempt and mutated by admin actions
// and rate-limiter escalation.
package ban

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the ban table to a single JSON file, rewritten wholesale on
// each save. The file is the sole source of truth across process restarts.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path. The parent
// directory is created if missing.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load reads the ban table from disk. A missing file yields an empty table.
func (s *Store) Load() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*Record), nil
		}
		return nil, fmt.Errorf("reading ban file: %w", err)
	}

	records := make(map[string]*Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing ban file: %w", err)
	}
	return records, nil
}

// Save writes the full ban table to disk atomically (temp file + rename).
func (s *Store) Save(records map[string]*Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing ban table: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing ban file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing ban file: %w", err)
	}
	return nil
}
