package determinism

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Baseline is one persisted entry: a key and the metrics digest it produced.
type Baseline struct {
	Key           Key    `json:"key"`
	MetricsDigest string `json:"metrics_digest"`
	SavedAt       string `json:"saved_at"`
}

// Store persists baselines keyed by DeterminismKey in a single JSON file.
// Save is an explicit overwrite; Lookup is read-only; a missing file or
// missing key is "no baseline", which callers must keep distinct from a
// digest mismatch.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

type storeFile struct {
	Baselines map[string]Baseline `json:"baselines"`
}

// Lookup returns the baseline for key if one was saved.
func (s *Store) Lookup(key Key) (Baseline, bool, error) {
	f, err := s.load()
	if err != nil {
		return Baseline{}, false, err
	}
	b, ok := f.Baselines[key.String()]
	return b, ok, nil
}

// Save persists a baseline for key, unconditionally overwriting any prior
// entry for the same key.
func (s *Store) Save(key Key, metricsDigest string) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	f.Baselines[key.String()] = Baseline{
		Key:           key,
		MetricsDigest: metricsDigest,
		SavedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baselines: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	// atomic write: temp file + rename
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write baselines: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename baselines: %w", err)
	}
	return nil
}

func (s *Store) load() (storeFile, error) {
	f := storeFile{Baselines: map[string]Baseline{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("read baselines: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse baselines %s: %w", s.path, err)
	}
	if f.Baselines == nil {
		f.Baselines = map[string]Baseline{}
	}
	return f, nil
}
