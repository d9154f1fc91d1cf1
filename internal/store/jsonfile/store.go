// Package jsonfile implements the record and body stores on the local
// filesystem: one whole-dataset JSON file plus one text file per document
// body.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

const (
	datasetFile = "records.json"
	bodiesDir   = "bodies"
)

// Store persists the dataset and document bodies under a base directory.
type Store struct {
	baseDir string
}

// New prepares the base directory and returns a Store.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, bodiesDir), 0o750); err != nil {
		return nil, fmt.Errorf("create data directories: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// LoadAll reads the whole dataset. A missing dataset file is an empty set,
// not an error.
func (s *Store) LoadAll(_ context.Context) ([]pipeline.Record, error) {
	data, err := os.ReadFile(s.datasetPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var records []pipeline.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return records, nil
}

// SaveAll replaces the whole dataset atomically: the new set is written to
// a temp file and renamed over the old one, so a concurrent reader never
// observes a half-written file.
func (s *Store) SaveAll(_ context.Context, records []pipeline.Record) error {
	if records == nil {
		records = []pipeline.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	tmp := s.datasetPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write dataset temp file: %w", err)
	}
	if err := os.Rename(tmp, s.datasetPath()); err != nil {
		return fmt.Errorf("swap dataset file: %w", err)
	}
	return nil
}

// SaveBody writes one document body and returns its path relative to the
// base directory; that relative path is what gets recorded on the record.
func (s *Store) SaveBody(_ context.Context, rec pipeline.Record, text string) (string, error) {
	if rec.LocalID == "" {
		return "", fmt.Errorf("record has no local id")
	}
	rel := filepath.Join(bodiesDir, rec.LocalID+".txt")
	full := filepath.Join(s.baseDir, rel)

	// Guard against a hostile local id escaping the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.WriteFile(full, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write body file: %w", err)
	}
	return rel, nil
}

// Exists reports whether a previously recorded body path still holds a file.
func (s *Store) Exists(_ context.Context, path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(s.baseDir, path))
	return err == nil && !info.IsDir()
}

func (s *Store) datasetPath() string {
	return filepath.Join(s.baseDir, datasetFile)
}
