// Package memory provides in-memory store implementations used by tests and
// short-lived runs that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

// RecordStore keeps the dataset in process memory.
type RecordStore struct {
	mu      sync.Mutex
	records []pipeline.Record
}

// NewRecordStore returns an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Seed replaces the stored dataset, bypassing SaveAll. Test helper.
func (s *RecordStore) Seed(records []pipeline.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]pipeline.Record(nil), records...)
}

// LoadAll returns a copy of the stored dataset.
func (s *RecordStore) LoadAll(_ context.Context) ([]pipeline.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Record(nil), s.records...), nil
}

// SaveAll replaces the stored dataset with a copy of records.
func (s *RecordStore) SaveAll(_ context.Context, records []pipeline.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]pipeline.Record(nil), records...)
	return nil
}

// BodyStore keeps document bodies in a map keyed by their synthetic path.
type BodyStore struct {
	mu     sync.Mutex
	bodies map[string]string
}

// NewBodyStore returns an empty BodyStore.
func NewBodyStore() *BodyStore {
	return &BodyStore{bodies: make(map[string]string)}
}

// SaveBody stores the body and returns a path derived from the local id.
func (s *BodyStore) SaveBody(_ context.Context, rec pipeline.Record, text string) (string, error) {
	if rec.LocalID == "" {
		return "", fmt.Errorf("record has no local id")
	}
	p := path.Join("bodies", rec.LocalID+".txt")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[p] = text
	return p, nil
}

// Exists reports whether a body was stored under path.
func (s *BodyStore) Exists(_ context.Context, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bodies[path]
	return ok
}

// Body returns a stored body for assertions in tests.
func (s *BodyStore) Body(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.bodies[path]
	return text, ok
}
