// Package tracker projects the status channel into a queryable store
package tracker

import (
	"context"
	"maps"
	"sync"

	"github.com/cuongbtq/media-conversor/internal/domain"
)

// Store keeps the latest status record per job
type Store interface {
	// Apply stores rec unless the current record supersedes it; it reports whether rec was stored.
	// Applying the same record twice is harmless.
	Apply(ctx context.Context, rec domain.StatusRecord) (bool, error)
	// Get returns domain.ErrJobNotFound for unknown jobs
	Get(ctx context.Context, jobID string) (domain.StatusRecord, error)
}

// supersedes reports whether next replaces current.
// Terminal records are sticky; only a newer queued record (a requeued job) starts a new lifecycle.
// Between non-terminal records the one further along wins, so a redelivered older record never
// moves a job backwards.
func supersedes(current, next domain.StatusRecord) bool {
	if current.Status.IsTerminal() {
		return next.Status == domain.StatusQueued && next.Timestamp.After(current.Timestamp)
	}
	if next.Status.IsTerminal() {
		return true
	}
	if c, n := progress(current), progress(next); c != n {
		return n > c
	}
	return !next.Timestamp.Before(current.Timestamp)
}

// progress orders the non-terminal records of one lifecycle: by attempt, queued before processing.
// Records come from different hosts, so wall clock only breaks ties.
func progress(rec domain.StatusRecord) int {
	p := rec.Attempts * 2
	if rec.Status == domain.StatusProcessing {
		p++
	}
	return p
}

// MemoryStore is a Store for a single API replica
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.StatusRecord
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.StatusRecord)}
}

func (s *MemoryStore) Apply(_ context.Context, rec domain.StatusRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.records[rec.JobID]; ok && !supersedes(current, rec) {
		return false, nil
	}

	rec.Result = maps.Clone(rec.Result)
	s.records[rec.JobID] = rec
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (domain.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[jobID]
	if !ok {
		return domain.StatusRecord{}, domain.ErrJobNotFound
	}
	rec.Result = maps.Clone(rec.Result)
	return rec, nil
}
