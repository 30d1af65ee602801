package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using an in-memory slice.
// This is the default when persistence is disabled. Records are lost on
// restart.
type MemoryBackend struct {
	records []*Record
	index   map[string]int
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		index: make(map[string]int),
	}
}

// Save persists a record in memory.
func (m *MemoryBackend) Save(ctx context.Context, record *Record) error {
	if err := record.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Copy to avoid external mutation
	stored := *record
	if stored.RecordedAt.IsZero() {
		stored.RecordedAt = time.Now()
	}

	if i, ok := m.index[stored.ID]; ok {
		m.records[i] = &stored
		return nil
	}
	m.index[stored.ID] = len(m.records)
	m.records = append(m.records, &stored)
	return nil
}

// List returns records matching query, oldest first.
func (m *MemoryBackend) List(ctx context.Context, query *Query) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	results := make([]*Record, 0)
	for _, r := range m.records {
		if query.matches(r) {
			copied := *r
			results = append(results, &copied)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RecordedAt.Before(results[j].RecordedAt)
	})

	if query != nil && query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of stored records.
func (m *MemoryBackend) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.records)), nil
}

// Cleanup removes records recorded before olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	return m.removeWhere(func(r *Record) bool {
		return r.RecordedAt.Before(olderThan)
	}), nil
}

// DeleteOldest removes up to n of the oldest records.
func (m *MemoryBackend) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if n <= 0 {
		return 0, nil
	}
	if n >= int64(len(m.records)) {
		deleted := int64(len(m.records))
		m.records = nil
		m.index = make(map[string]int)
		return deleted, nil
	}

	byAge := make([]*Record, len(m.records))
	copy(byAge, m.records)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].RecordedAt.Before(byAge[j].RecordedAt)
	})

	doomed := make(map[string]struct{}, n)
	for _, r := range byAge[:n] {
		doomed[r.ID] = struct{}{}
	}
	return m.removeWhere(func(r *Record) bool {
		_, ok := doomed[r.ID]
		return ok
	}), nil
}

// removeWhere drops matching records and rebuilds the index.
// Caller must hold the write lock.
func (m *MemoryBackend) removeWhere(match func(*Record) bool) int64 {
	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if match(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = nil
	}
	m.records = kept

	m.index = make(map[string]int, len(kept))
	for i, r := range kept {
		m.index[r.ID] = i
	}
	return deleted
}

// Close releases resources. Close is idempotent.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.index = nil
	return nil
}
