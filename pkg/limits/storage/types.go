package storage

import (
	"context"
	"errors"
	"time"

	"mercator-hq/throttle/pkg/limits/observer"
)

var (
	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrClosed is returned when a backend is used after Close.
	ErrClosed = errors.New("storage backend closed")
)

// Backend defines the interface for throughput record persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Save persists a record. Records are immutable once saved; saving a
	// record with an existing ID replaces it.
	Save(ctx context.Context, record *Record) error

	// List returns records matching query, oldest first.
	// Returns an empty slice if nothing matches.
	List(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Cleanup removes records recorded before olderThan.
	// Returns the number of records deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)

	// DeleteOldest removes up to n of the oldest records.
	// Returns the number of records deleted.
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Close releases any resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// Record is one persisted throughput event.
type Record struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// Limiter is the name of the limiter the event was sampled from.
	Limiter string `json:"limiter"`

	// SamplerID identifies the sampler that produced the event, if known.
	SamplerID string `json:"sampler_id,omitempty"`

	// RecordedAt is the wall-clock time the record was created.
	RecordedAt time.Time `json:"recorded_at"`

	// Event is the sampled data.
	Event observer.ThroughputEvent `json:"event"`
}

// validate checks the fields every backend requires.
func (r *Record) validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if r.ID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("id cannot be empty"))
	}
	if r.Limiter == "" {
		return errors.Join(ErrInvalidRecord, errors.New("limiter cannot be empty"))
	}
	return nil
}

// Query filters records.
type Query struct {
	// Limiter restricts results to one limiter. Empty matches all.
	Limiter string

	// Since excludes records recorded before it. Zero means no lower bound.
	Since time.Time

	// Until excludes records recorded at or after it. Zero means no upper
	// bound.
	Until time.Time

	// OverloadedOnly restricts results to events with overload time.
	OverloadedOnly bool

	// Limit caps the number of results. 0 means unlimited.
	Limit int
}

// matches reports whether r passes the query filters.
func (q *Query) matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.Limiter != "" && r.Limiter != q.Limiter {
		return false
	}
	if !q.Since.IsZero() && r.RecordedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !r.RecordedAt.Before(q.Until) {
		return false
	}
	if q.OverloadedOnly && r.Event.IntervalOverload == 0 && !r.Event.Overloaded {
		return false
	}
	return true
}
