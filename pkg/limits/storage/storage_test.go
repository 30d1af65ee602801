package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/limits/observer"
)

// backendFactories lists every Backend implementation under test.
func backendFactories() map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"sqlite-modernc": func(t *testing.T) Backend {
			return newTestSQLiteBackend(t, DriverModernc)
		},
		"sqlite-mattn": func(t *testing.T) Backend {
			return newTestSQLiteBackend(t, DriverMattn)
		},
	}
}

func newTestSQLiteBackend(t *testing.T, driver string) *SQLiteBackend {
	t.Helper()
	backend, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		Path:   filepath.Join(t.TempDir(), "throttle.db"),
		Driver: driver,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	return backend
}

func testRecord(id, limiter string, at time.Time) *Record {
	return &Record{
		ID:         id,
		Limiter:    limiter,
		SamplerID:  "sampler-1",
		RecordedAt: at,
		Event: observer.ThroughputEvent{
			SampleTime:         10 * time.Second,
			Interval:           2 * time.Second,
			IntervalOverload:   500 * time.Millisecond,
			Passed:             100,
			Denied:             7,
			TotalPassed:        1000,
			TotalDenied:        70,
			Overloaded:         true,
			IntervalThroughput: 50,
			TotalThroughput:    12.5,
		},
	}
}

// ===== Save and List =====

func TestBackend_SaveAndList(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			at := time.Unix(1_700_000_000, 123)
			want := testRecord("rec-1", "api", at)

			if err := backend.Save(ctx, want); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			records, err := backend.List(ctx, &Query{})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("Expected 1 record, got %d", len(records))
			}

			got := records[0]
			if got.ID != want.ID || got.Limiter != want.Limiter || got.SamplerID != want.SamplerID {
				t.Errorf("Expected %+v, got %+v", want, got)
			}
			if !got.RecordedAt.Equal(at) {
				t.Errorf("Expected recorded_at %v, got %v", at, got.RecordedAt)
			}
			if got.Event != want.Event {
				t.Errorf("Expected event %+v, got %+v", want.Event, got.Event)
			}
		})
	}
}

func TestBackend_SaveInvalid(t *testing.T) {
	tests := []struct {
		name   string
		record *Record
	}{
		{"nil record", nil},
		{"empty id", &Record{Limiter: "api"}},
		{"empty limiter", &Record{ID: "rec-1"}},
	}

	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					err := backend.Save(context.Background(), tt.record)
					if !errors.Is(err, ErrInvalidRecord) {
						t.Errorf("Expected ErrInvalidRecord, got %v", err)
					}
				})
			}
		})
	}
}

func TestBackend_SaveReplacesSameID(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			first := testRecord("rec-1", "api", time.Unix(100, 0))
			second := testRecord("rec-1", "api", time.Unix(100, 0))
			second.Event.Passed = 42

			if err := backend.Save(ctx, first); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := backend.Save(ctx, second); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			count, err := backend.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != 1 {
				t.Errorf("Expected 1 record, got %d", count)
			}

			records, _ := backend.List(ctx, nil)
			if len(records) != 1 || records[0].Event.Passed != 42 {
				t.Errorf("Expected replaced record with passed=42, got %+v", records)
			}
		})
	}
}

func TestBackend_ListFilters(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		query   *Query
		wantIDs []string
	}{
		{"nil query", nil, []string{"a1", "b1", "a2", "b2", "a3"}},
		{"by limiter", &Query{Limiter: "a"}, []string{"a1", "a2", "a3"}},
		{"since", &Query{Since: base.Add(2 * time.Minute)}, []string{"a2", "b2", "a3"}},
		{"until", &Query{Until: base.Add(2 * time.Minute)}, []string{"a1", "b1"}},
		{"window and limiter", &Query{Limiter: "b", Since: base.Add(time.Minute), Until: base.Add(4 * time.Minute)}, []string{"b1", "b2"}},
		{"limit", &Query{Limit: 2}, []string{"a1", "b1"}},
		{"overloaded only", &Query{OverloadedOnly: true}, []string{"a2"}},
	}

	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			for i, id := range []string{"a1", "b1", "a2", "b2", "a3"} {
				r := testRecord(id, id[:1], base.Add(time.Duration(i)*time.Minute))
				r.Event.Overloaded = false
				r.Event.IntervalOverload = 0
				if id == "a2" {
					r.Event.IntervalOverload = time.Second
				}
				if err := backend.Save(ctx, r); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					records, err := backend.List(ctx, tt.query)
					if err != nil {
						t.Fatalf("List failed: %v", err)
					}
					if len(records) != len(tt.wantIDs) {
						t.Fatalf("Expected %d records, got %d", len(tt.wantIDs), len(records))
					}
					for i, id := range tt.wantIDs {
						if records[i].ID != id {
							t.Errorf("Record %d: expected %s, got %s", i, id, records[i].ID)
						}
					}
				})
			}
		})
	}
}

// ===== Cleanup =====

func TestBackend_Cleanup(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			now := time.Now()
			for i := 0; i < 5; i++ {
				r := testRecord(fmt.Sprintf("old-%d", i), "api", now.Add(-48*time.Hour))
				if err := backend.Save(ctx, r); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}
			for i := 0; i < 3; i++ {
				r := testRecord(fmt.Sprintf("new-%d", i), "api", now)
				if err := backend.Save(ctx, r); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			deleted, err := backend.Cleanup(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if deleted != 5 {
				t.Errorf("Expected 5 deleted, got %d", deleted)
			}

			count, _ := backend.Count(ctx)
			if count != 3 {
				t.Errorf("Expected 3 remaining, got %d", count)
			}
		})
	}
}

func TestBackend_DeleteOldest(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			base := time.Unix(1_700_000_000, 0)
			for i := 0; i < 6; i++ {
				r := testRecord(fmt.Sprintf("rec-%d", i), "api", base.Add(time.Duration(i)*time.Second))
				if err := backend.Save(ctx, r); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			if deleted, err := backend.DeleteOldest(ctx, 0); err != nil || deleted != 0 {
				t.Errorf("Expected no-op for n=0, got %d, %v", deleted, err)
			}

			deleted, err := backend.DeleteOldest(ctx, 4)
			if err != nil {
				t.Fatalf("DeleteOldest failed: %v", err)
			}
			if deleted != 4 {
				t.Errorf("Expected 4 deleted, got %d", deleted)
			}

			records, _ := backend.List(ctx, nil)
			if len(records) != 2 || records[0].ID != "rec-4" || records[1].ID != "rec-5" {
				t.Errorf("Expected the two newest records to remain, got %+v", records)
			}

			deleted, _ = backend.DeleteOldest(ctx, 10)
			if deleted != 2 {
				t.Errorf("Expected 2 deleted, got %d", deleted)
			}
		})
	}
}

// ===== Lifecycle =====

func TestBackend_UseAfterClose(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			if err := backend.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			ctx := context.Background()
			if err := backend.Save(ctx, testRecord("rec-1", "api", time.Now())); !errors.Is(err, ErrClosed) {
				t.Errorf("Save: expected ErrClosed, got %v", err)
			}
			if _, err := backend.List(ctx, nil); !errors.Is(err, ErrClosed) {
				t.Errorf("List: expected ErrClosed, got %v", err)
			}
			if _, err := backend.Count(ctx); !errors.Is(err, ErrClosed) {
				t.Errorf("Count: expected ErrClosed, got %v", err)
			}

			// Close is idempotent.
			if err := backend.Close(); err != nil {
				t.Errorf("Second Close failed: %v", err)
			}
		})
	}
}

func TestBackend_ConcurrentSaves(t *testing.T) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						r := testRecord(fmt.Sprintf("g%d-%d", g, i), "api", time.Now())
						if err := backend.Save(ctx, r); err != nil {
							t.Errorf("Save failed: %v", err)
						}
					}
				}(g)
			}
			wg.Wait()

			count, err := backend.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != 200 {
				t.Errorf("Expected 200 records, got %d", count)
			}
		})
	}
}
