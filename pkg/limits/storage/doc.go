// Package storage persists throughput events sampled from rate limiters.
//
// # Overview
//
// The storage package defines the Backend interface for throughput history
// and provides two implementations:
//
//   - Memory: in-memory storage (default, no persistence)
//   - SQLite: file-based persistence using either the pure Go driver
//     (modernc.org/sqlite, "sqlite") or the cgo driver
//     (github.com/mattn/go-sqlite3, "sqlite3")
//
// A Recorder adapts a Backend to observer.Listener so that every sampled
// event is written as a Record.
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
//	    Path:   "data/throttle.db",
//	    Driver: storage.DriverModernc,
//	})
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	registry.AddListener(storage.NewRecorder(backend, "api"), 10*time.Second)
//
//	records, err := backend.List(ctx, &storage.Query{Limiter: "api", Limit: 100})
//
// # Thread Safety
//
// All backends are safe for concurrent use. Locking is handled internally.
package storage
