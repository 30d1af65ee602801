package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"

	"mercator-hq/throttle/pkg/limits/observer"
)

const (
	// DriverModernc selects the pure Go driver (modernc.org/sqlite).
	DriverModernc = "sqlite"

	// DriverMattn selects the cgo driver (github.com/mattn/go-sqlite3).
	DriverMattn = "sqlite3"
)

// SQLiteBackend implements Backend using SQLite for persistence.
// It is suitable for single-instance deployments that keep throughput
// history across restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) and a single connection, and
// checkpoints the WAL periodically in the background.
type SQLiteBackend struct {
	db                 *sql.DB
	path               string
	driver             string
	checkpointInterval time.Duration
	logger             *slog.Logger
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	saveStmt         *sql.Stmt
	countStmt        *sql.Stmt
	cleanupStmt      *sql.Stmt
	deleteOldestStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// Driver selects the database/sql driver: "sqlite" (default) or
	// "sqlite3".
	Driver string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend at path with default settings.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{Path: path})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q (expected %q or %q)",
			cfg.Driver, DriverModernc, DriverMattn)
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer; one connection also keeps the
	// pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		path:               cfg.Path,
		driver:             cfg.Driver,
		checkpointInterval: cfg.CheckpointInterval,
		logger:             slog.Default().With("component", "limits.storage.sqlite"),
		done:               make(chan struct{}),
	}

	if err := backend.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	backend.logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
	)

	return backend, nil
}

// initialize applies pragmas, creates the schema and checks its version.
func (s *SQLiteBackend) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, schemaVersion); err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", schemaVersion, version)
	}
	return nil
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO throughput_events (
			id, limiter, sampler_id, recorded_at,
			sample_time, interval_ns, interval_overload_ns,
			passed, denied, total_passed, total_denied, overloaded,
			interval_throughput, total_throughput
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			limiter = excluded.limiter,
			sampler_id = excluded.sampler_id,
			recorded_at = excluded.recorded_at,
			sample_time = excluded.sample_time,
			interval_ns = excluded.interval_ns,
			interval_overload_ns = excluded.interval_overload_ns,
			passed = excluded.passed,
			denied = excluded.denied,
			total_passed = excluded.total_passed,
			total_denied = excluded.total_denied,
			overloaded = excluded.overloaded,
			interval_throughput = excluded.interval_throughput,
			total_throughput = excluded.total_throughput
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM throughput_events`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM throughput_events
		WHERE recorded_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	s.deleteOldestStmt, err = s.db.Prepare(`
		DELETE FROM throughput_events
		WHERE id IN (
			SELECT id FROM throughput_events
			ORDER BY recorded_at ASC, id ASC
			LIMIT ?
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete oldest statement: %w", err)
	}

	return nil
}

// Save persists a record.
func (s *SQLiteBackend) Save(ctx context.Context, record *Record) error {
	if err := record.validate(); err != nil {
		return err
	}

	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	e := record.Event
	_, err := s.saveStmt.ExecContext(ctx,
		record.ID,
		record.Limiter,
		record.SamplerID,
		recordedAt.UnixNano(),
		int64(e.SampleTime),
		int64(e.Interval),
		int64(e.IntervalOverload),
		int64(e.Passed),
		int64(e.Denied),
		int64(e.TotalPassed),
		int64(e.TotalDenied),
		boolToInt(e.Overloaded),
		e.IntervalThroughput,
		e.TotalThroughput,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// List returns records matching query, oldest first.
func (s *SQLiteBackend) List(ctx context.Context, query *Query) ([]*Record, error) {
	stmt, args := buildListQuery(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.isClosed() {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.isClosed() {
		return 0, ErrClosed
	}

	var count int64
	if err := s.countStmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Cleanup removes records recorded before olderThan.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return 0, ErrClosed
	}

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// DeleteOldest removes up to n of the oldest records.
func (s *SQLiteBackend) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return 0, ErrClosed
	}

	result, err := s.deleteOldestStmt.ExecContext(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		close(s.done)

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.countStmt, s.cleanupStmt, s.deleteOldestStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})

	return closeErr
}

// Driver returns the database/sql driver name in use.
func (s *SQLiteBackend) Driver() string {
	return s.driver
}

// isClosed reports whether Close has run. Caller must hold s.mu.
func (s *SQLiteBackend) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.isClosed() {
				if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
					s.logger.Warn("WAL checkpoint failed", "error", err)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// buildListQuery renders the SELECT for query.
func buildListQuery(query *Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if query == nil {
		query = &Query{}
	}

	if query.Limiter != "" {
		where = append(where, "limiter = ?")
		args = append(args, query.Limiter)
	}
	if !query.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, query.Since.UnixNano())
	}
	if !query.Until.IsZero() {
		where = append(where, "recorded_at < ?")
		args = append(args, query.Until.UnixNano())
	}
	if query.OverloadedOnly {
		where = append(where, "(interval_overload_ns > 0 OR overloaded = 1)")
	}

	var b strings.Builder
	b.WriteString(selectColumns)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY recorded_at ASC, rowid ASC")
	if query.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}
	return b.String(), args
}

// scanRecord reads one row produced by selectColumns.
func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		record                                   Record
		recordedAt, overloaded                   int64
		sampleTime, interval, intervalOverload   int64
		passed, denied, totalPassed, totalDenied int64
	)

	err := rows.Scan(
		&record.ID,
		&record.Limiter,
		&record.SamplerID,
		&recordedAt,
		&sampleTime,
		&interval,
		&intervalOverload,
		&passed,
		&denied,
		&totalPassed,
		&totalDenied,
		&overloaded,
		&record.Event.IntervalThroughput,
		&record.Event.TotalThroughput,
	)
	if err != nil {
		return nil, err
	}

	record.RecordedAt = time.Unix(0, recordedAt)
	record.Event = observer.ThroughputEvent{
		SampleTime:         time.Duration(sampleTime),
		Interval:           time.Duration(interval),
		IntervalOverload:   time.Duration(intervalOverload),
		Passed:             uint64(passed),
		Denied:             uint64(denied),
		TotalPassed:        uint64(totalPassed),
		TotalDenied:        uint64(totalDenied),
		Overloaded:         overloaded != 0,
		IntervalThroughput: record.Event.IntervalThroughput,
		TotalThroughput:    record.Event.TotalThroughput,
	}
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
