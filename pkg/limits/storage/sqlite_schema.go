package storage

// schemaVersion is the current database schema version.
const schemaVersion = 1

// schema creates the throughput history tables.
const schema = `
CREATE TABLE IF NOT EXISTS throughput_events (
    id TEXT PRIMARY KEY,
    limiter TEXT NOT NULL,
    sampler_id TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL,

    sample_time INTEGER NOT NULL,
    interval_ns INTEGER NOT NULL,
    interval_overload_ns INTEGER NOT NULL,

    passed INTEGER NOT NULL,
    denied INTEGER NOT NULL,
    total_passed INTEGER NOT NULL,
    total_denied INTEGER NOT NULL,
    overloaded INTEGER NOT NULL,

    interval_throughput REAL NOT NULL,
    total_throughput REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_throughput_events_recorded_at ON throughput_events(recorded_at);
CREATE INDEX IF NOT EXISTS idx_throughput_events_limiter ON throughput_events(limiter, recorded_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

const getSchemaVersion = `SELECT MAX(version) FROM schema_version`

// selectColumns is the column list scanRecord expects.
const selectColumns = `
SELECT id, limiter, sampler_id, recorded_at,
       sample_time, interval_ns, interval_overload_ns,
       passed, denied, total_passed, total_denied, overloaded,
       interval_throughput, total_throughput
FROM throughput_events`
