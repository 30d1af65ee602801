package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/throttle/pkg/limits/storage"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep throughput records.
	// 0 means keep records forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// MaxRecords caps the number of stored records. 0 means unlimited.
	MaxRecords int64

	// ArchivePath, when set, receives a JSON Lines file with every
	// age-pruned record before it is deleted.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner enforces retention policies on throughput records.
type Pruner struct {
	backend storage.Backend
	config  *Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a retention pruner for backend.
func NewPruner(backend storage.Backend, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		backend: backend,
		config:  config,
		logger:  slog.Default().With("component", "limits.retention"),
		now:     time.Now,
	}
}

// Prune deletes records older than the retention period, then the oldest
// records beyond MaxRecords. Returns the total number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("throughput record pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}

	return total, nil
}

// pruneByAge deletes records older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)

	if p.config.ArchivePath != "" {
		if err := p.archive(ctx, cutoff); err != nil {
			return 0, err
		}
	}

	deleted, err := p.backend.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	p.logger.Debug("pruned records by age",
		"deleted_count", deleted,
		"cutoff_time", cutoff,
	)
	return deleted, nil
}

// pruneByCount deletes the oldest records beyond MaxRecords.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	excess := count - p.config.MaxRecords
	p.logger.Info("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", excess,
	)

	return p.backend.DeleteOldest(ctx, excess)
}

// archive writes records older than cutoff to a JSON Lines file.
func (p *Pruner) archive(ctx context.Context, cutoff time.Time) error {
	records, err := p.backend.List(ctx, &storage.Query{Until: cutoff})
	if err != nil {
		return fmt.Errorf("failed to query records for archiving: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("throughput-%s.jsonl", p.now().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
	}

	p.logger.Info("throughput records archived",
		"archive_file", path,
		"record_count", len(records),
	)
	return f.Sync()
}
