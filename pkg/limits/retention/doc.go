// Package retention prunes stored throughput records.
//
// Records are deleted once they are older than RetentionDays, and the oldest
// are deleted whenever the store holds more than MaxRecords. Pruning runs on
// a cron schedule (github.com/robfig/cron/v3) or on demand:
//
//	pruner := retention.NewPruner(backend, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	})
//	scheduler := retention.NewScheduler(pruner)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
//
//	deleted, err := pruner.Prune(ctx)
package retention
