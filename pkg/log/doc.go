/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	workerLog := log.WithComponent("worker")
	workerLog.Info().Str("job_id", jobID).Msg("job leased")

	dsLog := log.WithDataset("user/dataset")
	dsLog.Warn().Msg("revision changed during compute")

Structured fields:

	log.Logger.Error().
		Err(err).
		Str("kind", "config-parquet").
		Msg("commit failed")

# Integration Points

  - pkg/worker: job lease, execution and commit logging
  - pkg/orchestrator: webhook and backfill decisions
  - pkg/reconciler: zombie reclaim and purge sweeps
  - pkg/api: request logging middleware
*/
package log
