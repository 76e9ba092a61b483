package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/steps"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// Planner schedules follow-up work after a job lands. The orchestrator
// implements it; re-planning the whole dataset after each commit is what
// fans the graph out to newly discovered configs and splits.
type Planner interface {
	PlanBackfill(ctx context.Context, dataset, revision string, priority types.Priority) (int, error)
}

// Config holds worker pool settings
type Config struct {
	// WorkerID is the pool's base identity; loops append their index.
	// Defaults to a random UUID.
	WorkerID string

	// Concurrency is the number of parallel job loops
	Concurrency int

	// AllowedKinds restricts which step kinds this pool leases. Empty
	// means all kinds.
	AllowedKinds []string

	// MaxJobsPerNamespace is the fairness cap on concurrently started
	// jobs per dataset namespace
	MaxJobsPerNamespace int

	// HeartbeatInterval is how often a started job refreshes its lease
	HeartbeatInterval time.Duration

	// MaxJobDuration bounds one job's execution
	MaxJobDuration time.Duration

	// PollMaxInterval caps the idle backoff between lease attempts
	PollMaxInterval time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.WorkerID == "" {
		out.WorkerID = uuid.NewString()
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 1
	}
	if out.MaxJobsPerNamespace <= 0 {
		out.MaxJobsPerNamespace = 2
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 10 * time.Second
	}
	if out.MaxJobDuration <= 0 {
		out.MaxJobDuration = 20 * time.Minute
	}
	if out.PollMaxInterval <= 0 {
		out.PollMaxInterval = 10 * time.Second
	}
	return out
}

// Worker leases jobs from the queue, executes their step and commits
// the outcome
type Worker struct {
	store   storage.Store
	graph   *graph.Graph
	runtime *steps.Runtime
	planner Planner
	broker  *events.Broker
	cfg     Config
	logger  zerolog.Logger
}

// New creates a worker pool
func New(store storage.Store, g *graph.Graph, runtime *steps.Runtime, planner Planner, cfg Config) *Worker {
	return &Worker{
		store:   store,
		graph:   g,
		runtime: runtime,
		planner: planner,
		cfg:     cfg.withDefaults(),
		logger:  log.WithComponent("worker"),
	}
}

// SetBroker attaches an event broker; job completions are published to
// it. Optional.
func (w *Worker) SetBroker(broker *events.Broker) {
	w.broker = broker
}

// Run drives the configured number of job loops until the context is
// cancelled
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", w.cfg.WorkerID, i)
		g.Go(func() error {
			return w.loop(ctx, workerID)
		})
	}
	return g.Wait()
}

// loop leases and processes jobs, backing off exponentially while the
// queue is empty
func (w *Worker) loop(ctx context.Context, workerID string) error {
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = 100 * time.Millisecond
	idle.MaxInterval = w.cfg.PollMaxInterval
	idle.MaxElapsedTime = 0

	logger := log.WithWorkerID(workerID)
	logger.Info().Msg("worker loop started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := w.store.StartOne(w.cfg.AllowedKinds, workerID, w.cfg.MaxJobsPerNamespace)
		if err != nil {
			if !errors.Is(err, types.ErrEmptyQueue) {
				logger.Error().Err(err).Msg("failed to lease a job")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idle.NextBackOff()):
			}
			continue
		}

		idle.Reset()
		w.ProcessJob(ctx, job, workerID)
	}
}

// ProcessJob runs one leased job end to end: skip check, execution with
// heartbeats, cache commit and follow-up planning
func (w *Worker) ProcessJob(ctx context.Context, job *types.Job, workerID string) {
	logger := w.logger.With().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Str("dataset", job.Dataset).
		Str("worker_id", workerID).
		Logger()

	timer := metrics.NewTimer()
	finalStatus := types.JobStatusError
	defer func() {
		timer.ObserveDuration(metrics.JobDuration.WithLabelValues(job.Kind))
		metrics.JobsProcessedTotal.WithLabelValues(job.Kind, string(finalStatus)).Inc()
	}()

	if w.runtime.ShouldSkip(job) {
		if err := w.store.FinishJob(job.ID, workerID, types.JobStatusSkipped); err != nil {
			logger.Error().Err(err).Msg("failed to finish skipped job")
		}
		finalStatus = types.JobStatusSkipped
		w.publish(job, events.EventJobSkipped, "cache is fresh")
		logger.Debug().Msg("job skipped, cache is fresh")
		return
	}

	outcome, err := w.execute(ctx, job, workerID)
	if err != nil {
		// Infrastructure failure: no cacheable outcome
		logger.Error().Err(err).Msg("job execution failed")
		if err := w.store.FinishJob(job.ID, workerID, types.JobStatusError); err != nil {
			logger.Error().Err(err).Msg("failed to finish errored job")
		}
		w.publish(job, events.EventJobFailed, err.Error())
		return
	}

	if outcome.DoNotCache {
		// The dataset vanished from the hub: finish the job, then purge
		// everything the dataset left behind. Purging after the finish
		// keeps this job out of its own cancellation sweep.
		if err := w.store.FinishJob(job.ID, workerID, outcome.Status); err != nil {
			logger.Warn().Err(err).Msg("failed to finish job")
		}
		if _, err := w.store.DeleteCacheByDataset(job.Dataset); err != nil {
			logger.Error().Err(err).Msg("failed to purge cache of vanished dataset")
		}
		if _, err := w.store.CancelJobsByDataset(job.Dataset); err != nil {
			logger.Error().Err(err).Msg("failed to cancel jobs of vanished dataset")
		}
		finalStatus = outcome.Status
		w.publish(job, events.EventJobFailed, "dataset vanished from the hub")
		logger.Info().Msg("vanished dataset purged")
		return
	}

	if err := w.commit(job, outcome); err != nil {
		logger.Error().Err(err).Msg("failed to commit outcome")
		_ = w.store.FinishJob(job.ID, workerID, types.JobStatusError)
		return
	}

	if err := w.store.FinishJob(job.ID, workerID, outcome.Status); err != nil {
		// Lease lost: the reclaimer took the job over. The cache write
		// above is still valid, version monotonicity makes it safe.
		logger.Warn().Err(err).Msg("failed to finish job")
		return
	}
	finalStatus = outcome.Status
	logger.Info().Str("status", string(outcome.Status)).Msg("job finished")

	if outcome.IsSuccess() {
		w.publish(job, events.EventJobCompleted, "")
	} else {
		w.publish(job, events.EventJobFailed, string(outcome.ErrorCode))
	}

	if outcome.IsSuccess() {
		w.enqueueDiscoveredSplits(job, outcome, logger)
		if w.planner != nil {
			if _, err := w.planner.PlanBackfill(ctx, job.Dataset, job.Revision, job.Priority); err != nil {
				logger.Error().Err(err).Msg("failed to plan follow-up jobs")
			}
		}
	}
}

// enqueueDiscoveredSplits seeds split-scoped successor jobs from the
// splits the outcome reports. Discovery can precede the split-names
// entries (the parquet conversion sees the splits first), and the
// planner only knows splits through those entries, so without the
// direct enqueue the split subtree would wait for the next full plan.
func (w *Worker) enqueueDiscoveredSplits(job *types.Job, outcome *steps.Outcome, logger zerolog.Logger) {
	runner, err := w.runtime.Runner(job.Kind)
	if err != nil {
		return
	}
	keys := runner.NewSplitKeys(outcome.Content)
	if len(keys) == 0 {
		return
	}
	for _, successor := range w.graph.Successors(job.Kind) {
		if successor.InputScope != types.ScopeSplit {
			continue
		}
		for _, key := range keys {
			_, _, err := w.store.UpsertJob(storage.JobUpsert{
				Key: types.ArtifactKey{
					Kind:    successor.Name,
					Dataset: key.Dataset,
					Config:  key.Config,
					Split:   key.Split,
				},
				Revision:   job.Revision,
				Priority:   job.Priority,
				Difficulty: successor.Difficulty,
			})
			if err != nil {
				logger.Error().Err(err).
					Str("successor", successor.Name).
					Str("split", key.Split).
					Msg("failed to enqueue discovered split job")
			}
		}
	}
}

func (w *Worker) publish(job *types.Job, eventType events.EventType, message string) {
	if w.broker == nil {
		return
	}
	w.broker.Publish(&events.Event{
		Type:    eventType,
		Dataset: job.Dataset,
		Kind:    job.Kind,
		Message: message,
	})
}

// execute runs the step under the job deadline while a sibling goroutine
// keeps the lease alive. Losing the lease cancels the computation.
func (w *Worker) execute(ctx context.Context, job *types.Job, workerID string) (*steps.Outcome, error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.MaxJobDuration)
	defer cancel()

	g, gctx := errgroup.WithContext(jobCtx)
	done := make(chan struct{})

	var outcome *steps.Outcome
	g.Go(func() error {
		defer close(done)
		var err error
		outcome, err = w.runtime.Execute(gctx, job)
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := w.store.Heartbeat(job.ID, workerID); err != nil {
					return fmt.Errorf("lease lost: %w", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcome, nil
}

// commit writes the outcome to the cache
func (w *Worker) commit(job *types.Job, outcome *steps.Outcome) error {
	step, err := w.graph.Get(job.Kind)
	if err != nil {
		return err
	}
	return w.store.UpsertCache(storage.CacheUpsert{
		Key:              job.Key(),
		Revision:         job.Revision,
		Content:          outcome.Content,
		HTTPStatus:       outcome.HTTPStatus,
		ErrorCode:        outcome.ErrorCode,
		Details:          outcome.Details,
		Progress:         outcome.Progress,
		JobRunnerVersion: step.Version,
	})
}
