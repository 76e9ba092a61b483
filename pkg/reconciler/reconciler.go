package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// Config holds reconciler settings
type Config struct {
	// Interval is the pause between reconcile cycles
	Interval time.Duration

	// BackfillSampleSize is how many known datasets one cycle re-plans
	BackfillSampleSize int

	// ZombieMaxSilence is the heartbeat silence after which a started
	// job is considered abandoned
	ZombieMaxSilence time.Duration

	// ZombieMaxDuration is the runtime after which a started job is
	// errored out regardless of heartbeats
	ZombieMaxDuration time.Duration

	// MaxJobAttempts is the attempt count after which an abandoned job
	// is errored instead of requeued
	MaxJobAttempts int

	// FinishedJobTTL is how long finished job records are kept
	FinishedJobTTL time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Interval <= 0 {
		out.Interval = time.Minute
	}
	if out.BackfillSampleSize <= 0 {
		out.BackfillSampleSize = 100
	}
	if out.ZombieMaxSilence <= 0 {
		out.ZombieMaxSilence = 5 * time.Minute
	}
	if out.ZombieMaxDuration <= 0 {
		out.ZombieMaxDuration = 20 * time.Minute
	}
	if out.MaxJobAttempts <= 0 {
		out.MaxJobAttempts = 20
	}
	if out.FinishedJobTTL <= 0 {
		out.FinishedJobTTL = 7 * 24 * time.Hour
	}
	return out
}

// Reconciler keeps the stored state healthy in the background: it
// re-plans known datasets at low priority, reclaims abandoned jobs and
// enforces the finished-job retention.
type Reconciler struct {
	store  storage.Store
	graph  *graph.Graph
	hub    hub.Client
	orch   *orchestrator.Orchestrator
	cfg    Config
	stopCh chan struct{}
	logger zerolog.Logger
}

// New creates a reconciler
func New(store storage.Store, g *graph.Graph, hubClient hub.Client, orch *orchestrator.Orchestrator, cfg Config) *Reconciler {
	return &Reconciler{
		store:  store,
		graph:  g,
		hub:    hubClient,
		orch:   orch,
		cfg:    cfg.withDefaults(),
		stopCh: make(chan struct{}),
		logger: log.WithComponent("reconciler"),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconcile cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile performs one full cycle
func (r *Reconciler) Reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	if err := r.ReclaimZombies(time.Now()); err != nil {
		r.logger.Error().Err(err).Msg("failed to reclaim zombies")
	}
	if err := r.BackfillKnownDatasets(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to backfill known datasets")
	}
	if err := r.PurgeFinishedJobs(time.Now()); err != nil {
		r.logger.Error().Err(err).Msg("failed to purge finished jobs")
	}
	return nil
}

// BackfillKnownDatasets re-plans a sample of the datasets the cache
// knows about, at low priority so interactive work always wins
func (r *Reconciler) BackfillKnownDatasets(ctx context.Context) error {
	datasets, err := r.store.SampleDatasets(r.cfg.BackfillSampleSize)
	if err != nil {
		return fmt.Errorf("failed to sample datasets: %w", err)
	}

	for _, dataset := range datasets {
		if r.orch.IsBlocked(dataset) {
			continue
		}
		revision, err := r.hub.Revision(ctx, dataset)
		if err != nil {
			coded := types.AsCoded(err)
			if coded.Code == types.CodeDatasetNotFound {
				if err := r.orch.DeleteDataset(dataset); err != nil {
					r.logger.Error().Err(err).Str("dataset", dataset).Msg("failed to purge vanished dataset")
				}
				continue
			}
			r.logger.Warn().Err(err).Str("dataset", dataset).Msg("failed to resolve revision")
			continue
		}
		created, err := r.orch.PlanBackfill(ctx, dataset, revision, types.PriorityLow)
		if err != nil {
			r.logger.Error().Err(err).Str("dataset", dataset).Msg("failed to plan backfill")
			continue
		}
		metrics.BackfillJobsCreatedTotal.Add(float64(created))
	}
	return nil
}

// ReclaimZombies requeues or errors out started jobs whose worker went
// silent, and commits the matching error entries so readers see why
func (r *Reconciler) ReclaimZombies(now time.Time) error {
	stats, err := r.store.ReclaimZombies(now, r.cfg.ZombieMaxSilence, r.cfg.ZombieMaxDuration, r.cfg.MaxJobAttempts)
	if err != nil {
		return err
	}

	metrics.ZombiesReclaimedTotal.WithLabelValues("requeued").Add(float64(stats.Requeued))
	metrics.ZombiesReclaimedTotal.WithLabelValues("crashed").Add(float64(stats.Crashed))
	metrics.ZombiesReclaimedTotal.WithLabelValues("exceeded_duration").Add(float64(stats.ExceededMaxTime))

	for _, job := range stats.CrashedJobs {
		err := types.NewJobRunnerCrashedError(fmt.Sprintf("job %s of %s crashed too many times", job.Kind, job.Dataset))
		r.commitJobError(job, err)
	}
	for _, job := range stats.ExceededJobs {
		err := types.NewJobRunnerExceededMaximumDurationError(fmt.Sprintf("job %s of %s exceeded the maximum duration", job.Kind, job.Dataset))
		r.commitJobError(job, err)
	}

	if stats.Requeued+stats.Crashed+stats.ExceededMaxTime > 0 {
		r.logger.Info().
			Int("requeued", stats.Requeued).
			Int("crashed", stats.Crashed).
			Int("exceeded_duration", stats.ExceededMaxTime).
			Msg("zombie jobs reclaimed")
	}
	return nil
}

// commitJobError writes the error cache entry for a job the reclaimer
// gave up on
func (r *Reconciler) commitJobError(job *types.Job, coded *types.CodedError) {
	step, err := r.graph.Get(job.Kind)
	if err != nil {
		r.logger.Error().Err(err).Str("kind", job.Kind).Msg("reclaimed job has unknown kind")
		return
	}
	details, _ := json.Marshal(map[string]any{"error": coded.Message})
	if err := r.store.UpsertCache(storage.CacheUpsert{
		Key:              job.Key(),
		Revision:         job.Revision,
		HTTPStatus:       coded.Status,
		ErrorCode:        coded.Code,
		Details:          details,
		Progress:         1.0,
		JobRunnerVersion: step.Version,
	}); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to commit reclaim error")
	}
}

// PurgeFinishedJobs enforces the finished-job retention window
func (r *Reconciler) PurgeFinishedJobs(now time.Time) error {
	purged, err := r.store.PurgeFinishedJobs(now.Add(-r.cfg.FinishedJobTTL))
	if err != nil {
		return err
	}
	if purged > 0 {
		metrics.FinishedJobsPurgedTotal.Add(float64(purged))
		r.logger.Info().Int("purged", purged).Msg("finished jobs purged")
	}
	return nil
}
