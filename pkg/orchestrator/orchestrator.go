package orchestrator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/state"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// Config holds orchestrator settings
type Config struct {
	// Blocklist names datasets that are never processed
	Blocklist []string

	// RetryableCodes lists the error codes treated as transient when
	// planning backfills
	RetryableCodes []types.ErrorCode
}

// Orchestrator drives the processing of datasets: it reacts to hub
// events, heals missing artifacts behind API reads, and plans backfill
// jobs from the materialized dataset state.
type Orchestrator struct {
	store     storage.Store
	graph     *graph.Graph
	hub       hub.Client
	blocklist map[string]bool
	retryable map[types.ErrorCode]bool
	logger    zerolog.Logger
}

// New creates an orchestrator
func New(store storage.Store, g *graph.Graph, hubClient hub.Client, cfg Config) *Orchestrator {
	blocklist := make(map[string]bool, len(cfg.Blocklist))
	for _, dataset := range cfg.Blocklist {
		blocklist[dataset] = true
	}
	retryable := cfg.RetryableCodes
	if retryable == nil {
		retryable = types.DefaultRetryableCodes
	}
	return &Orchestrator{
		store:     store,
		graph:     g,
		hub:       hubClient,
		blocklist: blocklist,
		retryable: state.RetryableSet(retryable),
		logger:    log.WithComponent("orchestrator"),
	}
}

// IsBlocked reports whether a dataset is on the blocklist
func (o *Orchestrator) IsBlocked(dataset string) bool {
	return o.blocklist[dataset]
}

// OnHubEvent routes one webhook notification. Deletions purge the
// dataset; moves purge the old name and rebuild the new one; creations
// and updates trigger a smart update.
func (o *Orchestrator) OnHubEvent(ctx context.Context, payload *types.WebhookPayload) error {
	dataset := payload.Repo.Name
	logger := o.logger.With().Str("dataset", dataset).Str("event", string(payload.Event)).Logger()

	switch payload.Event {
	case types.HubEventRemove, types.HubEventDoesNotExist:
		return o.DeleteDataset(dataset)
	case types.HubEventMove:
		if payload.MovedTo == "" {
			return fmt.Errorf("move event for %s without a target", dataset)
		}
		if err := o.DeleteDataset(dataset); err != nil {
			return err
		}
		logger.Info().Str("moved_to", payload.MovedTo).Msg("dataset moved")
		return o.SmartUpdate(ctx, payload.MovedTo)
	case types.HubEventAdd, types.HubEventUpdate:
		return o.SmartUpdate(ctx, dataset)
	default:
		return types.NewCodedError(types.CodeInvalidParameter, http.StatusBadRequest,
			fmt.Sprintf("unsupported hub event %q for %s", payload.Event, dataset), nil)
	}
}

// DeleteDataset purges every cache entry and cancels every pending job
// of a dataset
func (o *Orchestrator) DeleteDataset(dataset string) error {
	deleted, err := o.store.DeleteCacheByDataset(dataset)
	if err != nil {
		return fmt.Errorf("failed to delete cache of %s: %w", dataset, err)
	}
	cancelled, err := o.store.CancelJobsByDataset(dataset)
	if err != nil {
		return fmt.Errorf("failed to cancel jobs of %s: %w", dataset, err)
	}
	o.logger.Info().
		Str("dataset", dataset).
		Int("cache_deleted", deleted).
		Int("jobs_cancelled", cancelled).
		Msg("dataset purged")
	return nil
}

// SmartUpdate refreshes a dataset after a hub change. When the cached
// root entry already matches the hub revision, only the stale subset is
// refreshed; otherwise the whole graph is rebuilt from the root.
func (o *Orchestrator) SmartUpdate(ctx context.Context, dataset string) error {
	if o.IsBlocked(dataset) {
		return types.NewDatasetInBlockListError(fmt.Sprintf("dataset %s is in the block list", dataset))
	}

	supported, err := o.hub.IsSupported(ctx, dataset)
	if err != nil {
		return err
	}
	if !supported {
		// The hub no longer serves it: treat as a deletion
		return o.DeleteDataset(dataset)
	}

	revision, err := o.hub.Revision(ctx, dataset)
	if err != nil {
		return err
	}

	header, err := o.store.GetCacheHeader(types.ArtifactKey{Kind: rootKind, Dataset: dataset})
	if err == nil && header.DatasetRevision == revision && header.IsSuccess() {
		// The root already matches the hub: plan only the stale subset
		created, err := o.PlanBackfill(ctx, dataset, revision, types.PriorityNormal)
		if err != nil {
			return err
		}
		if created == 0 {
			o.logger.Debug().Str("dataset", dataset).Str("revision", revision).Msg("already up to date")
		}
		return nil
	}

	return o.enqueueRoot(dataset, revision, types.PriorityNormal)
}

// rootKind is the entry point of the processing graph
const rootKind = "dataset-config-names"

// enqueueRoot schedules the root step; its completion fans out to the
// rest of the graph through the worker
func (o *Orchestrator) enqueueRoot(dataset, revision string, priority types.Priority) error {
	step, err := o.graph.Get(rootKind)
	if err != nil {
		return err
	}
	_, created, err := o.store.UpsertJob(storage.JobUpsert{
		Key:        types.ArtifactKey{Kind: rootKind, Dataset: dataset},
		Revision:   revision,
		Priority:   priority,
		Difficulty: step.Difficulty,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue root job for %s: %w", dataset, err)
	}
	o.logger.Info().
		Str("dataset", dataset).
		Str("revision", revision).
		Bool("created", created).
		Msg("rebuild scheduled")
	return nil
}

// ForceRefresh plans a backfill at the dataset's current revision
// regardless of cache freshness. Used by the admin surface.
func (o *Orchestrator) ForceRefresh(ctx context.Context, dataset string) (int, error) {
	if o.IsBlocked(dataset) {
		return 0, types.NewDatasetInBlockListError(fmt.Sprintf("dataset %s is in the block list", dataset))
	}
	revision, err := o.hub.Revision(ctx, dataset)
	if err != nil {
		return 0, err
	}
	return o.PlanBackfill(ctx, dataset, revision, types.PriorityNormal)
}

// ReadResult is the outcome of a cache read through the orchestrator
type ReadResult struct {
	Entry *types.CacheEntry
}

// BestResponse implements the API read path: return the best cached
// entry for the kinds, or heal. A miss on a supported dataset plans a
// normal-priority backfill and reports ResponseNotReady; a miss on an
// unknown dataset reports DatasetNotFound.
func (o *Orchestrator) BestResponse(ctx context.Context, kinds []string, dataset, config, split string) (*ReadResult, error) {
	if o.IsBlocked(dataset) {
		return nil, types.NewDatasetInBlockListError(fmt.Sprintf("dataset %s is in the block list", dataset))
	}

	entry, err := o.store.BestCache(kinds, dataset, config, split)
	if err == nil {
		return &ReadResult{Entry: entry}, nil
	}

	supported, err := o.hub.IsSupported(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, types.NewDatasetNotFoundError(fmt.Sprintf("dataset %s does not exist on the hub", dataset), nil)
	}

	revision, err := o.hub.Revision(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if _, err := o.PlanBackfill(ctx, dataset, revision, types.PriorityNormal); err != nil {
		return nil, err
	}
	return nil, types.NewResponseNotReadyError(fmt.Sprintf(
		"the response for %s is not ready yet, processing has been scheduled", dataset))
}

// PlanBackfill materializes the dataset state and enqueues one job per
// stale step. Returns the number of jobs upserted.
func (o *Orchestrator) PlanBackfill(ctx context.Context, dataset, revision string, priority types.Priority) (int, error) {
	ds, err := state.Materialize(o.store, o.graph, dataset, revision)
	if err != nil {
		return 0, fmt.Errorf("failed to materialize state of %s: %w", dataset, err)
	}

	var sizeBytes int64
	if info, err := o.hub.Info(ctx, dataset); err == nil {
		sizeBytes = info.SizeBytes
	}

	tasks := ds.BackfillTasks(o.graph, priority, sizeBytes, o.retryable)
	created := 0
	for _, task := range tasks {
		_, isNew, err := o.store.UpsertJob(storage.JobUpsert{
			Key:        task.Key,
			Revision:   task.Revision,
			Priority:   task.Priority,
			Difficulty: task.Difficulty,
		})
		if err != nil {
			return created, fmt.Errorf("failed to enqueue %s: %w", task.Key, err)
		}
		if isNew {
			created++
		}
	}
	if created > 0 {
		o.logger.Info().
			Str("dataset", dataset).
			Str("revision", revision).
			Int("jobs", created).
			Msg("backfill planned")
	}
	return created, nil
}
