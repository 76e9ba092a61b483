package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/state"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// Outcome is what a job execution produced, ready to commit to the cache.
// DoNotCache marks outcomes that must not leave a cache entry behind
// (a dataset that no longer exists on the hub).
type Outcome struct {
	Status     types.JobStatus
	Content    []byte
	Progress   float64
	HTTPStatus int
	ErrorCode  types.ErrorCode
	Details    []byte
	DoNotCache bool
}

// IsSuccess reports whether the outcome carries a successful response
func (o *Outcome) IsSuccess() bool {
	return o.Status == types.JobStatusSuccess
}

// RuntimeConfig tunes the execution wrapper
type RuntimeConfig struct {
	// ContentMaxBytes caps the serialized content size of any artifact
	ContentMaxBytes int

	// RetryableCodes lists the error codes whose cached entries do not
	// count as fresh when deciding to skip
	RetryableCodes []types.ErrorCode
}

// Runtime wraps runner execution with the cross-cutting rules: skip
// decision, parallel-step short-circuit, content size cap, and mapping
// of failures into the error taxonomy.
type Runtime struct {
	store     storage.Store
	graph     *graph.Graph
	registry  *Registry
	retryable map[types.ErrorCode]bool
	maxBytes  int
	logger    zerolog.Logger
}

// NewRuntime creates the execution wrapper
func NewRuntime(store storage.Store, g *graph.Graph, registry *Registry, cfg RuntimeConfig) *Runtime {
	retryable := make(map[types.ErrorCode]bool, len(cfg.RetryableCodes))
	for _, code := range cfg.RetryableCodes {
		retryable[code] = true
	}
	return &Runtime{
		store:     store,
		graph:     g,
		registry:  registry,
		retryable: retryable,
		maxBytes:  cfg.ContentMaxBytes,
		logger:    log.WithComponent("steps"),
	}
}

// Runner returns the runner registered for a kind
func (r *Runtime) Runner(kind string) (Runner, error) {
	return r.registry.Get(kind)
}

// ShouldSkip reports whether the cache already holds a fresh response for
// the job's key: same revision, runner version at least the step's,
// complete progress, and either a success or a non-retryable error.
func (r *Runtime) ShouldSkip(job *types.Job) bool {
	step, err := r.graph.Get(job.Kind)
	if err != nil {
		return false
	}
	header, err := r.store.GetCacheHeader(job.Key())
	if err != nil {
		return false
	}
	if header.DatasetRevision != job.Revision {
		return false
	}
	if header.JobRunnerVersion < step.Version {
		return false
	}
	if header.Progress < 1.0 {
		return false
	}
	if !header.IsSuccess() && r.retryable[types.ErrorCode(header.ErrorCode)] {
		return false
	}
	if len(step.TriggeredBy) > 0 {
		configs, _ := state.FetchConfigNames(r.store, job.Dataset)
		splits := make(map[string][]string, len(configs))
		for _, config := range configs {
			names, _ := state.FetchSplitNames(r.store, job.Dataset, config)
			splits[config] = names
		}
		if state.OutdatedByParent(r.store, r.graph, step, job.Key(), header.UpdatedAt, configs, splits) {
			return false
		}
	}
	return true
}

// Execute runs the job's step and folds every failure mode into an
// Outcome. The returned error is reserved for infrastructure faults
// (unknown kind); compute failures come back as error outcomes.
func (r *Runtime) Execute(ctx context.Context, job *types.Job) (*Outcome, error) {
	runner, err := r.registry.Get(job.Kind)
	if err != nil {
		return nil, fmt.Errorf("no runner for kind %s: %w", job.Kind, err)
	}

	params := JobParams{Key: job.Key(), Revision: job.Revision}
	start := time.Now()

	result, err := r.compute(ctx, runner, params)
	if err != nil {
		coded := types.AsCoded(err)
		r.logger.Warn().
			Str("kind", job.Kind).
			Str("dataset", job.Dataset).
			Str("error_code", string(coded.Code)).
			Dur("elapsed", time.Since(start)).
			Msg("step compute failed")
		return errorOutcome(coded), nil
	}

	r.logger.Debug().
		Str("kind", job.Kind).
		Str("dataset", job.Dataset).
		Dur("elapsed", time.Since(start)).
		Msg("step computed")

	return &Outcome{
		Status:     types.JobStatusSuccess,
		Content:    result.Content,
		Progress:   result.Progress,
		HTTPStatus: http.StatusOK,
	}, nil
}

// compute runs one runner through its full lifecycle: parallel-step
// short-circuit, PreCompute, Compute, size cap, PostCompute
func (r *Runtime) compute(ctx context.Context, runner Runner, params JobParams) (*Result, error) {
	if err := r.checkParallel(runner, params); err != nil {
		return nil, err
	}

	if err := runner.PreCompute(); err != nil {
		return nil, err
	}
	defer runner.PostCompute()

	result, err := runner.Compute(ctx, params)
	if err != nil {
		return nil, err
	}
	if r.maxBytes > 0 && len(result.Content) > r.maxBytes {
		return nil, types.NewTooBigContentError(fmt.Sprintf(
			"content of %s exceeds the maximum size (%d > %d bytes)",
			params.Key, len(result.Content), r.maxBytes))
	}
	return result, nil
}

// checkParallel raises ResponseAlreadyComputedError when the parallel
// variant already produced a fresh successful entry for the same key
func (r *Runtime) checkParallel(runner Runner, params JobParams) error {
	parallel := runner.ParallelKind()
	if parallel == "" {
		return nil
	}
	step, err := r.graph.Get(parallel)
	if err != nil {
		return nil
	}
	key := params.Key
	key.Kind = parallel
	header, err := r.store.GetCacheHeader(key)
	if err != nil {
		return nil
	}
	if header.IsSuccess() && header.DatasetRevision == params.Revision && header.JobRunnerVersion >= step.Version {
		return types.NewResponseAlreadyComputedError(fmt.Sprintf(
			"response already computed by %s for %s", parallel, params.Key))
	}
	return nil
}

// errorOutcome folds a coded error into a cacheable outcome. Dataset
// disappearance is the one error that must not be cached: the cache is
// purged instead, and a stale entry would resurrect the dataset.
func errorOutcome(coded *types.CodedError) *Outcome {
	return &Outcome{
		Status:     types.JobStatusError,
		Progress:   1.0,
		HTTPStatus: coded.Status,
		ErrorCode:  coded.Code,
		Details:    errorDetails(coded),
		DoNotCache: coded.Code == types.CodeDatasetNotFound,
	}
}

// errorDetails serializes the error envelope stored alongside an errored
// cache entry
func errorDetails(coded *types.CodedError) []byte {
	envelope := map[string]any{"error": coded.Message}
	if coded.Cause != nil {
		envelope["cause_message"] = coded.Cause.Error()
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, coded.Message))
	}
	return data
}
