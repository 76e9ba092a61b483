package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// JobParams identifies the artifact a runner computes
type JobParams struct {
	Key      types.ArtifactKey
	Revision string
}

// Result is the output of a successful compute. Progress < 1.0 marks a
// fan-in result still waiting for inputs.
type Result struct {
	Content  []byte
	Progress float64
}

// Runner is the contract every processing step implements. Compute is
// deterministic on its inputs: the cache (read via best-of-kinds), the
// hub, and the job parameters.
type Runner interface {
	// Kind returns the step kind this runner computes
	Kind() string

	// Version returns the job runner version stamped on commits
	Version() int

	// PreCompute acquires any per-job resources. Called before Compute;
	// PostCompute is guaranteed to run afterwards on every exit path.
	PreCompute() error

	// Compute produces the artifact content
	Compute(ctx context.Context, params JobParams) (*Result, error)

	// PostCompute releases resources. Always called, even on failure.
	PostCompute()

	// ParallelKind names a step whose output is equivalent; a fresh
	// successful entry of that kind short-circuits this compute.
	// Empty when the step has no parallel variant.
	ParallelKind() string

	// NewSplitKeys extracts the (dataset, config, split) combinations a
	// produced content discovers, for split-scoped fan-out. Nil when
	// the step does not produce splits.
	NewSplitKeys(content []byte) []types.SplitKey
}

// BaseRunner provides the no-op parts of the contract
type BaseRunner struct{}

func (BaseRunner) PreCompute() error { return nil }

func (BaseRunner) PostCompute() {}

func (BaseRunner) ParallelKind() string { return "" }

func (BaseRunner) NewSplitKeys(content []byte) []types.SplitKey { return nil }

// readPredecessor reads the preferred predecessor entry among kinds and
// fails with CachedArtifactError when none succeeded. The error carries
// the predecessor's status and code, so the cached error stays
// meaningful to readers.
func readPredecessor(store storage.CacheStore, kinds []string, dataset, config, split string) (*types.CacheEntry, error) {
	entry, err := store.BestCache(kinds, dataset, config, split)
	if err != nil {
		return nil, types.NewCachedArtifactError(
			fmt.Sprintf("no cache entry among %v for %s", kinds, dataset), 500, types.CodeCachedArtifact)
	}
	if !entry.IsSuccess() {
		return nil, types.NewCachedArtifactError(
			fmt.Sprintf("previous step %s failed for %s", entry.Kind, dataset),
			entry.HTTPStatus, types.ErrorCode(entry.ErrorCode))
	}
	return entry, nil
}

// decodeContent parses a predecessor content blob, mapping decode
// failures to PreviousStepFormatError
func decodeContent(entry *types.CacheEntry, out any) error {
	if err := json.Unmarshal(entry.Content, out); err != nil {
		return types.NewPreviousStepFormatError(
			fmt.Sprintf("invalid %s content: %v", entry.Kind, err), err)
	}
	return nil
}

// aggregate is the shared fan-in shape: it walks one child key per
// element, reads the child's cache entry and classifies it. Progress is
// the fraction of children that have any entry; fan-in steps stay
// partial until every child reported.
type aggregate struct {
	Total   int
	Pending []string
	Failed  []string
}

// Progress returns the fan-in completion fraction (1.0 when empty)
func (a *aggregate) Progress() float64 {
	if a.Total == 0 {
		return 1.0
	}
	return float64(a.Total-len(a.Pending)) / float64(a.Total)
}

// collect reads the cache entry for one child and routes it: success
// entries are decoded into out, errors are recorded as failed, missing
// entries as pending
func (a *aggregate) collect(store storage.CacheStore, kinds []string, dataset, config, split, label string, onSuccess func(*types.CacheEntry) error) error {
	a.Total++
	entry, err := store.BestCache(kinds, dataset, config, split)
	if err != nil {
		a.Pending = append(a.Pending, label)
		return nil
	}
	if !entry.IsSuccess() {
		a.Failed = append(a.Failed, label)
		return nil
	}
	return onSuccess(entry)
}
