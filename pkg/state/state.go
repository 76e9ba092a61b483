package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
)

// CacheState is the planning view of one cache entry
type CacheState struct {
	Exists        bool
	IsSuccess     bool
	Revision      string
	RunnerVersion int
	Progress      float64
	ErrorCode     types.ErrorCode
	UpdatedAt     time.Time
}

// JobState is the planning view of the queue for one key
type JobState struct {
	InProcess bool
}

// StepState pairs a graph step with its cache and job state for one key
type StepState struct {
	Step  *graph.Step
	Key   types.ArtifactKey
	Cache CacheState
	Job   JobState
}

// BackfillTask is one job the planner wants enqueued
type BackfillTask struct {
	Key        types.ArtifactKey
	Revision   string
	Difficulty int
	Priority   types.Priority
}

// DatasetState is the materialized view of cache and queue for one
// (dataset, revision). It is rebuilt per planning pass and never
// mutates external stores.
type DatasetState struct {
	Dataset     string
	Revision    string
	ConfigNames []string
	SplitNames  map[string][]string
	Steps       []*StepState

	byKey map[string]*StepState
}

// splitNamesKinds lists the two split-names variants in preference
// order (the info-based one is cheap, so it is preferred)
var splitNamesKinds = []string{"config-split-names-from-info", "config-split-names-from-streaming"}

// FetchConfigNames reads the config list from the dataset-config-names
// cache entry. A missing or errored entry yields an empty list.
func FetchConfigNames(store storage.CacheStore, dataset string) ([]string, error) {
	entry, err := store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: dataset})
	if err != nil {
		return nil, nil
	}
	if !entry.IsSuccess() {
		return nil, nil
	}
	var content types.ConfigNamesContent
	if err := json.Unmarshal(entry.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid config names content for %s: %w", dataset, err)
	}
	names := make([]string, 0, len(content.ConfigNames))
	for _, item := range content.ConfigNames {
		names = append(names, item.Config)
	}
	return names, nil
}

// FetchSplitNames reads the split list of a config from whichever
// split-names cache entry succeeded
func FetchSplitNames(store storage.CacheStore, dataset, config string) ([]string, error) {
	entry, err := store.BestCache(splitNamesKinds, dataset, config, "")
	if err != nil {
		return nil, nil
	}
	if !entry.IsSuccess() {
		return nil, nil
	}
	var content types.SplitNamesContent
	if err := json.Unmarshal(entry.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid split names content for %s/%s: %w", dataset, config, err)
	}
	names := make([]string, 0, len(content.SplitNames))
	for _, item := range content.SplitNames {
		names = append(names, item.Split)
	}
	return names, nil
}

// Materialize builds the dataset state: known configs from the cache,
// known splits per config, and a StepState for every applicable
// (step, key) pair.
func Materialize(store storage.Store, g *graph.Graph, dataset, revision string) (*DatasetState, error) {
	configs, err := FetchConfigNames(store, dataset)
	if err != nil {
		return nil, err
	}

	ds := &DatasetState{
		Dataset:     dataset,
		Revision:    revision,
		ConfigNames: configs,
		SplitNames:  make(map[string][]string, len(configs)),
		byKey:       make(map[string]*StepState),
	}

	for _, config := range configs {
		splits, err := FetchSplitNames(store, dataset, config)
		if err != nil {
			return nil, err
		}
		ds.SplitNames[config] = splits
	}

	appendStep := func(step *graph.Step, key types.ArtifactKey) error {
		stepState, err := materializeStep(store, step, key)
		if err != nil {
			return err
		}
		ds.Steps = append(ds.Steps, stepState)
		ds.byKey[key.String()] = stepState
		return nil
	}

	for _, step := range g.StepsFor(types.ScopeDataset) {
		if err := appendStep(step, types.ArtifactKey{Kind: step.Name, Dataset: dataset}); err != nil {
			return nil, err
		}
	}
	for _, config := range configs {
		for _, step := range g.StepsFor(types.ScopeConfig) {
			if err := appendStep(step, types.ArtifactKey{Kind: step.Name, Dataset: dataset, Config: config}); err != nil {
				return nil, err
			}
		}
		for _, split := range ds.SplitNames[config] {
			for _, step := range g.StepsFor(types.ScopeSplit) {
				if err := appendStep(step, types.ArtifactKey{Kind: step.Name, Dataset: dataset, Config: config, Split: split}); err != nil {
					return nil, err
				}
			}
		}
	}

	return ds, nil
}

// materializeStep reads the cache header and queue slot for one key
func materializeStep(store storage.Store, step *graph.Step, key types.ArtifactKey) (*StepState, error) {
	stepState := &StepState{Step: step, Key: key}

	header, err := store.GetCacheHeader(key)
	if err == nil {
		stepState.Cache = CacheState{
			Exists:        true,
			IsSuccess:     header.IsSuccess(),
			Revision:      header.DatasetRevision,
			RunnerVersion: header.JobRunnerVersion,
			Progress:      header.Progress,
			ErrorCode:     types.ErrorCode(header.ErrorCode),
			UpdatedAt:     header.UpdatedAt,
		}
	}

	inProcess, err := store.IsJobInProcess(key)
	if err != nil {
		return nil, err
	}
	stepState.Job = JobState{InProcess: inProcess}
	return stepState, nil
}

// ShouldRefresh decides whether a step's cache entry needs recomputing:
// absent entry, revision mismatch, outdated runner version, retryable
// error, or incomplete fan-in progress.
func ShouldRefresh(stepState *StepState, currentRevision string, retryable map[types.ErrorCode]bool) bool {
	cache := stepState.Cache
	switch {
	case !cache.Exists:
		return true
	case cache.Revision != currentRevision:
		return true
	case cache.RunnerVersion < stepState.Step.Version:
		return true
	case !cache.IsSuccess && retryable[cache.ErrorCode]:
		return true
	case cache.Progress < 1.0:
		return true
	default:
		return false
	}
}

// ParentKeys enumerates the artifact keys of a step's trigger parents
// relative to one key. Cross-scope parents expand over the known
// configs and splits: a dataset-scoped step with a config-scoped parent
// has one parent key per config.
func ParentKeys(g *graph.Graph, step *graph.Step, key types.ArtifactKey, configs []string, splitsByConfig map[string][]string) []types.ArtifactKey {
	var keys []types.ArtifactKey
	for _, parentName := range step.TriggeredBy {
		parent, err := g.Get(parentName)
		if err != nil {
			continue
		}
		switch parent.InputScope {
		case types.ScopeDataset:
			keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset})
		case types.ScopeConfig:
			if key.Config != "" {
				keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset, Config: key.Config})
				continue
			}
			for _, config := range configs {
				keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset, Config: config})
			}
		case types.ScopeSplit:
			switch {
			case key.Split != "":
				keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset, Config: key.Config, Split: key.Split})
			case key.Config != "":
				for _, split := range splitsByConfig[key.Config] {
					keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset, Config: key.Config, Split: split})
				}
			default:
				for _, config := range configs {
					for _, split := range splitsByConfig[config] {
						keys = append(keys, types.ArtifactKey{Kind: parentName, Dataset: key.Dataset, Config: config, Split: split})
					}
				}
			}
		}
	}
	return keys
}

// OutdatedByParent reports whether any trigger parent's cache entry was
// written after the given time. A fan-in entry computed before its
// inputs landed is stale even when nothing else flags it.
func OutdatedByParent(store storage.CacheStore, g *graph.Graph, step *graph.Step, key types.ArtifactKey, since time.Time, configs []string, splitsByConfig map[string][]string) bool {
	for _, parentKey := range ParentKeys(g, step, key, configs, splitsByConfig) {
		header, err := store.GetCacheHeader(parentKey)
		if err != nil {
			continue
		}
		if header.UpdatedAt.After(since) {
			return true
		}
	}
	return false
}

// outdatedByParent is the in-memory variant used during planning
func (ds *DatasetState) outdatedByParent(g *graph.Graph, stepState *StepState) bool {
	if !stepState.Cache.Exists {
		return false
	}
	for _, parentKey := range ParentKeys(g, stepState.Step, stepState.Key, ds.ConfigNames, ds.SplitNames) {
		parent, ok := ds.byKey[parentKey.String()]
		if !ok || !parent.Cache.Exists {
			continue
		}
		if parent.Cache.UpdatedAt.After(stepState.Cache.UpdatedAt) {
			return true
		}
	}
	return false
}

// BackfillTasks returns one task per step state that needs a refresh
// and has no pending job, at the given priority
func (ds *DatasetState) BackfillTasks(g *graph.Graph, priority types.Priority, datasetSizeBytes int64, retryable map[types.ErrorCode]bool) []BackfillTask {
	var tasks []BackfillTask
	for _, stepState := range ds.Steps {
		if stepState.Job.InProcess {
			continue
		}
		if !ShouldRefresh(stepState, ds.Revision, retryable) && !ds.outdatedByParent(g, stepState) {
			continue
		}
		tasks = append(tasks, BackfillTask{
			Key:        stepState.Key,
			Revision:   ds.Revision,
			Difficulty: g.BonusDifficulty(stepState.Step, datasetSizeBytes),
			Priority:   priority,
		})
	}
	return tasks
}

// RetryableSet builds the lookup set from a configured code list
func RetryableSet(codes []types.ErrorCode) map[types.ErrorCode]bool {
	set := make(map[types.ErrorCode]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}
