package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putConfigNames(t *testing.T, store *storage.BoltStore, dataset, revision string, configs ...string) {
	t.Helper()
	content := types.ConfigNamesContent{}
	for _, config := range configs {
		content.ConfigNames = append(content.ConfigNames, types.ConfigNameItem{Dataset: dataset, Config: config})
	}
	data, err := json.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, store.UpsertCache(storage.CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: dataset},
		Revision: revision, Content: data, HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
	}))
}

func putSplitNames(t *testing.T, store *storage.BoltStore, kind, dataset, config, revision string, splits ...string) {
	t.Helper()
	content := types.SplitNamesContent{}
	for _, split := range splits {
		content.SplitNames = append(content.SplitNames, types.SplitNameItem{Dataset: dataset, Config: config, Split: split})
	}
	data, err := json.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, store.UpsertCache(storage.CacheUpsert{
		Key:      types.ArtifactKey{Kind: kind, Dataset: dataset, Config: config},
		Revision: revision, Content: data, HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3,
	}))
}

func TestFetchConfigNames(t *testing.T) {
	store := newTestStore(t)

	// Nothing cached: empty, no error
	configs, err := FetchConfigNames(store, "org/ds")
	require.NoError(t, err)
	assert.Empty(t, configs)

	putConfigNames(t, store, "org/ds", "r1", "default", "extra")
	configs, err = FetchConfigNames(store, "org/ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "extra"}, configs)
}

func TestFetchSplitNamesPrefersInfoKind(t *testing.T) {
	store := newTestStore(t)

	putSplitNames(t, store, "config-split-names-from-streaming", "org/ds", "default", "r1", "train")
	putSplitNames(t, store, "config-split-names-from-info", "org/ds", "default", "r1", "train", "test")

	splits, err := FetchSplitNames(store, "org/ds", "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "test"}, splits)
}

func TestMaterializeEmptyDataset(t *testing.T) {
	store := newTestStore(t)
	g := graph.MustNew(graph.Specification)

	ds, err := Materialize(store, g, "org/ds", "r1")
	require.NoError(t, err)
	assert.Empty(t, ds.ConfigNames)
	// Only dataset-scoped steps apply while no configs are known
	assert.Len(t, ds.Steps, len(g.StepsFor(types.ScopeDataset)))
	for _, stepState := range ds.Steps {
		assert.False(t, stepState.Cache.Exists)
		assert.False(t, stepState.Job.InProcess)
	}
}

func TestMaterializeExpandsConfigsAndSplits(t *testing.T) {
	store := newTestStore(t)
	g := graph.MustNew(graph.Specification)

	putConfigNames(t, store, "org/ds", "r1", "default")
	putSplitNames(t, store, "config-split-names-from-info", "org/ds", "default", "r1", "train", "test")

	ds, err := Materialize(store, g, "org/ds", "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, ds.ConfigNames)
	assert.Equal(t, []string{"train", "test"}, ds.SplitNames["default"])

	want := len(g.StepsFor(types.ScopeDataset)) +
		len(g.StepsFor(types.ScopeConfig)) +
		2*len(g.StepsFor(types.ScopeSplit))
	assert.Len(t, ds.Steps, want)
}

func TestShouldRefresh(t *testing.T) {
	g := graph.MustNew(graph.Specification)
	step, err := g.Get("config-parquet")
	require.NoError(t, err)
	retryable := RetryableSet(types.DefaultRetryableCodes)

	fresh := CacheState{Exists: true, IsSuccess: true, Revision: "r1", RunnerVersion: step.Version, Progress: 1.0}

	tests := []struct {
		name  string
		cache CacheState
		want  bool
	}{
		{name: "fresh entry", cache: fresh, want: false},
		{name: "absent entry", cache: CacheState{}, want: true},
		{
			name:  "revision mismatch",
			cache: CacheState{Exists: true, IsSuccess: true, Revision: "r0", RunnerVersion: step.Version, Progress: 1.0},
			want:  true,
		},
		{
			name:  "outdated runner version",
			cache: CacheState{Exists: true, IsSuccess: true, Revision: "r1", RunnerVersion: step.Version - 1, Progress: 1.0},
			want:  true,
		},
		{
			name:  "retryable error",
			cache: CacheState{Exists: true, Revision: "r1", RunnerVersion: step.Version, Progress: 1.0, ErrorCode: types.CodeClientConnectionError},
			want:  true,
		},
		{
			name:  "terminal error stays",
			cache: CacheState{Exists: true, Revision: "r1", RunnerVersion: step.Version, Progress: 1.0, ErrorCode: types.CodeUnexpected},
			want:  false,
		},
		{
			name:  "partial fan-in",
			cache: CacheState{Exists: true, IsSuccess: true, Revision: "r1", RunnerVersion: step.Version, Progress: 0.5},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stepState := &StepState{Step: step, Cache: tt.cache}
			assert.Equal(t, tt.want, ShouldRefresh(stepState, "r1", retryable))
		})
	}
}

func TestBackfillTasksSkipsInProcess(t *testing.T) {
	store := newTestStore(t)
	g := graph.MustNew(graph.Specification)
	retryable := RetryableSet(types.DefaultRetryableCodes)

	// One dataset-scoped step already has a pending job
	_, _, err := store.UpsertJob(storage.JobUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"},
		Revision: "r1", Priority: types.PriorityNormal,
	})
	require.NoError(t, err)

	ds, err := Materialize(store, g, "org/ds", "r1")
	require.NoError(t, err)

	tasks := ds.BackfillTasks(g, types.PriorityLow, 0, retryable)
	for _, task := range tasks {
		assert.NotEqual(t, "dataset-config-names", task.Key.Kind)
		assert.Equal(t, types.PriorityLow, task.Priority)
		assert.Equal(t, "r1", task.Revision)
	}
	assert.Len(t, tasks, len(g.StepsFor(types.ScopeDataset))-1)
}

func TestBackfillTasksOutdatedByParent(t *testing.T) {
	store := newTestStore(t)
	g := graph.MustNew(graph.Specification)
	retryable := RetryableSet(types.DefaultRetryableCodes)

	// dataset-info landed before its parent dataset-config-names: the
	// fan-in ran against a world with no configs and must be redone.
	step, err := g.Get("dataset-info")
	require.NoError(t, err)
	require.NoError(t, store.UpsertCache(storage.CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-info", Dataset: "org/ds"},
		Revision: "r1", Content: []byte(`{"dataset_info":{}}`),
		HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: step.Version,
	}))
	time.Sleep(5 * time.Millisecond)
	putConfigNames(t, store, "org/ds", "r1", "default")

	ds, err := Materialize(store, g, "org/ds", "r1")
	require.NoError(t, err)

	tasks := ds.BackfillTasks(g, types.PriorityNormal, 0, retryable)
	kinds := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		kinds[task.Key.Kind] = true
	}
	assert.True(t, kinds["dataset-info"], "entry older than its parent is re-planned")
	assert.False(t, kinds["dataset-config-names"], "fresh root entry is not re-planned")
}

func TestBackfillTasksBonusDifficulty(t *testing.T) {
	store := newTestStore(t)
	g := graph.MustNew(graph.Specification)
	retryable := RetryableSet(types.DefaultRetryableCodes)

	putConfigNames(t, store, "org/ds", "r1", "default")
	putSplitNames(t, store, "config-split-names-from-info", "org/ds", "default", "r1", "train")

	ds, err := Materialize(store, g, "org/ds", "r1")
	require.NoError(t, err)

	tasks := ds.BackfillTasks(g, types.PriorityLow, graph.MinBytesForBonusDifficulty, retryable)
	byKind := make(map[string]BackfillTask)
	for _, task := range tasks {
		byKind[task.Key.Kind] = task
	}
	assert.Equal(t, 90, byKind["split-duckdb-index"].Difficulty)
	assert.Equal(t, 70, byKind["split-first-rows-from-streaming"].Difficulty)
}
