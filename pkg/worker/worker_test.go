package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/steps"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	store   *storage.BoltStore
	graph   *graph.Graph
	hub     *hub.Memory
	runtime *steps.Runtime
	orch    *orchestrator.Orchestrator
	worker  *Worker
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	g := graph.MustNew(graph.Specification)
	memory := hub.NewMemory()
	registry, err := steps.NewRegistry(g, steps.Deps{
		Store:          store,
		Hub:            memory,
		ParquetBaseURL: "https://assets.test/datasets",
		RowsMaxNumber:  100,
		RowsMinNumber:  10,
		RowsMaxBytes:   1_000_000,
		CellMinBytes:   100,
	})
	require.NoError(t, err)

	runtime := steps.NewRuntime(store, g, registry, steps.RuntimeConfig{
		ContentMaxBytes: 10_000_000,
		RetryableCodes:  types.DefaultRetryableCodes,
	})
	orch := orchestrator.New(store, g, memory, orchestrator.Config{})
	w := New(store, g, runtime, orch, Config{WorkerID: "test", MaxJobsPerNamespace: 100})
	return &testRig{store: store, graph: g, hub: memory, runtime: runtime, orch: orch, worker: w}
}

func (rig *testRig) seed() {
	rig.hub.Put("org/ds", &hub.MemoryDataset{
		Revision:  "r1",
		Supported: true,
		SizeBytes: 2000,
		Configs:   map[string][]string{"default": {"train"}},
		Features:  []hub.Feature{{Name: "text", Type: "string"}},
		Rows:      []hub.Row{{"text": "hello"}, {"text": "world"}},
	})
}

// drain leases and processes jobs until the queue is empty, failing the
// test if the system does not settle
func (rig *testRig) drain(t *testing.T) int {
	t.Helper()
	processed := 0
	for i := 0; i < 2000; i++ {
		job, err := rig.store.StartOne(nil, "test-0", 100)
		if errors.Is(err, types.ErrEmptyQueue) {
			return processed
		}
		require.NoError(t, err)
		rig.worker.ProcessJob(context.Background(), job, "test-0")
		processed++
	}
	t.Fatal("queue did not drain, the plan does not converge")
	return processed
}

func TestProcessJobSuccess(t *testing.T) {
	rig := newTestRig(t)
	rig.seed()

	_, _, err := rig.store.UpsertJob(storage.JobUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"},
		Revision: "r1", Priority: types.PriorityNormal,
	})
	require.NoError(t, err)

	job, err := rig.store.StartOne(nil, "test-0", 100)
	require.NoError(t, err)
	rig.worker.ProcessJob(context.Background(), job, "test-0")

	finished, err := rig.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSuccess, finished.Status)

	entry, err := rig.store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"})
	require.NoError(t, err)
	assert.True(t, entry.IsSuccess())
	assert.Equal(t, "r1", entry.DatasetRevision)

	// The follow-up plan enqueued the rest of the dataset
	count, err := rig.store.CountJobsByStatus()
	require.NoError(t, err)
	assert.Greater(t, count[types.JobStatusWaiting], 0)
}

func TestProcessJobSkipsFreshCache(t *testing.T) {
	rig := newTestRig(t)
	rig.seed()

	step, err := rig.graph.Get("dataset-config-names")
	require.NoError(t, err)
	require.NoError(t, rig.store.UpsertCache(storage.CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"},
		Revision: "r1", Content: []byte(`{"config_names":[]}`),
		HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: step.Version,
	}))

	_, _, err = rig.store.UpsertJob(storage.JobUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"},
		Revision: "r1", Priority: types.PriorityNormal,
	})
	require.NoError(t, err)

	job, err := rig.store.StartOne(nil, "test-0", 100)
	require.NoError(t, err)
	rig.worker.ProcessJob(context.Background(), job, "test-0")

	finished, err := rig.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSkipped, finished.Status)
}

func TestProcessJobVanishedDataset(t *testing.T) {
	rig := newTestRig(t)
	// org/ghost is not on the hub at all

	key := types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ghost"}
	_, _, err := rig.store.UpsertJob(storage.JobUpsert{Key: key, Revision: "r1", Priority: types.PriorityNormal})
	require.NoError(t, err)

	job, err := rig.store.StartOne(nil, "test-0", 100)
	require.NoError(t, err)
	rig.worker.ProcessJob(context.Background(), job, "test-0")

	finished, err := rig.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusError, finished.Status)

	// DatasetNotFound is never cached
	_, err = rig.store.GetCache(key)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestProcessJobSeedsDiscoveredSplitJobs(t *testing.T) {
	rig := newTestRig(t)
	rig.seed()

	// No planner: only the direct split fan-out may create jobs
	w := New(rig.store, rig.graph, rig.runtime, nil, Config{WorkerID: "test", MaxJobsPerNamespace: 100})

	_, _, err := rig.store.UpsertJob(storage.JobUpsert{
		Key:      types.ArtifactKey{Kind: "config-parquet-and-info", Dataset: "org/ds", Config: "default"},
		Revision: "r1", Priority: types.PriorityNormal,
	})
	require.NoError(t, err)

	job, err := rig.store.StartOne(nil, "test-0", 100)
	require.NoError(t, err)
	w.ProcessJob(context.Background(), job, "test-0")

	finished, err := rig.store.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobStatusSuccess, finished.Status)

	// The conversion saw the train split before any split-names entry
	// exists, and its split-scoped successor is already queued
	inProcess, err := rig.store.IsJobInProcess(types.ArtifactKey{
		Kind: "split-duckdb-index", Dataset: "org/ds", Config: "default", Split: "train"})
	require.NoError(t, err)
	assert.True(t, inProcess, "discovered splits seed their successor jobs")

	// Config-scoped successors are left to the planner
	inProcess, err = rig.store.IsJobInProcess(types.ArtifactKey{
		Kind: "config-parquet", Dataset: "org/ds", Config: "default"})
	require.NoError(t, err)
	assert.False(t, inProcess)
}

func TestFullDatasetConvergence(t *testing.T) {
	rig := newTestRig(t)
	rig.seed()

	require.NoError(t, rig.orch.SmartUpdate(context.Background(), "org/ds"))
	processed := rig.drain(t)
	assert.Greater(t, processed, 10, "the whole graph should have run")

	// Every artifact of the graph has an entry, and the leaves converged
	headers, err := rig.store.ListCacheHeadersByDataset("org/ds")
	require.NoError(t, err)
	byKind := map[string]int{}
	for _, header := range headers {
		byKind[header.Kind]++
	}
	for _, kind := range []string{"dataset-config-names", "config-parquet", "split-is-valid", "dataset-hub-cache"} {
		assert.GreaterOrEqual(t, byKind[kind], 1, "missing artifact for %s", kind)
	}

	entry, err := rig.store.GetCache(types.ArtifactKey{Kind: "dataset-hub-cache", Dataset: "org/ds"})
	require.NoError(t, err)
	require.True(t, entry.IsSuccess())
	assert.Equal(t, 1.0, entry.Progress)

	// A second plan over the settled dataset creates nothing
	created, err := rig.orch.PlanBackfill(context.Background(), "org/ds", "r1", types.PriorityLow)
	require.NoError(t, err)
	assert.Zero(t, created)
}
