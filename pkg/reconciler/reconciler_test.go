package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T, cfg Config) (*Reconciler, *storage.BoltStore, *hub.Memory) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	g := graph.MustNew(graph.Specification)
	memory := hub.NewMemory()
	orch := orchestrator.New(store, g, memory, orchestrator.Config{})
	return New(store, g, memory, orch, cfg), store, memory
}

func leaseOne(t *testing.T, store *storage.BoltStore, key types.ArtifactKey) *types.Job {
	t.Helper()
	_, _, err := store.UpsertJob(storage.JobUpsert{Key: key, Revision: "r1", Priority: types.PriorityNormal})
	require.NoError(t, err)
	job, err := store.StartOne(nil, "w1", 10)
	require.NoError(t, err)
	return job
}

func TestReclaimRequeuesThenCrashes(t *testing.T) {
	r, store, _ := newTestReconciler(t, Config{ZombieMaxSilence: time.Minute, MaxJobAttempts: 1})
	key := types.ArtifactKey{Kind: "config-parquet", Dataset: "org/ds", Config: "default"}
	job := leaseOne(t, store, key)

	// First silence: requeued
	require.NoError(t, r.ReclaimZombies(time.Now().Add(10*time.Minute)))
	requeued, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusWaiting, requeued.Status)
	assert.Equal(t, 1, requeued.Attempts)

	// Second silence exhausts the attempts: errored, with a cache entry
	// explaining the crash
	_, err = store.StartOne(nil, "w2", 10)
	require.NoError(t, err)
	require.NoError(t, r.ReclaimZombies(time.Now().Add(10*time.Minute)))

	crashed, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusError, crashed.Status)

	entry, err := store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, string(types.CodeJobRunnerCrashed), entry.ErrorCode)
	assert.Equal(t, "r1", entry.DatasetRevision)
}

func TestReclaimExceededDuration(t *testing.T) {
	r, store, _ := newTestReconciler(t, Config{ZombieMaxDuration: 20 * time.Minute})
	key := types.ArtifactKey{Kind: "config-parquet", Dataset: "org/ds", Config: "default"}
	job := leaseOne(t, store, key)

	require.NoError(t, r.ReclaimZombies(time.Now().Add(time.Hour)))

	errored, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusError, errored.Status)

	entry, err := store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, string(types.CodeJobRunnerExceededDuration), entry.ErrorCode)
}

func TestBackfillKnownDatasets(t *testing.T) {
	r, store, memory := newTestReconciler(t, Config{})
	memory.Put("org/ds", &hub.MemoryDataset{Revision: "r1", Supported: true, Configs: map[string][]string{"default": {"train"}}})

	// The cache knows two datasets; one vanished from the hub
	for _, dataset := range []string{"org/ds", "org/gone"} {
		require.NoError(t, store.UpsertCache(storage.CacheUpsert{
			Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: dataset},
			Revision: "r0", Content: []byte(`{"config_names":[]}`),
			HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
		}))
	}

	require.NoError(t, r.BackfillKnownDatasets(context.Background()))

	// The live dataset was re-planned at low priority
	inProcess, err := store.IsJobInProcess(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"})
	require.NoError(t, err)
	assert.True(t, inProcess)

	// The vanished dataset was purged
	_, err = store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/gone"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPurgeFinishedJobs(t *testing.T) {
	r, store, _ := newTestReconciler(t, Config{})
	key := types.ArtifactKey{Kind: "config-parquet", Dataset: "org/ds", Config: "default"}
	job := leaseOne(t, store, key)
	require.NoError(t, store.FinishJob(job.ID, "w1", types.JobStatusSuccess))

	// Inside the retention window: kept
	require.NoError(t, r.PurgeFinishedJobs(time.Now()))
	_, err := store.GetJob(job.ID)
	require.NoError(t, err)

	// Past the window: purged
	require.NoError(t, r.PurgeFinishedJobs(time.Now().Add(8*24*time.Hour)))
	_, err = store.GetJob(job.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
