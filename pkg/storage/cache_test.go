package storage

import (
	"testing"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func splitKey(kind string) types.ArtifactKey {
	return types.ArtifactKey{Kind: kind, Dataset: "org/ds", Config: "default", Split: "train"}
}

func TestUpsertAndGetCache(t *testing.T) {
	store := newTestStore(t)
	key := splitKey("split-first-rows-from-streaming")

	err := store.UpsertCache(CacheUpsert{
		Key:              key,
		Revision:         "r1",
		Content:          []byte(`{"rows":[]}`),
		HTTPStatus:       200,
		Progress:         1.0,
		JobRunnerVersion: 3,
	})
	require.NoError(t, err)

	entry, err := store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, "r1", entry.DatasetRevision)
	assert.Equal(t, 3, entry.JobRunnerVersion)
	assert.True(t, entry.IsSuccess())
	assert.Equal(t, 0, entry.Attempts)
	assert.NotEmpty(t, entry.KeyDigest)

	header, err := store.GetCacheHeader(key)
	require.NoError(t, err)
	assert.Equal(t, entry.HTTPStatus, header.HTTPStatus)
	assert.Equal(t, entry.JobRunnerVersion, header.JobRunnerVersion)
}

func TestGetCacheNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCache(splitKey("config-parquet"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpsertCacheVersionMonotonicity(t *testing.T) {
	store := newTestStore(t)
	key := splitKey("config-parquet")

	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key: key, Revision: "r1", Content: []byte(`{"v":4}`), HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 4,
	}))

	// Same revision, older runner version: rejected
	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key: key, Revision: "r1", Content: []byte(`{"v":3}`), HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3,
	}))
	entry, err := store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, 4, entry.JobRunnerVersion)
	assert.JSONEq(t, `{"v":4}`, string(entry.Content))

	// New revision: always replaces, even with an older version
	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key: key, Revision: "r2", Content: []byte(`{"v":3}`), HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3,
	}))
	entry, err = store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, "r2", entry.DatasetRevision)
	assert.Equal(t, 3, entry.JobRunnerVersion)
}

func TestUpsertCacheAttemptsCounter(t *testing.T) {
	store := newTestStore(t)
	key := splitKey("split-duckdb-index")

	errored := CacheUpsert{
		Key: key, Revision: "r1", HTTPStatus: 500,
		ErrorCode: types.CodeClientConnectionError, Progress: 1.0, JobRunnerVersion: 1,
	}

	require.NoError(t, store.UpsertCache(errored))
	entry, err := store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)

	require.NoError(t, store.UpsertCache(errored))
	entry, err = store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)

	// Success resets the counter
	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key: key, Revision: "r1", Content: []byte(`{}`), HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
	}))
	entry, err = store.GetCache(key)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Attempts)
}

func TestBestCache(t *testing.T) {
	kinds := []string{"config-split-names-from-info", "config-split-names-from-streaming"}

	tests := []struct {
		name     string
		preload  []CacheUpsert
		wantKind string
		wantErr  bool
	}{
		{
			name: "first listed OK kind wins",
			preload: []CacheUpsert{
				{Key: types.ArtifactKey{Kind: kinds[0], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3},
				{Key: types.ArtifactKey{Kind: kinds[1], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3},
			},
			wantKind: kinds[0],
		},
		{
			name: "second kind OK when first errored",
			preload: []CacheUpsert{
				{Key: types.ArtifactKey{Kind: kinds[0], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 500, ErrorCode: types.CodeUnexpected, Progress: 1.0, JobRunnerVersion: 3},
				{Key: types.ArtifactKey{Kind: kinds[1], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 3},
			},
			wantKind: kinds[1],
		},
		{
			name: "last listed entry when none succeeded",
			preload: []CacheUpsert{
				{Key: types.ArtifactKey{Kind: kinds[0], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 500, ErrorCode: types.CodeUnexpected, Progress: 1.0, JobRunnerVersion: 3},
				{Key: types.ArtifactKey{Kind: kinds[1], Dataset: "org/ds", Config: "default"}, Revision: "r1", HTTPStatus: 501, ErrorCode: types.CodeUnexpected, Progress: 1.0, JobRunnerVersion: 3},
			},
			wantKind: kinds[1],
		},
		{
			name:    "not found when nothing cached",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			for _, u := range tt.preload {
				require.NoError(t, store.UpsertCache(u))
			}

			entry, err := store.BestCache(kinds, "org/ds", "default", "")
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, entry.Kind)
		})
	}
}

func TestDeleteCacheByDataset(t *testing.T) {
	store := newTestStore(t)

	for _, dataset := range []string{"org/ds", "org/ds2", "org-b/ds"} {
		require.NoError(t, store.UpsertCache(CacheUpsert{
			Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: dataset},
			Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
		}))
		require.NoError(t, store.UpsertCache(CacheUpsert{
			Key:      types.ArtifactKey{Kind: "dataset-is-valid", Dataset: dataset},
			Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 2,
		}))
	}

	deleted, err := store.DeleteCacheByDataset("org/ds")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Other datasets untouched, including the one sharing a name prefix
	_, err = store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds2"})
	assert.NoError(t, err)
	_, err = store.GetCache(types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org-b/ds"})
	assert.NoError(t, err)
}

func TestListCacheHeadersByDataset(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"},
		Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
	}))
	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key:      types.ArtifactKey{Kind: "config-size", Dataset: "org/ds", Config: "default"},
		Revision: "r1", HTTPStatus: 500, ErrorCode: types.CodeUnexpected, Progress: 1.0, JobRunnerVersion: 2,
	}))

	headers, err := store.ListCacheHeadersByDataset("org/ds")
	require.NoError(t, err)
	assert.Len(t, headers, 2)

	headers, err = store.ListCacheHeadersByDataset("org/unknown")
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestCountCacheByKindStatus(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "a/x"},
		Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
	}))
	require.NoError(t, store.UpsertCache(CacheUpsert{
		Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: "a/y"},
		Revision: "r1", HTTPStatus: 500, ErrorCode: types.CodeUnexpected, Progress: 1.0, JobRunnerVersion: 1,
	}))

	counts, err := store.CountCacheByKindStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["dataset-config-names"][200])
	assert.Equal(t, 1, counts["dataset-config-names"][500])
}

func TestSampleDatasets(t *testing.T) {
	store := newTestStore(t)

	for _, dataset := range []string{"a/x", "a/y", "b/z"} {
		require.NoError(t, store.UpsertCache(CacheUpsert{
			Key:      types.ArtifactKey{Kind: "dataset-config-names", Dataset: dataset},
			Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 1,
		}))
		require.NoError(t, store.UpsertCache(CacheUpsert{
			Key:      types.ArtifactKey{Kind: "dataset-size", Dataset: dataset},
			Revision: "r1", HTTPStatus: 200, Progress: 1.0, JobRunnerVersion: 2,
		}))
	}

	datasets, err := store.SampleDatasets(0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/x", "a/y", "b/z"}, datasets)

	datasets, err = store.SampleDatasets(2)
	require.NoError(t, err)
	assert.Len(t, datasets, 2)
}
