package steps

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDataset registers a small two-split dataset on the memory hub
func seedDataset(env *testEnv) {
	env.hub.Put("org/ds", &hub.MemoryDataset{
		Revision:  "r1",
		Supported: true,
		SizeBytes: 2000,
		Configs:   map[string][]string{"default": {"train", "test"}},
		Features: []hub.Feature{
			{Name: "text", Type: "string"},
			{Name: "label", Type: "int64"},
		},
		Rows: []hub.Row{
			{"text": "hello", "label": float64(0)},
			{"text": "world", "label": float64(1)},
			{"text": "again", "label": float64(1)},
		},
	})
}

// buildConfigBranch runs the steps of one config in dependency order
func buildConfigBranch(t *testing.T, env *testEnv, config string) {
	t.Helper()
	for _, kind := range []string{"config-parquet-and-info", "config-parquet", "config-parquet-metadata", "config-info", "config-size"} {
		outcome := env.run(t, types.ArtifactKey{Kind: kind, Dataset: "org/ds", Config: config}, "r1")
		require.True(t, outcome.IsSuccess(), "step %s failed: %s", kind, outcome.Details)
	}
}

func TestConfigNamesRunner(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)

	outcome := env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")
	require.True(t, outcome.IsSuccess())

	var content types.ConfigNamesContent
	require.NoError(t, json.Unmarshal(outcome.Content, &content))
	require.Len(t, content.ConfigNames, 1)
	assert.Equal(t, "default", content.ConfigNames[0].Config)
}

func TestParquetBranch(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)
	env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")
	buildConfigBranch(t, env, "default")

	entry, err := env.store.GetCache(types.ArtifactKey{Kind: "config-parquet", Dataset: "org/ds", Config: "default"})
	require.NoError(t, err)
	var parquet ConfigParquetContent
	require.NoError(t, json.Unmarshal(entry.Content, &parquet))
	require.Len(t, parquet.ParquetFiles, 2)
	assert.Equal(t, "0000.parquet", parquet.ParquetFiles[0].Filename)
	assert.Contains(t, parquet.ParquetFiles[0].URL, "https://assets.test/datasets/org/ds/parquet/default/")

	entry, err = env.store.GetCache(types.ArtifactKey{Kind: "config-parquet-metadata", Dataset: "org/ds", Config: "default"})
	require.NoError(t, err)
	var metadata ConfigParquetMetadataContent
	require.NoError(t, json.Unmarshal(entry.Content, &metadata))
	require.Len(t, metadata.ParquetFilesMetadata, 2)
	assert.Equal(t, int64(3), metadata.ParquetFilesMetadata[0].NumRows)

	entry, err = env.store.GetCache(types.ArtifactKey{Kind: "config-size", Dataset: "org/ds", Config: "default"})
	require.NoError(t, err)
	var size ConfigSizeContent
	require.NoError(t, json.Unmarshal(entry.Content, &size))
	assert.Equal(t, int64(2000), size.Size.Config.NumBytesParquetFiles)
	assert.Equal(t, int64(6), size.Size.Config.NumRows)
	require.Len(t, size.Size.Splits, 2)
}

func TestSplitNamesFromInfo(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)
	env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")
	buildConfigBranch(t, env, "default")

	outcome := env.run(t, types.ArtifactKey{Kind: "config-split-names-from-info", Dataset: "org/ds", Config: "default"}, "r1")
	require.True(t, outcome.IsSuccess())

	var content types.SplitNamesContent
	require.NoError(t, json.Unmarshal(outcome.Content, &content))
	require.Len(t, content.SplitNames, 2)
	assert.Equal(t, "train", content.SplitNames[0].Split)

	runner, err := env.registry.Get("config-split-names-from-info")
	require.NoError(t, err)
	keys := runner.NewSplitKeys(outcome.Content)
	assert.Equal(t, []types.SplitKey{
		{Dataset: "org/ds", Config: "default", Split: "train"},
		{Dataset: "org/ds", Config: "default", Split: "test"},
	}, keys)
}

func TestFirstRowsFromParquetNeedsMetadata(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)

	key := types.ArtifactKey{Kind: "split-first-rows-from-parquet", Dataset: "org/ds", Config: "default", Split: "train"}
	outcome := env.run(t, key, "r1")
	assert.Equal(t, types.CodeCachedArtifact, outcome.ErrorCode)

	env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")
	buildConfigBranch(t, env, "default")

	outcome = env.run(t, key, "r1")
	require.True(t, outcome.IsSuccess())
	var content FirstRowsContent
	require.NoError(t, json.Unmarshal(outcome.Content, &content))
	assert.Len(t, content.Rows, 3)
	assert.Len(t, content.Features, 2)
	assert.False(t, content.Truncated)
}

func TestFirstRowsTruncatesOversizedSplit(t *testing.T) {
	env := newTestEnvWithRows(t, 5, 2)
	rows := make([]hub.Row, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, hub.Row{"text": fmt.Sprintf("row %d", i), "label": float64(i % 2)})
	}
	env.hub.Put("org/long", &hub.MemoryDataset{
		Revision:  "r1",
		Supported: true,
		SizeBytes: 2000,
		Configs:   map[string][]string{"default": {"train"}},
		Features: []hub.Feature{
			{Name: "text", Type: "string"},
			{Name: "label", Type: "int64"},
		},
		Rows: rows,
	})

	key := types.ArtifactKey{Kind: "split-first-rows-from-streaming", Dataset: "org/long", Config: "default", Split: "train"}
	outcome := env.run(t, key, "r1")
	require.True(t, outcome.IsSuccess())

	var content FirstRowsContent
	require.NoError(t, json.Unmarshal(outcome.Content, &content))
	assert.True(t, content.Truncated, "a split longer than the cap is marked truncated")
	assert.LessOrEqual(t, len(content.Rows), 5)
	assert.GreaterOrEqual(t, len(content.Rows), 2)
	assert.Len(t, content.Features, 2)
}

func TestDatasetFanIn(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)
	env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")

	// Before any config artifact exists, the fan-in is fully pending
	outcome := env.run(t, types.ArtifactKey{Kind: "dataset-size", Dataset: "org/ds"}, "r1")
	require.True(t, outcome.IsSuccess())
	assert.Equal(t, 0.0, outcome.Progress)

	buildConfigBranch(t, env, "default")

	outcome = env.run(t, types.ArtifactKey{Kind: "dataset-size", Dataset: "org/ds"}, "r1")
	require.True(t, outcome.IsSuccess())
	assert.Equal(t, 1.0, outcome.Progress)

	var size DatasetSizeContent
	require.NoError(t, json.Unmarshal(outcome.Content, &size))
	assert.Equal(t, int64(6), size.Size.Dataset.NumRows)
	assert.Equal(t, int64(2000), size.Size.Dataset.NumBytesParquetFiles)
	assert.Empty(t, size.Pending)
}

func TestValidityChain(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)
	env.run(t, types.ArtifactKey{Kind: "dataset-config-names", Dataset: "org/ds"}, "r1")
	buildConfigBranch(t, env, "default")
	env.run(t, types.ArtifactKey{Kind: "config-split-names-from-info", Dataset: "org/ds", Config: "default"}, "r1")

	for _, split := range []string{"train", "test"} {
		env.run(t, types.ArtifactKey{Kind: "split-first-rows-from-parquet", Dataset: "org/ds", Config: "default", Split: split}, "r1")
		env.run(t, types.ArtifactKey{Kind: "split-duckdb-index", Dataset: "org/ds", Config: "default", Split: split}, "r1")
		outcome := env.run(t, types.ArtifactKey{Kind: "split-is-valid", Dataset: "org/ds", Config: "default", Split: split}, "r1")
		require.True(t, outcome.IsSuccess())

		var valid IsValidContent
		require.NoError(t, json.Unmarshal(outcome.Content, &valid))
		assert.True(t, valid.Viewer)
		assert.True(t, valid.Preview)
		assert.True(t, valid.Search, "string column enables full-text search")
	}

	env.run(t, types.ArtifactKey{Kind: "config-is-valid", Dataset: "org/ds", Config: "default"}, "r1")
	outcome := env.run(t, types.ArtifactKey{Kind: "dataset-is-valid", Dataset: "org/ds"}, "r1")
	require.True(t, outcome.IsSuccess())

	var valid DatasetIsValidContent
	require.NoError(t, json.Unmarshal(outcome.Content, &valid))
	assert.True(t, valid.Viewer)
	assert.True(t, valid.Preview)

	env.run(t, types.ArtifactKey{Kind: "dataset-size", Dataset: "org/ds"}, "r1")
	outcome = env.run(t, types.ArtifactKey{Kind: "dataset-hub-cache", Dataset: "org/ds"}, "r1")
	require.True(t, outcome.IsSuccess())

	var hubCache HubCacheContent
	require.NoError(t, json.Unmarshal(outcome.Content, &hubCache))
	assert.True(t, hubCache.Viewer)
	assert.True(t, hubCache.Preview)
	assert.Equal(t, int64(6), hubCache.NumRows)
}

func TestImageURLColumns(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Put("org/images", &hub.MemoryDataset{
		Revision:  "r1",
		Supported: true,
		SizeBytes: 100,
		Configs:   map[string][]string{"default": {"train"}},
		Features: []hub.Feature{
			{Name: "image_url", Type: "string"},
			{Name: "caption", Type: "string"},
		},
		Rows: []hub.Row{
			{"image_url": "https://cdn.test/a.jpg", "caption": "a"},
			{"image_url": "https://cdn.test/b.png?w=100", "caption": "b"},
		},
	})

	key := types.ArtifactKey{Kind: "split-first-rows-from-streaming", Dataset: "org/images", Config: "default", Split: "train"}
	outcome := env.run(t, key, "r1")
	require.True(t, outcome.IsSuccess())

	outcome = env.run(t, types.ArtifactKey{Kind: "split-image-url-columns", Dataset: "org/images", Config: "default", Split: "train"}, "r1")
	require.True(t, outcome.IsSuccess())
	var columns ImageURLColumnsContent
	require.NoError(t, json.Unmarshal(outcome.Content, &columns))
	assert.Equal(t, []string{"image_url"}, columns.Columns)

	outcome = env.run(t, types.ArtifactKey{Kind: "split-opt-in-out-urls-scan", Dataset: "org/images", Config: "default", Split: "train"}, "r1")
	require.True(t, outcome.IsSuccess())
	var scan URLsCountContent
	require.NoError(t, json.Unmarshal(outcome.Content, &scan))
	assert.True(t, scan.HasURLsColumns)
	assert.Equal(t, 2, scan.NumURLs)
	assert.Equal(t, 2, scan.NumScannedRows)
	assert.True(t, scan.FullScan)
}

func TestDescriptiveStatistics(t *testing.T) {
	env := newTestEnv(t)
	seedDataset(env)

	outcome := env.run(t, types.ArtifactKey{Kind: "split-descriptive-statistics", Dataset: "org/ds", Config: "default", Split: "train"}, "r1")
	require.True(t, outcome.IsSuccess())

	var stats StatisticsContent
	require.NoError(t, json.Unmarshal(outcome.Content, &stats))
	assert.Equal(t, int64(3), stats.NumExamples)
	require.Len(t, stats.Statistics, 2)

	byColumn := map[string]StatisticsColumn{}
	for _, column := range stats.Statistics {
		byColumn[column.ColumnName] = column
	}
	assert.Equal(t, float64(0), byColumn["label"].Stats["min"])
	assert.Equal(t, float64(1), byColumn["label"].Stats["max"])
	assert.Equal(t, float64(3), byColumn["text"].Stats["n_unique"])
}
