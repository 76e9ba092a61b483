package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/burrowhq/burrow/pkg/types"
)

// parquetShardName is the filename of a converted split shard. One shard
// per split for now; TODO: shard splits above the row-group target once
// the converter reports shard boundaries.
const parquetShardName = "0000.parquet"

// parquetURL builds the public URL of one converted shard
func parquetURL(base, dataset, config, split, filename string) string {
	return fmt.Sprintf("%s/%s/parquet/%s/%s/%s", base, dataset, config, split, filename)
}

// splitNamesFromStreamingRunner computes
// config-split-names-from-streaming straight from the hub
type splitNamesFromStreamingRunner struct{ stepRunner }

func (r *splitNamesFromStreamingRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	names, err := r.deps.Hub.SplitNames(ctx, params.Key.Dataset, params.Key.Config)
	if err != nil {
		return nil, err
	}
	return marshalResult(splitNamesContent(params, names), 1.0)
}

// splitNamesFromInfoRunner computes config-split-names-from-info from
// the already-built config-info entry, avoiding a hub round trip
type splitNamesFromInfoRunner struct{ stepRunner }

func (r *splitNamesFromInfoRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var info ConfigInfoContent
	if err := decodeContent(entry, &info); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(info.DatasetInfo.Splits))
	for _, split := range info.DatasetInfo.Splits {
		names = append(names, split.Name)
	}
	return marshalResult(splitNamesContent(params, names), 1.0)
}

// splitNamesKeys parses a split-names content into fan-out keys
func splitNamesKeys(content []byte) []types.SplitKey {
	var parsed types.SplitNamesContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil
	}
	keys := make([]types.SplitKey, 0, len(parsed.SplitNames))
	for _, item := range parsed.SplitNames {
		keys = append(keys, types.SplitKey{Dataset: item.Dataset, Config: item.Config, Split: item.Split})
	}
	return keys
}

func (r *splitNamesFromStreamingRunner) NewSplitKeys(content []byte) []types.SplitKey {
	return splitNamesKeys(content)
}

func (r *splitNamesFromInfoRunner) NewSplitKeys(content []byte) []types.SplitKey {
	return splitNamesKeys(content)
}

// splitNamesContent builds the shared split-names content shape
func splitNamesContent(params JobParams, names []string) *types.SplitNamesContent {
	content := &types.SplitNamesContent{SplitNames: make([]types.SplitNameItem, 0, len(names))}
	for _, name := range names {
		content.SplitNames = append(content.SplitNames, types.SplitNameItem{
			Dataset: params.Key.Dataset,
			Config:  params.Key.Config,
			Split:   name,
		})
	}
	return content
}

// parquetAndInfoRunner computes config-parquet-and-info: the parquet
// shard listing plus the config metadata block, both derived from the
// hub. This is the heavy conversion step every parquet-based step
// descends from.
type parquetAndInfoRunner struct{ stepRunner }

func (r *parquetAndInfoRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	dataset, config := params.Key.Dataset, params.Key.Config
	splits, err := r.deps.Hub.SplitNames(ctx, dataset, config)
	if err != nil {
		return nil, err
	}
	info, err := r.deps.Hub.Info(ctx, dataset)
	if err != nil {
		return nil, err
	}

	content := ConfigParquetAndInfoContent{
		ParquetFiles: make([]ParquetFileItem, 0, len(splits)),
		DatasetInfo: ConfigDatasetInfo{
			ConfigName:   config,
			Splits:       make([]SplitInfo, 0, len(splits)),
			DownloadSize: info.SizeBytes,
		},
	}
	for _, split := range splits {
		stats, err := r.deps.Hub.SplitStats(ctx, dataset, config, split)
		if err != nil {
			return nil, err
		}
		content.ParquetFiles = append(content.ParquetFiles, ParquetFileItem{
			Dataset:  dataset,
			Config:   config,
			Split:    split,
			URL:      parquetURL(r.deps.ParquetBaseURL, dataset, config, split, parquetShardName),
			Filename: parquetShardName,
			Size:     stats.NumBytes,
		})
		content.DatasetInfo.Splits = append(content.DatasetInfo.Splits, SplitInfo{
			Name:        split,
			NumExamples: stats.NumRows,
			NumBytes:    stats.NumBytes,
		})
		content.DatasetInfo.DatasetSize += stats.NumBytes
	}
	return marshalResult(&content, 1.0)
}

// NewSplitKeys exposes the splits the conversion discovered, so the
// split subtree fans out without waiting for a split-names step
func (r *parquetAndInfoRunner) NewSplitKeys(content []byte) []types.SplitKey {
	var parsed ConfigParquetAndInfoContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil
	}
	keys := make([]types.SplitKey, 0, len(parsed.ParquetFiles))
	seen := make(map[string]struct{}, len(parsed.ParquetFiles))
	for _, file := range parsed.ParquetFiles {
		if _, ok := seen[file.Split]; ok {
			continue
		}
		seen[file.Split] = struct{}{}
		keys = append(keys, types.SplitKey{Dataset: file.Dataset, Config: file.Config, Split: file.Split})
	}
	return keys
}

// configParquetRunner computes config-parquet, the public subset of
// config-parquet-and-info
type configParquetRunner struct{ stepRunner }

func (r *configParquetRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-parquet-and-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var full ConfigParquetAndInfoContent
	if err := decodeContent(entry, &full); err != nil {
		return nil, err
	}
	content := ConfigParquetContent{ParquetFiles: full.ParquetFiles, Partial: full.Partial}
	if content.ParquetFiles == nil {
		content.ParquetFiles = []ParquetFileItem{}
	}
	return marshalResult(&content, 1.0)
}

// parquetMetadataRunner computes config-parquet-metadata: the shard
// listing enriched with per-shard row counts
type parquetMetadataRunner struct{ stepRunner }

func (r *parquetMetadataRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-parquet-and-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var full ConfigParquetAndInfoContent
	if err := decodeContent(entry, &full); err != nil {
		return nil, err
	}

	rowsBySplit := make(map[string]int64, len(full.DatasetInfo.Splits))
	for _, split := range full.DatasetInfo.Splits {
		rowsBySplit[split.Name] = split.NumExamples
	}

	content := ConfigParquetMetadataContent{
		ParquetFilesMetadata: make([]ParquetFileMetadataItem, 0, len(full.ParquetFiles)),
		Partial:              full.Partial,
	}
	for _, file := range full.ParquetFiles {
		content.ParquetFilesMetadata = append(content.ParquetFilesMetadata, ParquetFileMetadataItem{
			ParquetFileItem: file,
			NumRows:         rowsBySplit[file.Split],
		})
	}
	return marshalResult(&content, 1.0)
}

// configInfoRunner computes config-info, the metadata block extracted
// from config-parquet-and-info
type configInfoRunner struct{ stepRunner }

func (r *configInfoRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-parquet-and-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var full ConfigParquetAndInfoContent
	if err := decodeContent(entry, &full); err != nil {
		return nil, err
	}
	return marshalResult(&ConfigInfoContent{DatasetInfo: full.DatasetInfo, Partial: full.Partial}, 1.0)
}

// configSizeRunner computes config-size: the size table derived from
// config-parquet-and-info
type configSizeRunner struct{ stepRunner }

func (r *configSizeRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-parquet-and-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var full ConfigParquetAndInfoContent
	if err := decodeContent(entry, &full); err != nil {
		return nil, err
	}

	bytesBySplit := make(map[string]int64, len(full.ParquetFiles))
	for _, file := range full.ParquetFiles {
		bytesBySplit[file.Split] += file.Size
	}

	var content ConfigSizeContent
	content.Partial = full.Partial
	content.Size.Config = ConfigSizeEntry{
		Dataset:               params.Key.Dataset,
		Config:                params.Key.Config,
		NumBytesOriginalFiles: full.DatasetInfo.DownloadSize,
	}
	content.Size.Splits = make([]SplitSizeEntry, 0, len(full.DatasetInfo.Splits))
	for _, split := range full.DatasetInfo.Splits {
		row := SplitSizeEntry{
			Dataset:              params.Key.Dataset,
			Config:               params.Key.Config,
			Split:                split.Name,
			NumBytesParquetFiles: bytesBySplit[split.Name],
			NumRows:              split.NumExamples,
		}
		content.Size.Splits = append(content.Size.Splits, row)
		content.Size.Config.NumBytesParquetFiles += row.NumBytesParquetFiles
		content.Size.Config.NumRows += row.NumRows
	}
	return marshalResult(&content, 1.0)
}

// configIsValidRunner computes config-is-valid: the config enables a
// capability as soon as any split does
type configIsValidRunner struct{ stepRunner }

func (r *configIsValidRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	splits, err := splitNamesFor(r.deps, params.Key.Dataset, params.Key.Config)
	if err != nil {
		return nil, err
	}
	var content IsValidContent
	agg := &aggregate{}
	for _, split := range splits {
		err := agg.collect(r.deps.Store, []string{"split-is-valid"}, params.Key.Dataset, params.Key.Config, split, split, func(entry *types.CacheEntry) error {
			var valid IsValidContent
			if err := decodeContent(entry, &valid); err != nil {
				return err
			}
			content.Viewer = content.Viewer || valid.Viewer
			content.Preview = content.Preview || valid.Preview
			content.Search = content.Search || valid.Search
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return marshalResult(&content, agg.Progress())
}

// configURLsCountRunner computes config-opt-in-out-urls-count by summing
// the per-split counters
type configURLsCountRunner struct{ stepRunner }

func (r *configURLsCountRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	splits, err := splitNamesFor(r.deps, params.Key.Dataset, params.Key.Config)
	if err != nil {
		return nil, err
	}
	content := URLsCountContent{URLsColumns: []string{}, FullScan: true}
	agg := &aggregate{}
	for _, split := range splits {
		err := agg.collect(r.deps.Store, []string{"split-opt-in-out-urls-count"}, params.Key.Dataset, params.Key.Config, split, split, func(entry *types.CacheEntry) error {
			var count URLsCountContent
			if err := decodeContent(entry, &count); err != nil {
				return err
			}
			sumURLsCounts(&content, &count)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return marshalResult(&content, agg.Progress())
}
