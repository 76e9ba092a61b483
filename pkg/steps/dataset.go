package steps

import (
	"context"
	"encoding/json"

	"github.com/burrowhq/burrow/pkg/types"
)

// splitNamesKinds lists the split-names variants in preference order
var splitNamesKinds = []string{"config-split-names-from-info", "config-split-names-from-streaming"}

// firstRowsKinds lists the first-rows variants in preference order
var firstRowsKinds = []string{"split-first-rows-from-parquet", "split-first-rows-from-streaming"}

// configNamesFor reads the config list of a dataset from the
// dataset-config-names entry, raising CachedArtifactError when the root
// step has not succeeded yet
func configNamesFor(deps *Deps, dataset string) ([]string, error) {
	entry, err := readPredecessor(deps.Store, []string{"dataset-config-names"}, dataset, "", "")
	if err != nil {
		return nil, err
	}
	var content types.ConfigNamesContent
	if err := decodeContent(entry, &content); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(content.ConfigNames))
	for _, item := range content.ConfigNames {
		names = append(names, item.Config)
	}
	return names, nil
}

// splitNamesFor reads the split list of one config from whichever
// split-names entry succeeded
func splitNamesFor(deps *Deps, dataset, config string) ([]string, error) {
	entry, err := readPredecessor(deps.Store, splitNamesKinds, dataset, config, "")
	if err != nil {
		return nil, err
	}
	var content types.SplitNamesContent
	if err := decodeContent(entry, &content); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(content.SplitNames))
	for _, item := range content.SplitNames {
		names = append(names, item.Split)
	}
	return names, nil
}

// marshalResult wraps content serialization for a runner result
func marshalResult(content any, progress float64) (*Result, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return &Result{Content: data, Progress: progress}, nil
}

// configNamesRunner computes dataset-config-names, the root of the
// graph: the authoritative config list fetched from the hub
type configNamesRunner struct{ stepRunner }

func (r *configNamesRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	names, err := r.deps.Hub.ConfigNames(ctx, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := types.ConfigNamesContent{ConfigNames: make([]types.ConfigNameItem, 0, len(names))}
	for _, name := range names {
		content.ConfigNames = append(content.ConfigNames, types.ConfigNameItem{
			Dataset: params.Key.Dataset,
			Config:  name,
		})
	}
	return marshalResult(&content, 1.0)
}

// datasetSplitNamesRunner computes dataset-split-names by fanning in the
// per-config split lists
type datasetSplitNamesRunner struct{ stepRunner }

func (r *datasetSplitNamesRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := DatasetSplitNamesContent{Splits: []FullSplitItem{}, Pending: []string{}, Failed: []string{}}
	agg := &aggregate{}
	for _, config := range configs {
		err := agg.collect(r.deps.Store, splitNamesKinds, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
			var names types.SplitNamesContent
			if err := decodeContent(entry, &names); err != nil {
				return err
			}
			for _, item := range names.SplitNames {
				content.Splits = append(content.Splits, FullSplitItem{
					Dataset: item.Dataset, Config: item.Config, Split: item.Split,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	content.Pending = append(content.Pending, agg.Pending...)
	content.Failed = append(content.Failed, agg.Failed...)
	return marshalResult(&content, agg.Progress())
}

// datasetParquetRunner computes dataset-parquet by concatenating the
// per-config parquet listings
type datasetParquetRunner struct{ stepRunner }

func (r *datasetParquetRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := DatasetParquetContent{ParquetFiles: []ParquetFileItem{}, Pending: []string{}, Failed: []string{}}
	agg := &aggregate{}
	for _, config := range configs {
		err := agg.collect(r.deps.Store, []string{"config-parquet"}, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
			var cfg ConfigParquetContent
			if err := decodeContent(entry, &cfg); err != nil {
				return err
			}
			content.ParquetFiles = append(content.ParquetFiles, cfg.ParquetFiles...)
			content.Partial = content.Partial || cfg.Partial
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	content.Pending = append(content.Pending, agg.Pending...)
	content.Failed = append(content.Failed, agg.Failed...)
	return marshalResult(&content, agg.Progress())
}

// datasetInfoRunner computes dataset-info by collecting the per-config
// metadata blocks
type datasetInfoRunner struct{ stepRunner }

func (r *datasetInfoRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := DatasetInfoContent{DatasetInfo: map[string]ConfigDatasetInfo{}, Pending: []string{}, Failed: []string{}}
	agg := &aggregate{}
	for _, config := range configs {
		config := config
		err := agg.collect(r.deps.Store, []string{"config-info"}, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
			var info ConfigInfoContent
			if err := decodeContent(entry, &info); err != nil {
				return err
			}
			content.DatasetInfo[config] = info.DatasetInfo
			content.Partial = content.Partial || info.Partial
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	content.Pending = append(content.Pending, agg.Pending...)
	content.Failed = append(content.Failed, agg.Failed...)
	return marshalResult(&content, agg.Progress())
}

// datasetSizeRunner computes dataset-size by summing the per-config size
// tables
type datasetSizeRunner struct{ stepRunner }

func (r *datasetSizeRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := DatasetSizeContent{Pending: []string{}, Failed: []string{}}
	content.Size.Dataset = DatasetSizeEntry{Dataset: params.Key.Dataset}
	content.Size.Configs = []ConfigSizeEntry{}
	content.Size.Splits = []SplitSizeEntry{}
	agg := &aggregate{}
	for _, config := range configs {
		err := agg.collect(r.deps.Store, []string{"config-size"}, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
			var size ConfigSizeContent
			if err := decodeContent(entry, &size); err != nil {
				return err
			}
			content.Size.Configs = append(content.Size.Configs, size.Size.Config)
			content.Size.Splits = append(content.Size.Splits, size.Size.Splits...)
			content.Size.Dataset.NumBytesOriginalFiles += size.Size.Config.NumBytesOriginalFiles
			content.Size.Dataset.NumBytesParquetFiles += size.Size.Config.NumBytesParquetFiles
			content.Size.Dataset.NumRows += size.Size.Config.NumRows
			content.Partial = content.Partial || size.Partial
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	content.Pending = append(content.Pending, agg.Pending...)
	content.Failed = append(content.Failed, agg.Failed...)
	return marshalResult(&content, agg.Progress())
}

// datasetIsValidRunner computes dataset-is-valid: the dataset enables a
// capability as soon as any config does
type datasetIsValidRunner struct{ stepRunner }

func (r *datasetIsValidRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := DatasetIsValidContent{Pending: []string{}, Failed: []string{}}
	agg := &aggregate{}
	for _, config := range configs {
		err := agg.collect(r.deps.Store, []string{"config-is-valid"}, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
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
	content.Pending = append(content.Pending, agg.Pending...)
	content.Failed = append(content.Failed, agg.Failed...)
	return marshalResult(&content, agg.Progress())
}

// datasetURLsCountRunner computes dataset-opt-in-out-urls-count by
// summing the per-config counters
type datasetURLsCountRunner struct{ stepRunner }

func (r *datasetURLsCountRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	configs, err := configNamesFor(r.deps, params.Key.Dataset)
	if err != nil {
		return nil, err
	}
	content := URLsCountContent{URLsColumns: []string{}, FullScan: true}
	agg := &aggregate{}
	for _, config := range configs {
		err := agg.collect(r.deps.Store, []string{"config-opt-in-out-urls-count"}, params.Key.Dataset, config, "", config, func(entry *types.CacheEntry) error {
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

// sumURLsCounts folds one child counter into the parent
func sumURLsCounts(parent, child *URLsCountContent) {
	parent.URLsColumns = append(parent.URLsColumns, child.URLsColumns...)
	parent.NumOptInURLs += child.NumOptInURLs
	parent.NumOptOutURLs += child.NumOptOutURLs
	parent.NumURLs += child.NumURLs
	parent.NumScannedRows += child.NumScannedRows
	parent.HasURLsColumns = parent.HasURLsColumns || child.HasURLsColumns
	parent.FullScan = parent.FullScan && child.FullScan
}

// hubCacheRunner computes dataset-hub-cache, the compact summary the hub
// consumes: validity flags plus the total row count
type hubCacheRunner struct{ stepRunner }

func (r *hubCacheRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	validEntry, err := readPredecessor(r.deps.Store, []string{"dataset-is-valid"}, params.Key.Dataset, "", "")
	if err != nil {
		return nil, err
	}
	var valid DatasetIsValidContent
	if err := decodeContent(validEntry, &valid); err != nil {
		return nil, err
	}

	content := HubCacheContent{Viewer: valid.Viewer, Preview: valid.Preview}
	progress := validEntry.Progress

	// The size block is optional: validity can be reported before sizes
	// are known.
	sizeEntry, err := r.deps.Store.BestCache([]string{"dataset-size"}, params.Key.Dataset, "", "")
	if err == nil && sizeEntry.IsSuccess() {
		var size DatasetSizeContent
		if err := decodeContent(sizeEntry, &size); err != nil {
			return nil, err
		}
		content.NumRows = size.Size.Dataset.NumRows
		content.Partial = size.Partial
		if sizeEntry.Progress < progress {
			progress = sizeEntry.Progress
		}
	}
	return marshalResult(&content, progress)
}
