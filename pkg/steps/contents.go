package steps

import (
	"github.com/burrowhq/burrow/pkg/hub"
)

// Content shapes of the step outputs. These are the JSON documents
// stored in the cache and served verbatim by the read API, so field
// names are part of the external contract.

// ParquetFileItem describes one parquet shard of a split
type ParquetFileItem struct {
	Dataset  string `json:"dataset"`
	Config   string `json:"config"`
	Split    string `json:"split"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ParquetFileMetadataItem adds row counts to a parquet shard
type ParquetFileMetadataItem struct {
	ParquetFileItem
	NumRows int64 `json:"num_rows"`
}

// SplitInfo summarizes one split inside a config's dataset info
type SplitInfo struct {
	Name        string `json:"name"`
	NumExamples int64  `json:"num_examples"`
	NumBytes    int64  `json:"num_bytes"`
}

// ConfigDatasetInfo is the per-config metadata block
type ConfigDatasetInfo struct {
	ConfigName   string      `json:"config_name"`
	Splits       []SplitInfo `json:"splits"`
	DownloadSize int64       `json:"download_size"`
	DatasetSize  int64       `json:"dataset_size"`
}

// ConfigParquetAndInfoContent is the output of config-parquet-and-info
type ConfigParquetAndInfoContent struct {
	ParquetFiles []ParquetFileItem `json:"parquet_files"`
	DatasetInfo  ConfigDatasetInfo `json:"dataset_info"`
	Partial      bool              `json:"partial"`
}

// ConfigParquetContent is the output of config-parquet
type ConfigParquetContent struct {
	ParquetFiles []ParquetFileItem `json:"parquet_files"`
	Partial      bool              `json:"partial"`
}

// DatasetParquetContent is the fan-in of config-parquet over all configs
type DatasetParquetContent struct {
	ParquetFiles []ParquetFileItem `json:"parquet_files"`
	Pending      []string          `json:"pending"`
	Failed       []string          `json:"failed"`
	Partial      bool              `json:"partial"`
}

// ConfigParquetMetadataContent is the output of config-parquet-metadata
type ConfigParquetMetadataContent struct {
	ParquetFilesMetadata []ParquetFileMetadataItem `json:"parquet_files_metadata"`
	Partial              bool                      `json:"partial"`
}

// ConfigInfoContent is the output of config-info
type ConfigInfoContent struct {
	DatasetInfo ConfigDatasetInfo `json:"dataset_info"`
	Partial     bool              `json:"partial"`
}

// DatasetInfoContent is the fan-in of config-info over all configs
type DatasetInfoContent struct {
	DatasetInfo map[string]ConfigDatasetInfo `json:"dataset_info"`
	Pending     []string                     `json:"pending"`
	Failed      []string                     `json:"failed"`
	Partial     bool                         `json:"partial"`
}

// ConfigSizeEntry is the aggregate size row of one config
type ConfigSizeEntry struct {
	Dataset              string `json:"dataset"`
	Config               string `json:"config"`
	NumBytesOriginalFiles int64 `json:"num_bytes_original_files"`
	NumBytesParquetFiles  int64 `json:"num_bytes_parquet_files"`
	NumRows               int64 `json:"num_rows"`
}

// SplitSizeEntry is the size row of one split
type SplitSizeEntry struct {
	Dataset              string `json:"dataset"`
	Config               string `json:"config"`
	Split                string `json:"split"`
	NumBytesParquetFiles int64  `json:"num_bytes_parquet_files"`
	NumRows              int64  `json:"num_rows"`
}

// ConfigSizeContent is the output of config-size
type ConfigSizeContent struct {
	Size struct {
		Config ConfigSizeEntry  `json:"config"`
		Splits []SplitSizeEntry `json:"splits"`
	} `json:"size"`
	Partial bool `json:"partial"`
}

// DatasetSizeEntry is the aggregate size row of the whole dataset
type DatasetSizeEntry struct {
	Dataset              string `json:"dataset"`
	NumBytesOriginalFiles int64 `json:"num_bytes_original_files"`
	NumBytesParquetFiles  int64 `json:"num_bytes_parquet_files"`
	NumRows               int64 `json:"num_rows"`
}

// DatasetSizeContent is the fan-in of config-size over all configs
type DatasetSizeContent struct {
	Size struct {
		Dataset DatasetSizeEntry  `json:"dataset"`
		Configs []ConfigSizeEntry `json:"configs"`
		Splits  []SplitSizeEntry  `json:"splits"`
	} `json:"size"`
	Pending []string `json:"pending"`
	Failed  []string `json:"failed"`
	Partial bool     `json:"partial"`
}

// DatasetSplitNamesContent is the fan-in of the split-names steps
type DatasetSplitNamesContent struct {
	Splits  []FullSplitItem `json:"splits"`
	Pending []string        `json:"pending"`
	Failed  []string        `json:"failed"`
}

// FullSplitItem is one fully qualified split
type FullSplitItem struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}

// FeatureItem describes one column in a first-rows response
type FeatureItem struct {
	FeatureIdx int    `json:"feature_idx"`
	Name       string `json:"name"`
	Type       string `json:"type"`
}

// RowItem is one row in a first-rows response. TruncatedCells lists the
// columns whose values were cut to fit the size budget.
type RowItem struct {
	RowIdx         int      `json:"row_idx"`
	Row            hub.Row  `json:"row"`
	TruncatedCells []string `json:"truncated_cells"`
}

// FirstRowsContent is the output of the first-rows steps
type FirstRowsContent struct {
	Dataset   string        `json:"dataset"`
	Config    string        `json:"config"`
	Split     string        `json:"split"`
	Features  []FeatureItem `json:"features"`
	Rows      []RowItem     `json:"rows"`
	Truncated bool          `json:"truncated"`
}

// IsValidContent reports which capabilities an artifact enables
type IsValidContent struct {
	Viewer  bool `json:"viewer"`
	Preview bool `json:"preview"`
	Search  bool `json:"search"`
}

// DatasetIsValidContent adds fan-in bookkeeping to the validity flags
type DatasetIsValidContent struct {
	IsValidContent
	Pending []string `json:"pending"`
	Failed  []string `json:"failed"`
}

// ImageURLColumnsContent is the output of split-image-url-columns
type ImageURLColumnsContent struct {
	Columns []string `json:"columns"`
}

// URLsCountContent is the shared shape of the opt-in/out URL counts
type URLsCountContent struct {
	URLsColumns         []string `json:"urls_columns"`
	NumOptInURLs        int      `json:"num_opt_in_urls"`
	NumOptOutURLs       int      `json:"num_opt_out_urls"`
	NumURLs             int      `json:"num_urls"`
	NumScannedRows      int      `json:"num_scanned_rows"`
	HasURLsColumns      bool     `json:"has_urls_columns"`
	FullScan            bool     `json:"full_scan"`
}

// StatisticsColumn is the per-column block of descriptive statistics
type StatisticsColumn struct {
	ColumnName string         `json:"column_name"`
	ColumnType string         `json:"column_type"`
	Stats      map[string]any `json:"column_statistics"`
}

// StatisticsContent is the output of split-descriptive-statistics
type StatisticsContent struct {
	NumExamples int64              `json:"num_examples"`
	Statistics  []StatisticsColumn `json:"statistics"`
	Partial     bool               `json:"partial"`
}

// DuckdbIndexContent is the output of split-duckdb-index
type DuckdbIndexContent struct {
	Dataset  string        `json:"dataset"`
	Config   string        `json:"config"`
	Split    string        `json:"split"`
	Filename string        `json:"filename"`
	Size     int64         `json:"size"`
	Features []FeatureItem `json:"features"`
	HasFTS   bool          `json:"has_fts"`
	Partial  bool          `json:"partial"`
}

// HubCacheContent is the compact summary pushed back to the hub
type HubCacheContent struct {
	Viewer  bool  `json:"viewer"`
	Preview bool  `json:"preview"`
	Partial bool  `json:"partial"`
	NumRows int64 `json:"num_rows"`
}
