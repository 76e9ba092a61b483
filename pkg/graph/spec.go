package graph

// StepSpec describes one processing step in the graph specification
type StepSpec struct {
	InputScope               string
	TriggeredBy              []string
	Version                  int
	Difficulty               int
	BonusDifficultyIfBig     int
	ParallelStep             string
	ProvidesConfigNames      bool
	ProvidesSplitNames       bool
	ProvidesConfigParquet    bool
	ProvidesParquetMetadata  bool
	ProvidesConfigInfo       bool
	EnablesPreview           bool
	EnablesViewer            bool
	EnablesSearch            bool
}

// Specification is the declarative definition of the processing graph.
// The step set is closed: it is fixed at process start and never mutated.
// Order matters for trigger lists (preferred kind first).
var Specification = map[string]StepSpec{
	"dataset-config-names": {
		InputScope:          "dataset",
		Version:             1,
		Difficulty:          50,
		ProvidesConfigNames: true,
	},
	"config-split-names-from-streaming": {
		InputScope:         "config",
		TriggeredBy:        []string{"dataset-config-names"},
		Version:            3,
		Difficulty:         60,
		ParallelStep:       "config-split-names-from-info",
		ProvidesSplitNames: true,
	},
	"config-split-names-from-info": {
		InputScope:         "config",
		TriggeredBy:        []string{"config-info"},
		Version:            3,
		Difficulty:         20,
		ParallelStep:       "config-split-names-from-streaming",
		ProvidesSplitNames: true,
	},
	"split-first-rows-from-streaming": {
		InputScope:     "split",
		TriggeredBy:    []string{"config-split-names-from-streaming", "config-split-names-from-info"},
		Version:        3,
		Difficulty:     70,
		ParallelStep:   "split-first-rows-from-parquet",
		EnablesPreview: true,
	},
	"split-first-rows-from-parquet": {
		InputScope:     "split",
		TriggeredBy:    []string{"config-parquet-metadata"},
		Version:        2,
		Difficulty:     40,
		ParallelStep:   "split-first-rows-from-streaming",
		EnablesPreview: true,
	},
	"config-parquet-and-info": {
		InputScope:  "config",
		TriggeredBy: []string{"dataset-config-names"},
		Version:     2,
		Difficulty:  70,
	},
	"config-parquet": {
		InputScope:            "config",
		TriggeredBy:           []string{"config-parquet-and-info"},
		Version:               4,
		Difficulty:            20,
		ProvidesConfigParquet: true,
	},
	"config-parquet-metadata": {
		InputScope:              "config",
		TriggeredBy:             []string{"config-parquet"},
		Version:                 1,
		Difficulty:              50,
		ProvidesParquetMetadata: true,
	},
	"dataset-parquet": {
		InputScope:  "dataset",
		TriggeredBy: []string{"config-parquet", "dataset-config-names"},
		Version:     2,
		Difficulty:  20,
	},
	"config-info": {
		InputScope:         "config",
		TriggeredBy:        []string{"config-parquet-and-info"},
		Version:            2,
		Difficulty:         20,
		ProvidesConfigInfo: true,
	},
	"dataset-info": {
		InputScope:  "dataset",
		TriggeredBy: []string{"config-info", "dataset-config-names"},
		Version:     2,
		Difficulty:  20,
	},
	"config-size": {
		InputScope:    "config",
		TriggeredBy:   []string{"config-parquet-and-info"},
		Version:       2,
		Difficulty:    20,
		EnablesViewer: true,
	},
	"dataset-size": {
		InputScope:  "dataset",
		TriggeredBy: []string{"config-size", "dataset-config-names"},
		Version:     2,
		Difficulty:  20,
	},
	"dataset-split-names": {
		InputScope:  "dataset",
		TriggeredBy: []string{"config-split-names-from-info", "config-split-names-from-streaming", "dataset-config-names"},
		Version:     2,
		Difficulty:  20,
	},
	"split-descriptive-statistics": {
		InputScope:  "split",
		TriggeredBy: []string{"config-split-names-from-info", "config-split-names-from-streaming"},
		Version:     1,
		Difficulty:  70,
	},
	"split-is-valid": {
		InputScope: "split",
		// Triggered by all the steps that enable preview/viewer/search.
		TriggeredBy: []string{"config-size", "split-first-rows-from-parquet", "split-first-rows-from-streaming", "split-duckdb-index"},
		Version:     1,
		Difficulty:  20,
	},
	"config-is-valid": {
		InputScope:  "config",
		TriggeredBy: []string{"config-split-names-from-streaming", "config-split-names-from-info", "split-is-valid"},
		Version:     1,
		Difficulty:  20,
	},
	"dataset-is-valid": {
		InputScope:  "dataset",
		TriggeredBy: []string{"dataset-config-names", "config-is-valid"},
		Version:     2,
		Difficulty:  20,
	},
	"split-image-url-columns": {
		InputScope:  "split",
		TriggeredBy: []string{"split-first-rows-from-streaming", "split-first-rows-from-parquet"},
		Version:     1,
		Difficulty:  40,
	},
	"split-opt-in-out-urls-scan": {
		InputScope:  "split",
		TriggeredBy: []string{"split-image-url-columns"},
		Version:     1,
		Difficulty:  70,
	},
	"split-opt-in-out-urls-count": {
		InputScope:  "split",
		TriggeredBy: []string{"split-opt-in-out-urls-scan"},
		Version:     1,
		Difficulty:  20,
	},
	"config-opt-in-out-urls-count": {
		InputScope:  "config",
		TriggeredBy: []string{"config-split-names-from-streaming", "config-split-names-from-info", "split-opt-in-out-urls-count"},
		Version:     1,
		Difficulty:  20,
	},
	"dataset-opt-in-out-urls-count": {
		InputScope:  "dataset",
		TriggeredBy: []string{"dataset-config-names", "config-opt-in-out-urls-count"},
		Version:     1,
		Difficulty:  20,
	},
	"split-duckdb-index": {
		InputScope:           "split",
		TriggeredBy:          []string{"config-split-names-from-info", "config-split-names-from-streaming", "config-parquet-and-info"},
		Version:              1,
		Difficulty:           70,
		BonusDifficultyIfBig: 20,
		EnablesSearch:        true,
	},
	"dataset-hub-cache": {
		InputScope:  "dataset",
		TriggeredBy: []string{"dataset-is-valid", "dataset-size"},
		Version:     1,
		Difficulty:  20,
	},
}

// MinBytesForBonusDifficulty is the dataset size above which steps with a
// bonus difficulty get it added (3 GB).
const MinBytesForBonusDifficulty int64 = 3_000_000_000
