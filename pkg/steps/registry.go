package steps

import (
	"fmt"
	"sort"

	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/storage"
)

// Deps bundles the collaborators the runners share
type Deps struct {
	Store storage.Store
	Hub   hub.Client

	// ParquetBaseURL is the public base under which converted parquet
	// shards are exposed
	ParquetBaseURL string

	// RowsMaxNumber caps how many rows a first-rows response may hold
	RowsMaxNumber int
	// RowsMinNumber is the floor the row truncation never goes below
	RowsMinNumber int
	// RowsMaxBytes is the serialized size budget of a first-rows response
	RowsMaxBytes int
	// CellMinBytes is the per-cell floor when truncating row contents
	CellMinBytes int
}

// stepRunner carries the graph-declared identity of a runner. Kind,
// version and parallel variant come from the graph, never from the
// runner itself, so the two cannot drift apart.
type stepRunner struct {
	BaseRunner
	step *graph.Step
	deps *Deps
}

func (s *stepRunner) Kind() string { return s.step.Name }

func (s *stepRunner) Version() int { return s.step.Version }

func (s *stepRunner) ParallelKind() string { return s.step.ParallelStep }

// Registry holds one runner per step kind
type Registry struct {
	runners map[string]Runner
}

// NewRegistry builds the runner set for every step of the graph. It is
// an error for a graph step to have no runner: the step set is closed,
// and an unrunnable step would deadlock its subtree.
func NewRegistry(g *graph.Graph, deps Deps) (*Registry, error) {
	factories := map[string]func(base stepRunner) Runner{
		"dataset-config-names":              func(b stepRunner) Runner { return &configNamesRunner{b} },
		"config-split-names-from-streaming": func(b stepRunner) Runner { return &splitNamesFromStreamingRunner{b} },
		"config-split-names-from-info":      func(b stepRunner) Runner { return &splitNamesFromInfoRunner{b} },
		"config-parquet-and-info":           func(b stepRunner) Runner { return &parquetAndInfoRunner{b} },
		"config-parquet":                    func(b stepRunner) Runner { return &configParquetRunner{b} },
		"config-parquet-metadata":           func(b stepRunner) Runner { return &parquetMetadataRunner{b} },
		"config-info":                       func(b stepRunner) Runner { return &configInfoRunner{b} },
		"config-size":                       func(b stepRunner) Runner { return &configSizeRunner{b} },
		"config-is-valid":                   func(b stepRunner) Runner { return &configIsValidRunner{b} },
		"config-opt-in-out-urls-count":      func(b stepRunner) Runner { return &configURLsCountRunner{b} },
		"dataset-split-names":               func(b stepRunner) Runner { return &datasetSplitNamesRunner{b} },
		"dataset-parquet":                   func(b stepRunner) Runner { return &datasetParquetRunner{b} },
		"dataset-info":                      func(b stepRunner) Runner { return &datasetInfoRunner{b} },
		"dataset-size":                      func(b stepRunner) Runner { return &datasetSizeRunner{b} },
		"dataset-is-valid":                  func(b stepRunner) Runner { return &datasetIsValidRunner{b} },
		"dataset-opt-in-out-urls-count":     func(b stepRunner) Runner { return &datasetURLsCountRunner{b} },
		"dataset-hub-cache":                 func(b stepRunner) Runner { return &hubCacheRunner{b} },
		"split-first-rows-from-streaming":   func(b stepRunner) Runner { return &firstRowsFromStreamingRunner{b} },
		"split-first-rows-from-parquet":     func(b stepRunner) Runner { return &firstRowsFromParquetRunner{b} },
		"split-image-url-columns":           func(b stepRunner) Runner { return &imageURLColumnsRunner{b} },
		"split-opt-in-out-urls-scan":        func(b stepRunner) Runner { return &urlsScanRunner{b} },
		"split-opt-in-out-urls-count":       func(b stepRunner) Runner { return &splitURLsCountRunner{b} },
		"split-descriptive-statistics":      func(b stepRunner) Runner { return &statisticsRunner{b} },
		"split-duckdb-index":                func(b stepRunner) Runner { return &duckdbIndexRunner{b} },
		"split-is-valid":                    func(b stepRunner) Runner { return &splitIsValidRunner{b} },
	}

	runners := make(map[string]Runner, len(factories))
	for _, step := range g.Steps() {
		factory, ok := factories[step.Name]
		if !ok {
			return nil, fmt.Errorf("no runner registered for step %s", step.Name)
		}
		runners[step.Name] = factory(stepRunner{step: step, deps: &deps})
	}
	return &Registry{runners: runners}, nil
}

// Get returns the runner for a kind
func (r *Registry) Get(kind string) (Runner, error) {
	runner, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown step kind %s", kind)
	}
	return runner, nil
}

// Kinds returns every registered kind, sorted
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.runners))
	for kind := range r.runners {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
