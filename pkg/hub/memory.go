package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/burrowhq/burrow/pkg/types"
)

// MemoryDataset is one dataset held by the in-memory hub
type MemoryDataset struct {
	Revision  string
	Supported bool
	SizeBytes int64
	Configs   map[string][]string // config -> splits
	Features  []Feature
	Rows      []Row
}

// Memory is an in-memory hub used in tests and local development
type Memory struct {
	mu       sync.RWMutex
	datasets map[string]*MemoryDataset
}

// NewMemory creates an empty in-memory hub
func NewMemory() *Memory {
	return &Memory{datasets: make(map[string]*MemoryDataset)}
}

// Put registers or replaces a dataset
func (m *Memory) Put(name string, ds *MemoryDataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[name] = ds
}

// Delete removes a dataset
func (m *Memory) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.datasets, name)
}

// SetRevision moves a dataset to a new revision
func (m *Memory) SetRevision(name, revision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds, ok := m.datasets[name]; ok {
		ds.Revision = revision
	}
}

func (m *Memory) get(name string) (*MemoryDataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[name]
	if !ok {
		return nil, types.NewDatasetNotFoundError(fmt.Sprintf("dataset %s not found", name), nil)
	}
	return ds, nil
}

// Revision returns the dataset's current revision
func (m *Memory) Revision(ctx context.Context, dataset string) (string, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return "", err
	}
	if ds.Revision == "" {
		return "", types.NewNoGitRevisionError(fmt.Sprintf("no git revision for dataset %s", dataset))
	}
	return ds.Revision, nil
}

// IsSupported reports whether the dataset can be processed
func (m *Memory) IsSupported(ctx context.Context, dataset string) (bool, error) {
	ds, err := m.get(dataset)
	if err != nil {
		if types.AsCoded(err).Code == types.CodeDatasetNotFound {
			return false, nil
		}
		return false, err
	}
	return ds.Supported, nil
}

// Info returns dataset metadata
func (m *Memory) Info(ctx context.Context, dataset string) (*DatasetInfo, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return nil, err
	}
	return &DatasetInfo{Revision: ds.Revision, SizeBytes: ds.SizeBytes}, nil
}

// ConfigNames lists the dataset's configurations
func (m *Memory) ConfigNames(ctx context.Context, dataset string) ([]string, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ds.Configs))
	for name := range ds.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SplitNames lists the splits of one configuration
func (m *Memory) SplitNames(ctx context.Context, dataset, config string) ([]string, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return nil, err
	}
	splits, ok := ds.Configs[config]
	if !ok {
		return nil, types.NewCodedError(types.CodeConfigNotFound, 404, fmt.Sprintf("config %s not found", config), nil)
	}
	return append([]string(nil), splits...), nil
}

// FirstRows returns the features and up to maxRows rows of a split
func (m *Memory) FirstRows(ctx context.Context, dataset, config, split string, maxRows int) ([]Feature, []Row, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return nil, nil, err
	}
	rows := ds.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return ds.Features, rows, nil
}

// SplitStats returns the row and byte counts of one split
func (m *Memory) SplitStats(ctx context.Context, dataset, config, split string) (*SplitStats, error) {
	ds, err := m.get(dataset)
	if err != nil {
		return nil, err
	}
	if _, ok := ds.Configs[config]; !ok {
		return nil, types.NewCodedError(types.CodeConfigNotFound, 404, fmt.Sprintf("config %s not found", config), nil)
	}
	stats := &SplitStats{NumRows: int64(len(ds.Rows)), NumBytes: ds.SizeBytes}
	if n := int64(len(ds.Configs[config])); n > 0 {
		stats.NumBytes = ds.SizeBytes / n
	}
	return stats, nil
}
