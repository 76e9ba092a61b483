package hub

import (
	"context"
)

// Row is one raw row of a split, as served by the hub
type Row map[string]any

// Feature describes one column of a split
type Feature struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DatasetInfo is the subset of hub metadata the steps consume
type DatasetInfo struct {
	Revision  string `json:"revision"`
	Private   bool   `json:"private"`
	Gated     bool   `json:"gated"`
	Disabled  bool   `json:"disabled"`
	SizeBytes int64  `json:"size_bytes"`
}

// SplitStats holds the row and byte counts of one split
type SplitStats struct {
	NumRows  int64 `json:"num_rows"`
	NumBytes int64 `json:"num_bytes"`
}

// Client is the hub-side collaborator: revision lookup, gate check and
// the raw reads the step computations are built on. Implementations
// must be safe for concurrent use.
type Client interface {
	// Revision returns the current commit hash of the dataset. Errors
	// carry taxonomy codes: DatasetNotFoundError for unknown datasets,
	// ClientConnectionError for transport failures, NoGitRevisionError
	// when the hub reports no commit.
	Revision(ctx context.Context, dataset string) (string, error)

	// IsSupported reports whether the dataset can be processed at all
	// (exists, public or accessible, not disabled)
	IsSupported(ctx context.Context, dataset string) (bool, error)

	// Info returns dataset metadata
	Info(ctx context.Context, dataset string) (*DatasetInfo, error)

	// ConfigNames lists the dataset's configurations
	ConfigNames(ctx context.Context, dataset string) ([]string, error)

	// SplitNames lists the splits of one configuration
	SplitNames(ctx context.Context, dataset, config string) ([]string, error)

	// FirstRows returns the features and up to maxRows rows of a split
	FirstRows(ctx context.Context, dataset, config, split string, maxRows int) ([]Feature, []Row, error)

	// SplitStats returns the row and byte counts of one split
	SplitStats(ctx context.Context, dataset, config, split string) (*SplitStats, error)
}
