package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/burrowhq/burrow/pkg/hub"
)

// computeFirstRows fetches a split's head from the hub and folds it into
// the truncated first-rows content
func computeFirstRows(ctx context.Context, deps *Deps, params JobParams) (*FirstRowsContent, error) {
	// One extra row tells us whether the split extends past the cap
	features, rows, err := deps.Hub.FirstRows(ctx, params.Key.Dataset, params.Key.Config, params.Key.Split, deps.RowsMaxNumber+1)
	if err != nil {
		return nil, err
	}

	overflow := false
	if deps.RowsMaxNumber > 0 && len(rows) > deps.RowsMaxNumber {
		rows = rows[:deps.RowsMaxNumber]
		overflow = true
	}

	content := &FirstRowsContent{
		Dataset:  params.Key.Dataset,
		Config:   params.Key.Config,
		Split:    params.Key.Split,
		Features: make([]FeatureItem, 0, len(features)),
		Rows:     buildRowItems(rows),
	}
	for i, feature := range features {
		content.Features = append(content.Features, FeatureItem{
			FeatureIdx: i,
			Name:       feature.Name,
			Type:       feature.Type,
		})
	}

	var cellsTruncated bool
	content.Rows, cellsTruncated = truncateRowItems(content.Rows, deps.RowsMaxBytes, deps.RowsMinNumber, deps.CellMinBytes)
	content.Truncated = overflow || cellsTruncated
	return content, nil
}

// firstRowsFromStreamingRunner computes split-first-rows-from-streaming
// straight off the hub's streaming reader
type firstRowsFromStreamingRunner struct{ stepRunner }

func (r *firstRowsFromStreamingRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	content, err := computeFirstRows(ctx, r.deps, params)
	if err != nil {
		return nil, err
	}
	return marshalResult(content, 1.0)
}

// firstRowsFromParquetRunner computes split-first-rows-from-parquet. It
// requires the parquet metadata to exist: the cheap parquet read path is
// only available once the conversion has landed.
type firstRowsFromParquetRunner struct{ stepRunner }

func (r *firstRowsFromParquetRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	if _, err := readPredecessor(r.deps.Store, []string{"config-parquet-metadata"}, params.Key.Dataset, params.Key.Config, ""); err != nil {
		return nil, err
	}
	content, err := computeFirstRows(ctx, r.deps, params)
	if err != nil {
		return nil, err
	}
	return marshalResult(content, 1.0)
}

// imageURLExtensions are the suffixes a sampled value must carry to
// count as an image URL
var imageURLExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// isImageURL reports whether a sampled cell value looks like an image URL
func isImageURL(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	if idx := strings.IndexAny(s, "?#"); idx != -1 {
		s = s[:idx]
	}
	for _, ext := range imageURLExtensions {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// imageURLColumnsRunner computes split-image-url-columns: the string
// columns whose sampled values are all image URLs
type imageURLColumnsRunner struct{ stepRunner }

func (r *imageURLColumnsRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, firstRowsKinds, params.Key.Dataset, params.Key.Config, params.Key.Split)
	if err != nil {
		return nil, err
	}
	var firstRows FirstRowsContent
	if err := decodeContent(entry, &firstRows); err != nil {
		return nil, err
	}

	columns := []string{}
	for _, feature := range firstRows.Features {
		if feature.Type != "string" {
			continue
		}
		seen, allImages := 0, true
		for _, item := range firstRows.Rows {
			value, ok := item.Row[feature.Name]
			if !ok || value == nil {
				continue
			}
			seen++
			if !isImageURL(value) {
				allImages = false
				break
			}
		}
		if seen > 0 && allImages {
			columns = append(columns, feature.Name)
		}
	}
	return marshalResult(&ImageURLColumnsContent{Columns: columns}, 1.0)
}

// urlsScanRunner computes split-opt-in-out-urls-scan: it counts the URLs
// of the detected columns over the sampled rows
type urlsScanRunner struct{ stepRunner }

func (r *urlsScanRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	columnsEntry, err := readPredecessor(r.deps.Store, []string{"split-image-url-columns"}, params.Key.Dataset, params.Key.Config, params.Key.Split)
	if err != nil {
		return nil, err
	}
	var columns ImageURLColumnsContent
	if err := decodeContent(columnsEntry, &columns); err != nil {
		return nil, err
	}

	content := URLsCountContent{URLsColumns: columns.Columns, FullScan: true}
	if len(columns.Columns) == 0 {
		return marshalResult(&content, 1.0)
	}
	content.HasURLsColumns = true

	rowsEntry, err := readPredecessor(r.deps.Store, firstRowsKinds, params.Key.Dataset, params.Key.Config, params.Key.Split)
	if err != nil {
		return nil, err
	}
	var firstRows FirstRowsContent
	if err := decodeContent(rowsEntry, &firstRows); err != nil {
		return nil, err
	}

	content.NumScannedRows = len(firstRows.Rows)
	content.FullScan = !firstRows.Truncated
	for _, item := range firstRows.Rows {
		for _, column := range columns.Columns {
			if value, ok := item.Row[column]; ok && value != nil {
				content.NumURLs++
			}
		}
	}
	return marshalResult(&content, 1.0)
}

// splitURLsCountRunner computes split-opt-in-out-urls-count, the compact
// counters extracted from the scan
type splitURLsCountRunner struct{ stepRunner }

func (r *splitURLsCountRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"split-opt-in-out-urls-scan"}, params.Key.Dataset, params.Key.Config, params.Key.Split)
	if err != nil {
		return nil, err
	}
	var scan URLsCountContent
	if err := decodeContent(entry, &scan); err != nil {
		return nil, err
	}
	return marshalResult(&scan, 1.0)
}

// statisticsRunner computes split-descriptive-statistics over a sampled
// head of the split. Statistics over a sample are marked partial when
// the split holds more rows than the sample.
type statisticsRunner struct{ stepRunner }

func (r *statisticsRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	dataset, config, split := params.Key.Dataset, params.Key.Config, params.Key.Split
	stats, err := r.deps.Hub.SplitStats(ctx, dataset, config, split)
	if err != nil {
		return nil, err
	}
	features, rows, err := r.deps.Hub.FirstRows(ctx, dataset, config, split, r.deps.RowsMaxNumber)
	if err != nil {
		return nil, err
	}

	content := StatisticsContent{
		NumExamples: stats.NumRows,
		Statistics:  make([]StatisticsColumn, 0, len(features)),
		Partial:     stats.NumRows > int64(len(rows)),
	}
	for _, feature := range features {
		column := computeColumnStatistics(feature, rows)
		if column != nil {
			content.Statistics = append(content.Statistics, *column)
		}
	}
	return marshalResult(&content, 1.0)
}

// computeColumnStatistics derives the per-column block: min/max/mean for
// numeric columns, distinct counts for strings
func computeColumnStatistics(feature hub.Feature, rows []hub.Row) *StatisticsColumn {
	var numbers []float64
	distinct := map[string]struct{}{}
	nulls := 0
	for _, row := range rows {
		value, ok := row[feature.Name]
		if !ok || value == nil {
			nulls++
			continue
		}
		switch v := value.(type) {
		case float64:
			numbers = append(numbers, v)
		case string:
			distinct[v] = struct{}{}
		}
	}

	switch {
	case len(numbers) > 0:
		sort.Float64s(numbers)
		sum := 0.0
		for _, n := range numbers {
			sum += n
		}
		return &StatisticsColumn{
			ColumnName: feature.Name,
			ColumnType: feature.Type,
			Stats: map[string]any{
				"nan_count": nulls,
				"min":       numbers[0],
				"max":       numbers[len(numbers)-1],
				"mean":      sum / float64(len(numbers)),
			},
		}
	case len(distinct) > 0:
		return &StatisticsColumn{
			ColumnName: feature.Name,
			ColumnType: feature.Type,
			Stats: map[string]any{
				"nan_count": nulls,
				"n_unique":  len(distinct),
			},
		}
	default:
		return nil
	}
}

// duckdbIndexRunner computes split-duckdb-index: the descriptor of the
// search index built over the split's parquet shards
type duckdbIndexRunner struct{ stepRunner }

func (r *duckdbIndexRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	entry, err := readPredecessor(r.deps.Store, []string{"config-parquet-and-info"}, params.Key.Dataset, params.Key.Config, "")
	if err != nil {
		return nil, err
	}
	var full ConfigParquetAndInfoContent
	if err := decodeContent(entry, &full); err != nil {
		return nil, err
	}

	var size int64
	for _, file := range full.ParquetFiles {
		if file.Split == params.Key.Split {
			size += file.Size
		}
	}

	features, _, err := r.deps.Hub.FirstRows(ctx, params.Key.Dataset, params.Key.Config, params.Key.Split, 1)
	if err != nil {
		return nil, err
	}
	content := DuckdbIndexContent{
		Dataset:  params.Key.Dataset,
		Config:   params.Key.Config,
		Split:    params.Key.Split,
		Filename: "index.duckdb",
		Size:     size,
		Features: make([]FeatureItem, 0, len(features)),
		Partial:  full.Partial,
	}
	for i, feature := range features {
		content.Features = append(content.Features, FeatureItem{FeatureIdx: i, Name: feature.Name, Type: feature.Type})
		if feature.Type == "string" {
			content.HasFTS = true
		}
	}
	return marshalResult(&content, 1.0)
}

// splitIsValidRunner computes split-is-valid from whichever capability
// artifacts exist. Missing artifacts simply leave their flag false;
// validity converges as the subtree fills in.
type splitIsValidRunner struct{ stepRunner }

func (r *splitIsValidRunner) Compute(ctx context.Context, params JobParams) (*Result, error) {
	dataset, config, split := params.Key.Dataset, params.Key.Config, params.Key.Split
	var content IsValidContent

	if entry, err := r.deps.Store.BestCache([]string{"config-size"}, dataset, config, ""); err == nil && entry.IsSuccess() {
		content.Viewer = true
	}
	if entry, err := r.deps.Store.BestCache(firstRowsKinds, dataset, config, split); err == nil && entry.IsSuccess() {
		content.Preview = true
	}
	if entry, err := r.deps.Store.BestCache([]string{"split-duckdb-index"}, dataset, config, split); err == nil && entry.IsSuccess() {
		var index DuckdbIndexContent
		if err := decodeContent(entry, &index); err == nil {
			content.Search = index.HasFTS
		}
	}
	return marshalResult(&content, 1.0)
}
