package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/burrowhq/burrow/pkg/steps"
	"github.com/burrowhq/burrow/pkg/types"
)

// Kind preference lists per endpoint. Order matters: BestCache picks the
// first kind with a successful entry.
var (
	splitNamesKinds = []string{"config-split-names-from-info", "config-split-names-from-streaming"}
	firstRowsKinds  = []string{"split-first-rows-from-parquet", "split-first-rows-from-streaming"}
)

// RowsMaxLength caps the page size of the rows, search and filter
// endpoints.
const RowsMaxLength = 100

func (s *Server) handleIsValid(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kind := "dataset-is-valid"
	switch {
	case split != "":
		kind = "split-is-valid"
	case config != "":
		kind = "config-is-valid"
	}
	s.serveArtifact(w, r, []string{kind}, dataset, config, split)
}

func (s *Server) handleSplits(w http.ResponseWriter, r *http.Request) {
	dataset, config, _, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if config != "" {
		s.serveArtifact(w, r, splitNamesKinds, dataset, config, "")
		return
	}
	s.serveArtifact(w, r, []string{"dataset-split-names"}, dataset, "", "")
}

func (s *Server) handleFirstRows(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := splitParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveArtifact(w, r, firstRowsKinds, dataset, config, split)
}

func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	dataset, config, _, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if config != "" {
		s.serveArtifact(w, r, []string{"config-size"}, dataset, config, "")
		return
	}
	s.serveArtifact(w, r, []string{"dataset-size"}, dataset, "", "")
}

func (s *Server) handleParquet(w http.ResponseWriter, r *http.Request) {
	dataset, config, _, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if config != "" {
		s.serveArtifact(w, r, []string{"config-parquet"}, dataset, config, "")
		return
	}
	s.serveArtifact(w, r, []string{"dataset-parquet"}, dataset, "", "")
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	dataset, config, _, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if config != "" {
		s.serveArtifact(w, r, []string{"config-info"}, dataset, config, "")
		return
	}
	s.serveArtifact(w, r, []string{"dataset-info"}, dataset, "", "")
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := splitParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveArtifact(w, r, []string{"split-descriptive-statistics"}, dataset, config, split)
}

func (s *Server) handleURLsCount(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := datasetParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	kind := "dataset-opt-in-out-urls-count"
	switch {
	case split != "":
		kind = "split-opt-in-out-urls-count"
	case config != "":
		kind = "config-opt-in-out-urls-count"
	}
	s.serveArtifact(w, r, []string{kind}, dataset, config, split)
}

// pagedRowsResponse is the shape of the rows, search and filter
// endpoints: a window over the cached first rows.
type pagedRowsResponse struct {
	Features       []steps.FeatureItem `json:"features"`
	Rows           []steps.RowItem     `json:"rows"`
	NumRowsTotal   int                 `json:"num_rows_total"`
	NumRowsPerPage int                 `json:"num_rows_per_page"`
	Truncated      bool                `json:"truncated"`
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := splitParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	content, revision, err := s.fetchFirstRows(w, r, dataset, config, split)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if content == nil {
		return // error entry already written
	}

	s.writePage(w, revision, content, pageRows(content.Rows, offset, length))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := splitParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, types.NewParameterMissingError("parameter 'query' is required"))
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Search is only offered where an FTS index exists
	result, err := s.orch.BestResponse(r.Context(), []string{"split-duckdb-index"}, dataset, config, split)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !result.Entry.IsSuccess() {
		s.writeErrorEntry(w, result.Entry)
		return
	}
	var index steps.DuckdbIndexContent
	if err := json.Unmarshal(result.Entry.Content, &index); err != nil {
		s.writeError(w, err)
		return
	}
	if !index.HasFTS {
		s.writeError(w, types.NewResponseNotFoundError(fmt.Sprintf(
			"full-text search is not available for split %s of %s/%s", split, dataset, config)))
		return
	}

	content, revision, err := s.fetchFirstRows(w, r, dataset, config, split)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if content == nil {
		return
	}

	matched := make([]steps.RowItem, 0)
	needle := strings.ToLower(query)
	for _, item := range content.Rows {
		if rowMatches(item, needle) {
			matched = append(matched, item)
		}
	}
	s.writePage(w, revision, content, pageRows(matched, offset, length))
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	dataset, config, split, err := splitParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	where := r.URL.Query().Get("where")
	if where == "" {
		s.writeError(w, types.NewParameterMissingError("parameter 'where' is required"))
		return
	}
	column, value, ok := strings.Cut(where, "=")
	if !ok || column == "" {
		s.writeError(w, types.NewInvalidParameterError(
			"parameter 'where' must have the form column=value", nil))
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	content, revision, err := s.fetchFirstRows(w, r, dataset, config, split)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if content == nil {
		return
	}

	matched := make([]steps.RowItem, 0)
	for _, item := range content.Rows {
		cell, present := item.Row[column]
		if present && fmt.Sprint(cell) == value {
			matched = append(matched, item)
		}
	}
	s.writePage(w, revision, content, pageRows(matched, offset, length))
}

// fetchFirstRows resolves and decodes the first-rows artifact. A nil
// content with nil error means an error entry was already written.
func (s *Server) fetchFirstRows(w http.ResponseWriter, r *http.Request, dataset, config, split string) (*steps.FirstRowsContent, string, error) {
	result, err := s.orch.BestResponse(r.Context(), firstRowsKinds, dataset, config, split)
	if err != nil {
		return nil, "", err
	}
	if !result.Entry.IsSuccess() {
		s.writeErrorEntry(w, result.Entry)
		return nil, "", nil
	}
	var content steps.FirstRowsContent
	if err := json.Unmarshal(result.Entry.Content, &content); err != nil {
		return nil, "", err
	}
	return &content, result.Entry.DatasetRevision, nil
}

func (s *Server) writePage(w http.ResponseWriter, revision string, content *steps.FirstRowsContent, window []steps.RowItem) {
	w.Header().Set("X-Revision", revision)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.cfg.MaxAgeShort))
	writeJSON(w, http.StatusOK, pagedRowsResponse{
		Features:       content.Features,
		Rows:           window,
		NumRowsTotal:   len(content.Rows),
		NumRowsPerPage: RowsMaxLength,
		Truncated:      content.Truncated,
	})
}

func pageRows(rows []steps.RowItem, offset, length int) []steps.RowItem {
	if offset >= len(rows) {
		return []steps.RowItem{}
	}
	end := offset + length
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func rowMatches(item steps.RowItem, needle string) bool {
	for _, cell := range item.Row {
		text, ok := cell.(string)
		if ok && strings.Contains(strings.ToLower(text), needle) {
			return true
		}
	}
	return false
}

// datasetParams requires dataset; config and split stay optional
func datasetParams(r *http.Request) (dataset, config, split string, err error) {
	q := r.URL.Query()
	dataset = q.Get("dataset")
	if dataset == "" {
		return "", "", "", types.NewParameterMissingError("parameter 'dataset' is required")
	}
	config = q.Get("config")
	split = q.Get("split")
	if split != "" && config == "" {
		return "", "", "", types.NewParameterMissingError("parameter 'config' is required when 'split' is set")
	}
	return dataset, config, split, nil
}

// splitParams requires all three of dataset, config and split
func splitParams(r *http.Request) (dataset, config, split string, err error) {
	dataset, config, split, err = datasetParams(r)
	if err != nil {
		return
	}
	if config == "" {
		return "", "", "", types.NewParameterMissingError("parameter 'config' is required")
	}
	if split == "" {
		return "", "", "", types.NewParameterMissingError("parameter 'split' is required")
	}
	return dataset, config, split, nil
}

// pageParams validates offset (>= 0, default 0) and length
// (1..RowsMaxLength, default RowsMaxLength)
func pageParams(r *http.Request) (offset, length int, err error) {
	q := r.URL.Query()
	offset, length = 0, RowsMaxLength
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, types.NewInvalidParameterError(
				"parameter 'offset' must be a non-negative integer", err)
		}
	}
	if raw := q.Get("length"); raw != "" {
		length, err = strconv.Atoi(raw)
		if err != nil || length < 1 || length > RowsMaxLength {
			return 0, 0, types.NewInvalidParameterError(fmt.Sprintf(
				"parameter 'length' must be an integer between 1 and %d", RowsMaxLength), err)
		}
	}
	return offset, length, nil
}
