package api

import (
	"net/http"
	"strconv"

	"github.com/burrowhq/burrow/pkg/types"
)

// Admin endpoints expose store introspection and a manual refresh
// trigger. They are meant to sit behind the deployment's own access
// control, not to be public.

func (s *Server) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountJobsByStatus()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleAdminCache(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountCacheByKindStatus()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make(map[string]map[string]int, len(counts))
	for kind, byStatus := range counts {
		out[kind] = make(map[string]int, len(byStatus))
		for status, n := range byStatus {
			out[kind][strconv.Itoa(status)] = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cache": out})
}

func (s *Server) handleAdminDatasetState(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		s.writeError(w, types.NewParameterMissingError("parameter 'dataset' is required"))
		return
	}
	headers, err := s.store.ListCacheHeadersByDataset(dataset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset": dataset, "artifacts": headers})
}

func (s *Server) handleAdminBackfill(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		s.writeError(w, types.NewParameterMissingError("parameter 'dataset' is required"))
		return
	}
	created, err := s.orch.ForceRefresh(r.Context(), dataset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset": dataset, "jobs_created": created})
}
