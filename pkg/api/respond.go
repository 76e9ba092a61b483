package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/burrowhq/burrow/pkg/types"
)

// cachedResponse is the memoized form of a complete successful entry
type cachedResponse struct {
	content  []byte
	revision string
}

// serveArtifact resolves the best cache entry for the kinds and writes
// it. Complete successes are memoized for the configured TTL so hot
// datasets do not hit the store on every request.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, kinds []string, dataset, config, split string) {
	memoKey := strings.Join(kinds, ",") + "|" + dataset + "|" + config + "|" + split
	if hit, ok := s.responses.Get(memoKey); ok {
		cached := hit.(cachedResponse)
		s.writeSuccess(w, cached.content, cached.revision, 1.0)
		return
	}

	result, err := s.orch.BestResponse(r.Context(), kinds, dataset, config, split)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entry := result.Entry
	if !entry.IsSuccess() {
		s.writeErrorEntry(w, entry)
		return
	}
	if entry.Progress >= 1.0 {
		s.responses.SetDefault(memoKey, cachedResponse{content: entry.Content, revision: entry.DatasetRevision})
	}
	s.writeSuccess(w, entry.Content, entry.DatasetRevision, entry.Progress)
}

func (s *Server) writeSuccess(w http.ResponseWriter, content []byte, revision string, progress float64) {
	maxAge := s.cfg.MaxAgeLong
	if progress < 1.0 {
		maxAge = s.cfg.MaxAgeShort
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("X-Revision", revision)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// writeErrorEntry surfaces a cached error entry with its original
// status and code
func (s *Server) writeErrorEntry(w http.ResponseWriter, entry *types.CacheEntry) {
	status := entry.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if entry.ErrorCode != "" {
		w.Header().Set("X-Error-Code", entry.ErrorCode)
	}
	if entry.DatasetRevision != "" {
		w.Header().Set("X-Revision", entry.DatasetRevision)
	}
	w.WriteHeader(status)
	if len(entry.Details) > 0 {
		_, _ = w.Write(entry.Details)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": entry.ErrorCode})
}

// writeError maps any error into the taxonomy envelope
func (s *Server) writeError(w http.ResponseWriter, err error) {
	coded := types.AsCoded(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Error-Code", string(coded.Code))
	w.WriteHeader(coded.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": coded.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
