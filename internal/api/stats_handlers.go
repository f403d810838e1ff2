package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/clmercier/urlcollector/internal/crawler"
)

const (
	defaultPageLimit = 200
	maxPageLimit     = 2000
	defaultMaxDepth  = 8
	defaultDomains   = 8
	defaultHours     = 24
	maxHours         = 168
)

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reader.StatusCounts(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	filter := crawler.ListFilter{
		Limit:  clampInt(queryInt(r, "limit", defaultPageLimit), 1, maxPageLimit),
		Offset: max(queryInt(r, "offset", 0), 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := crawler.Status(raw)
		if !status.Valid() {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}

	records, err := s.reader.ListURLs(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"urls":   records,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) getDepthHistogram(w http.ResponseWriter, r *http.Request) {
	maxDepth := clampInt(queryInt(r, "max_depth", defaultMaxDepth), 0, 100)
	buckets, err := s.reader.DepthHistogram(r.Context(), maxDepth)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (s *Server) getStatusBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.reader.StatusClassHistogram(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (s *Server) getTopDomains(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultDomains), 1, 100)
	buckets, err := s.reader.TopDomains(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domains": buckets})
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	hours := clampInt(queryInt(r, "hours", defaultHours), 1, maxHours)
	series, err := s.reader.Activity(r.Context(), hours)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"activity": series})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.logger.Error("store query failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "store query failed")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
