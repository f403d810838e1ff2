package api

import (
	"encoding/json"
	"net/http"
)

type workersRequest struct {
	Add    int `json:"add"`
	Remove int `json:"remove"`
}

type delayRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) pausePool(w http.ResponseWriter, _ *http.Request) {
	s.pool.Pause()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) resumePool(w http.ResponseWriter, _ *http.Request) {
	s.pool.Resume()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) stopPool(w http.ResponseWriter, _ *http.Request) {
	s.pool.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// adjustWorkers scales the pool. Exactly one of "add" or "remove" must be a
// positive count; the response reports how many workers were affected.
func (s *Server) adjustWorkers(w http.ResponseWriter, r *http.Request) {
	var req workersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch {
	case req.Add > 0 && req.Remove > 0:
		s.writeError(w, http.StatusBadRequest, "specify either add or remove, not both")
	case req.Add > 0:
		started := s.pool.ScaleUp(req.Add)
		s.writeJSON(w, http.StatusOK, map[string]int{"added": started})
	case req.Remove > 0:
		removed := s.pool.ScaleDown(req.Remove)
		s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	default:
		s.writeError(w, http.StatusBadRequest, "add or remove must be a positive count")
	}
}

func (s *Server) setDelay(w http.ResponseWriter, r *http.Request) {
	var req delayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	applied := s.pool.SetDelay(req.Seconds)
	s.writeJSON(w, http.StatusOK, map[string]float64{"delay_seconds": applied})
}

func (s *Server) getPoolStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pool.Snapshot())
}
