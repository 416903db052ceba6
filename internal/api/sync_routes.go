package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleSyncTrigger starts a sync run in the background and returns at once.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	if s.sync.Running() {
		writeError(w, http.StatusConflict, "sync run already in progress")
		return
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		if _, err := s.trigger(s.ctx); err != nil {
			s.logger.Error("triggered sync failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSyncLast(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	last := s.sync.Last()
	if last == nil {
		writeError(w, http.StatusNotFound, "no sync run yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}
