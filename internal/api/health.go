package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database string `json:"database"`
	Sync     string `json:"sync"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if s.db == nil || s.db.Ping(r.Context()) != nil {
		dbStatus = "disconnected"
	}

	syncStatus := "idle"
	if s.sync != nil && s.sync.Running() {
		syncStatus = "running"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus, Sync: syncStatus},
	})
}
