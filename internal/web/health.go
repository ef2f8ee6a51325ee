package web

import "net/http"

// handleHealth is an unauthenticated liveness probe, mirroring the
// teacher's own /api/v2/health endpoint shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
