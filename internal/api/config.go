package api

import "net/http"

// handleConfig handles GET /api/v1/config requests.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.config.GetConfig(r.Context()))
}
