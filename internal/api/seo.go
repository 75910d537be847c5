package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
)

const maxPageNameLen = 128

type seoMetaResponse struct {
	Success bool `json:"success"`
	app.SEOMeta
}

// handleSEOMeta handles GET /api/seo/meta/{page}.
func (s *Server) handleSEOMeta(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	if page == "" || len(page) > maxPageNameLen {
		writeError(w, r, http.StatusBadRequest, "invalid page", nil)
		return
	}
	writeJSON(w, r, http.StatusOK, seoMetaResponse{Success: true, SEOMeta: s.seo.Meta(page)})
}
