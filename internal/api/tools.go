package api

import (
	"encoding/json"
	"net/http"

	"github.com/eliksir-bar/eliksir-analytics/internal/textfix"
)

// Limit request body size to 1MB to prevent DoS
const maxToolBodyBytes = 1 << 20

type fixPolishRequest struct {
	Text string `json:"text"`
}

type fixPolishResponse struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

// handleFixPolish handles POST /api/v1/tools/fix-polish: repairs Polish
// letters that were stored as mis-decoded UTF-8.
func (s *Server) handleFixPolish(w http.ResponseWriter, r *http.Request) {
	var req fixPolishRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxToolBodyBytes))
	decoder.DisallowUnknownFields() // Strict JSON parsing
	if err := decoder.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	fixed, changed := textfix.Changed(req.Text)
	writeJSON(w, r, http.StatusOK, fixPolishResponse{Text: fixed, Changed: changed})
}
