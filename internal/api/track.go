package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/ingest"
)

// trackResponse acknowledges a stored page view.
type trackResponse struct {
	Success   bool      `json:"success"`
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleTrack handles POST /api/v1/track and the legacy /api/seo/track.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	p, err := ingest.DecodePayload(http.MaxBytesReader(w, r.Body, s.trackOpts.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		writeDomainError(w, r, err)
		return
	}

	if p.UserAgent == nil && s.trackOpts.UserAgentFromHeader {
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			p.UserAgent = &ua
		}
	}

	ack, err := s.tracker.Track(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, trackResponse{
		Success:   true,
		ID:        ack.ID,
		CreatedAt: ack.CreatedAt,
	})
}
