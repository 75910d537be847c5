package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

const (
	// heartbeatInterval is the interval for sending SSE heartbeat comments.
	heartbeatInterval = 20 * time.Second

	// missedPageSize is the number of page views fetched per replay page.
	missedPageSize = 100

	// missedMaxPages limits the number of pages to replay (best-effort).
	missedMaxPages = 5

	sseEventName = "pageview"
)

// handleStream handles GET /api/v1/stream (SSE)
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Query parameter allows manual reconnection with Last-Event-ID
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}

	// Subscribe before replaying so nothing stored in between is lost;
	// live page views already covered by the replay are skipped below.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	var lastSent int64
	if lastEventID != "" {
		var err error
		lastSent, err = s.sendMissed(ctx, w, flusher, lastEventID)
		if err != nil && ctx.Err() == nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("live feed replay stopped")
		}
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case pv, ok := <-sub.Events():
			if !ok {
				return
			}
			if pv.ID <= lastSent {
				continue
			}
			writeSSEPageView(w, &pv)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-sub.Done():
			return
		}
	}
}

// sendMissed replays page views stored after the Last-Event-ID cursor and
// returns the highest id sent. Invalid cursors skip the replay; at most
// missedMaxPages pages are sent.
func (s *Server) sendMissed(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, lastEventID string) (int64, error) {
	cursor := lastEventID
	filter := store.QueryFilter{
		Cursor: &cursor,
		Limit:  missedPageSize,
		Order:  store.OrderAsc,
	}

	var lastSent int64
	for page := 0; page < missedMaxPages; page++ {
		result, err := s.pageViews.Query(ctx, filter)
		if err != nil {
			if errors.Is(err, store.ErrInvalidCursor) {
				return 0, nil
			}
			return lastSent, err
		}

		for i := range result.Items {
			writeSSEPageView(w, &result.Items[i])
			lastSent = result.Items[i].ID
		}
		flusher.Flush()

		if result.NextCursor == nil {
			break
		}
		filter.Cursor = result.NextCursor
	}
	return lastSent, nil
}

// writeSSEPageView writes a single page view in SSE format. The event id is
// the listing cursor, so it can be sent back as Last-Event-ID.
func writeSSEPageView(w http.ResponseWriter, pv *pageview.PageView) {
	data, err := json.Marshal(pv)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\n", store.EncodeCursor(pv.CreatedAt, pv.ID))
	fmt.Fprintf(w, "event: %s\n", sseEventName)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
