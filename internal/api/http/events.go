package http

import (
	"context"
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

// EventLister reads the attempt event log.
type EventLister interface {
	ListEvents(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// GET /events?after=0&limit=100
// Downstream consumers poll with the last Seq they processed.
func ListEventsHandler(events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		list, err := events.ListEvents(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 0))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": list})
	}
}
