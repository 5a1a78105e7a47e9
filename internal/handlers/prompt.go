package handlers

import (
	"net/http"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/delivery"
	"github.com/example/viewtrack/internal/platform/api"
	"github.com/example/viewtrack/internal/platform/httpserver"
)

// RatingPrompt relays a "rate now" request to the active trackers,
// forcing the rating flow regardless of the completion threshold.
func RatingPrompt(nc *nats.Conn, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if nc == nil {
			api.WriteError(w, http.StatusServiceUnavailable, "NO_TRANSPORT",
				"Tracker transport is not connected", rid, nil)
			return
		}
		if err := nc.Publish(delivery.SubjectRatingPrompt, nil); err != nil {
			log.Warn("rating prompt publish failed", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
