// Package handlers exposes the aggregated record collection to UI
// collaborators: list, badge and stats reads plus the user-initiated
// management edits.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/viewtrack/internal/aggregate"
	"github.com/example/viewtrack/internal/platform/api"
	"github.com/example/viewtrack/internal/platform/httpserver"
	"github.com/example/viewtrack/internal/record"
)

type recordKeyRequest struct {
	MainTitle    string         `json:"mainTitle"`
	EpisodeTitle string         `json:"episodeTitle"`
	Service      record.Service `json:"service"`
}

func (r recordKeyRequest) key() record.Key {
	return record.Key{
		MainTitle:    strings.TrimSpace(r.MainTitle),
		EpisodeTitle: strings.TrimSpace(r.EpisodeTitle),
		Service:      r.Service,
	}
}

type listResponse struct {
	Records []record.ViewingRecord `json:"records"`
}

// ListRecords returns the merged collection, filtered and sorted.
func ListRecords(agg *aggregate.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		opts := aggregate.ListOptions{
			Query:          r.URL.Query().Get("q"),
			Genre:          record.Genre(strings.TrimSpace(r.URL.Query().Get("genre"))),
			Sort:           strings.TrimSpace(r.URL.Query().Get("sort")),
			IncludeUnknown: r.URL.Query().Get("include_unknown") == "true",
		}
		records, err := agg.List(r.Context(), opts)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if records == nil {
			records = []record.ViewingRecord{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Records: records})
	}
}

type badgeResponse struct {
	InProgressCount int `json:"in_progress_count"`
}

// Badge returns the derived in-progress count.
func Badge(agg *aggregate.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		count, err := agg.InProgressCount(r.Context())
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, badgeResponse{InProgressCount: count})
	}
}

// Stats returns the viewing statistics summary.
func Stats(agg *aggregate.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		summary, err := agg.Summarize(r.Context())
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, summary)
	}
}

type saveCommentRequest struct {
	recordKeyRequest
	Comment string `json:"comment"`
}

// SaveComment sets the comment on an existing record.
func SaveComment(agg *aggregate.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req saveCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if err := agg.SaveComment(r.Context(), req.key(), req.Comment); err != nil {
			writeAggregateError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// DeleteRating removes a rated record (management action).
func DeleteRating(agg *aggregate.Aggregator) http.HandlerFunc {
	return deleteByKey(agg.DeleteRating)
}

// DeleteRecord removes a record by identity key.
func DeleteRecord(agg *aggregate.Aggregator) http.HandlerFunc {
	return deleteByKey(agg.Delete)
}

func deleteByKey(del func(ctx context.Context, key record.Key) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req recordKeyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if err := del(r.Context(), req.key()); err != nil {
			writeAggregateError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func writeAggregateError(w http.ResponseWriter, rid string, err error) {
	if errors.Is(err, aggregate.ErrNotFound) {
		api.NotFound(w, "RECORD_NOT_FOUND", "No record for that key", rid)
		return
	}
	api.Internal(w, rid)
}
