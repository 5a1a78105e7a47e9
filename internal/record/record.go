// Package record defines the canonical viewing record and the wire
// envelope exchanged between trackers and the aggregator.
package record

import "time"

// Service identifies the streaming platform a record belongs to.
type Service string

const (
	ServiceUNext       Service = "U-NEXT"
	ServiceNetflix     Service = "Netflix"
	ServiceAmazonPrime Service = "Amazon Prime"
	ServiceDisneyPlus  Service = "Disney+"
	ServiceUnknown     Service = "Unknown"
)

// Status describes how far a viewing session got.
type Status string

const (
	StatusNotStarted  Status = "not started"
	StatusInProgress  Status = "in progress"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusUnknown     Status = "unknown"
)

// Genre is the user-assigned content category.
type Genre string

const (
	GenreMovie Genre = "movie"
	GenreDrama Genre = "drama"
	GenreAnime Genre = "anime"
	GenreOther Genre = "other"
)

// Update actions carried in the wire envelope.
const (
	ActionUpdateVideoData = "updateVideoData"
	ActionUpdateRating    = "updateRating"
)

// Key is the identity tuple of a viewing record. At most one record per
// key exists in a collection; updates merge into the existing record.
type Key struct {
	MainTitle    string
	EpisodeTitle string
	Service      Service
}

// ViewingRecord is the persisted unit of viewing state.
//
// Structural fields (durations, position, status, genre) are always
// overwritten by an incoming update; the rating group (rating, comment,
// episodeCount, hasRating) merges only when present, so a plain progress
// update never clobbers a submitted rating.
type ViewingRecord struct {
	MainTitle       string  `json:"mainTitle"`
	EpisodeTitle    string  `json:"episodeTitle"`
	Service         Service `json:"service"`
	TotalDuration   float64 `json:"totalDuration"`
	WatchedDuration float64 `json:"watchedDuration"`
	LastPosition    float64 `json:"lastPosition"`
	Status          Status  `json:"status"`
	Genre           Genre   `json:"genre,omitempty"`

	Rating       *int    `json:"rating,omitempty"`
	Comment      *string `json:"comment,omitempty"`
	EpisodeCount *int    `json:"episodeCount,omitempty"`
	HasRating    *bool   `json:"hasRating,omitempty"`

	CreatedAt   time.Time `json:"createdAt,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// Key returns the identity tuple. Empty titles are legal: title-less
// sessions for a service collapse into one degenerate record.
func (r ViewingRecord) Key() Key {
	return Key{MainTitle: r.MainTitle, EpisodeTitle: r.EpisodeTitle, Service: r.Service}
}

// Rated reports whether the record carries a submitted rating.
func (r ViewingRecord) Rated() bool {
	return r.HasRating != nil && *r.HasRating
}

// Update is the wire envelope for a single tracker event. The same shape
// travels over the acked channel and the teardown beacon.
type Update struct {
	EventID string        `json:"event_id,omitempty"`
	Action  string        `json:"action"`
	Data    ViewingRecord `json:"data"`
}

// ValidAction reports whether the envelope carries a known action.
func (u Update) ValidAction() bool {
	return u.Action == ActionUpdateVideoData || u.Action == ActionUpdateRating
}

// Merge applies an incoming update onto an existing record in place,
// following the field policy above. Identity fields and createdAt are
// untouched; the caller owns lastUpdated.
func (r *ViewingRecord) Merge(in ViewingRecord) {
	r.TotalDuration = in.TotalDuration
	r.WatchedDuration = in.WatchedDuration
	r.LastPosition = in.LastPosition
	r.Status = in.Status
	r.Genre = in.Genre

	if in.Rating != nil {
		r.Rating = in.Rating
	}
	if in.Comment != nil {
		r.Comment = in.Comment
	}
	if in.EpisodeCount != nil {
		r.EpisodeCount = in.EpisodeCount
	}
	if in.HasRating != nil {
		r.HasRating = in.HasRating
	}
}
