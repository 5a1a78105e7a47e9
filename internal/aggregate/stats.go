package aggregate

import (
	"context"

	"github.com/example/viewtrack/internal/record"
)

// Summary is the aggregate viewing statistics projection.
type Summary struct {
	TotalRecords        int                        `json:"total_records"`
	CompletedCount      int                        `json:"completed_count"`
	TotalWatchSeconds   float64                    `json:"total_watch_seconds"`
	AverageRating       float64                    `json:"average_rating"`
	GenreCounts         map[record.Genre]int       `json:"genre_counts"`
	ServiceWatchSeconds map[record.Service]float64 `json:"service_watch_seconds"`
}

// Summarize computes the statistics projection over the full collection.
func (a *Aggregator) Summarize(ctx context.Context) (Summary, error) {
	snap, err := a.store.Load(ctx)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		TotalRecords:        len(snap.Records),
		GenreCounts:         make(map[record.Genre]int),
		ServiceWatchSeconds: make(map[record.Service]float64),
	}

	ratingSum, rated := 0, 0
	for _, r := range snap.Records {
		s.TotalWatchSeconds += r.WatchedDuration
		if r.Status == record.StatusCompleted {
			s.CompletedCount++
		}
		if r.Genre != "" {
			s.GenreCounts[r.Genre]++
		}
		if r.WatchedDuration > 0 {
			s.ServiceWatchSeconds[r.Service] += r.WatchedDuration
		}
		if r.Rating != nil {
			ratingSum += *r.Rating
			rated++
		}
	}
	if rated > 0 {
		s.AverageRating = float64(ratingSum) / float64(rated)
	}
	return s, nil
}
