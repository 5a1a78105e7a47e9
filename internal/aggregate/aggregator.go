// Package aggregate merges tracker update events into the canonical
// record collection and derives its projections.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
	"github.com/example/viewtrack/internal/storage"
)

// ErrUnknownAction rejects envelopes with an unrecognised action.
var ErrUnknownAction = errors.New("aggregate: unknown action")

// ErrNotFound is returned by management operations on a missing key.
var ErrNotFound = errors.New("aggregate: record not found")

// conflictRetries bounds the compare-and-swap retry loop. Conflicts are
// expected to be rare at the tracker's polling cadence.
const conflictRetries = 5

// Aggregator owns the primary-tier collection. All writes go through a
// read-merge-CAS cycle so overlapping merges never overwrite each
// other's identity-key slots.
type Aggregator struct {
	store storage.Collection
	log   *zap.Logger
	now   func() time.Time

	// AfterWrite, when set, runs after every successful write with the
	// committed records. The reconciler hooks its secondary push here.
	AfterWrite func(ctx context.Context, records []record.ViewingRecord)
	// Badge, when set, receives the derived in-progress count after
	// every successful write.
	Badge func(count int)
}

func New(store storage.Collection, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Merge applies one delivered update event to the collection. Structural
// fields overwrite, rating fields merge only when present; a new identity
// key inserts a fresh record. Re-merging an identical event is idempotent
// apart from lastUpdated.
func (a *Aggregator) Merge(ctx context.Context, u record.Update) error {
	if !u.ValidAction() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, u.Action)
	}
	return a.mutate(ctx, func(records []record.ViewingRecord) ([]record.ViewingRecord, error) {
		now := a.now()
		key := u.Data.Key()
		for i := range records {
			if records[i].Key() == key {
				records[i].Merge(u.Data)
				records[i].LastUpdated = now
				return records, nil
			}
		}
		rec := u.Data
		rec.CreatedAt = now
		rec.LastUpdated = now
		return append(records, rec), nil
	})
}

// SaveComment sets the comment on an existing record (management edit).
func (a *Aggregator) SaveComment(ctx context.Context, key record.Key, comment string) error {
	return a.mutate(ctx, func(records []record.ViewingRecord) ([]record.ViewingRecord, error) {
		for i := range records {
			if records[i].Key() == key {
				c := comment
				records[i].Comment = &c
				records[i].LastUpdated = a.now()
				return records, nil
			}
		}
		return nil, ErrNotFound
	})
}

// DeleteRating removes a rated record entirely (management action; the
// record is user data once rated, and deleting the rating deletes it).
func (a *Aggregator) DeleteRating(ctx context.Context, key record.Key) error {
	return a.Delete(ctx, key)
}

// Delete removes the record with the given identity key.
func (a *Aggregator) Delete(ctx context.Context, key record.Key) error {
	return a.mutate(ctx, func(records []record.ViewingRecord) ([]record.ViewingRecord, error) {
		for i := range records {
			if records[i].Key() == key {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

// mutate runs one read-modify-CAS cycle, retrying on version conflicts.
func (a *Aggregator) mutate(ctx context.Context, fn func([]record.ViewingRecord) ([]record.ViewingRecord, error)) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		snap, err := a.store.Load(ctx)
		if err != nil {
			return err
		}
		records, err := fn(snap.Records)
		if err != nil {
			return err
		}
		err = a.store.Store(ctx, storage.Snapshot{Records: records, Version: snap.Version})
		if err == nil {
			a.afterWrite(ctx, records)
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (a *Aggregator) afterWrite(ctx context.Context, records []record.ViewingRecord) {
	if a.AfterWrite != nil {
		a.AfterWrite(ctx, records)
	}
	if a.Badge != nil {
		a.Badge(countInProgress(records))
	}
}

// InProgressCount is the badge projection: how many records are mid-watch.
func (a *Aggregator) InProgressCount(ctx context.Context) (int, error) {
	snap, err := a.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return countInProgress(snap.Records), nil
}

func countInProgress(records []record.ViewingRecord) int {
	n := 0
	for _, r := range records {
		if r.Status == record.StatusInProgress {
			n++
		}
	}
	return n
}

// Sort orders accepted by List.
const (
	SortByDate   = "date"
	SortByRating = "rating"
	SortByTitle  = "title"
)

// ListOptions filters and orders the readable collection.
type ListOptions struct {
	Query          string
	Genre          record.Genre
	Sort           string
	IncludeUnknown bool
}

// List returns the merged collection, filtered and sorted for display.
func (a *Aggregator) List(ctx context.Context, opts ListOptions) ([]record.ViewingRecord, error) {
	snap, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(opts.Query))
	out := make([]record.ViewingRecord, 0, len(snap.Records))
	for _, r := range snap.Records {
		if !opts.IncludeUnknown && r.Status == record.StatusUnknown {
			continue
		}
		if opts.Genre != "" && r.Genre != opts.Genre {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.MainTitle), q) &&
			!strings.Contains(strings.ToLower(r.EpisodeTitle), q) {
			continue
		}
		out = append(out, r)
	}

	switch opts.Sort {
	case SortByRating:
		sort.SliceStable(out, func(i, j int) bool {
			return ratingOf(out[i]) > ratingOf(out[j])
		})
	case SortByTitle:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].MainTitle < out[j].MainTitle
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		})
	}
	return out, nil
}

func ratingOf(r record.ViewingRecord) int {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}
