// Package storage provides the persisted record-collection substrate.
//
// A collection is always read and written whole: no indexing, no partial
// update. Writers pass the version they read; a mismatch fails with
// ErrVersionConflict so read-modify-write callers can retry instead of
// silently losing each other's updates. Replace skips the version check
// for deliberate wholesale overwrites (the reconciler's pull).
package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
)

var (
	// ErrVersionConflict means another writer committed between Load and Store.
	ErrVersionConflict = errors.New("storage: version conflict")
	// ErrWatchUnsupported means the backend cannot deliver change notifications.
	ErrWatchUnsupported = errors.New("storage: watch unsupported")
)

// Snapshot is one consistent view of a collection.
type Snapshot struct {
	Records []record.ViewingRecord
	Version uint64
}

// Collection is the persistence contract consumed by the aggregator and
// the reconciler.
type Collection interface {
	// Load returns the full collection and its current version.
	Load(ctx context.Context) (Snapshot, error)
	// Store writes the full collection iff s.Version matches the stored
	// version; the committed version becomes s.Version+1.
	Store(ctx context.Context, s Snapshot) error
	// Replace overwrites the collection unconditionally (last writer wins).
	Replace(ctx context.Context, records []record.ViewingRecord) error
	// Watch registers fn to run when the collection changes outside this
	// handle. Backends without notification return ErrWatchUnsupported.
	Watch(ctx context.Context, fn func()) error
}

// NewSecondary selects the synced-tier backend: Redis preferred, Postgres
// fallback, none otherwise. In production a backend is mandatory.
func NewSecondary(ctx context.Context, name, redisDSN, databaseURL string, isProd bool, log *zap.Logger) (Collection, error) {
	if redisDSN != "" {
		return NewRedis(name, redisDSN, log)
	}
	if databaseURL != "" {
		return NewPostgres(ctx, name, databaseURL)
	}
	if isProd {
		return nil, errors.New("production requires REDIS_DSN or DATABASE_URL for the synced tier")
	}
	return nil, nil
}
