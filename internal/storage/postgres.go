package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/viewtrack/internal/platform/db"
	"github.com/example/viewtrack/internal/record"
)

// Postgres stores a collection as a single versioned JSONB row. It is the
// secondary-tier fallback when Redis is not configured; change
// notification is not supported, so the reconciler relies on its timer.
//
// Table:
//
//	CREATE TABLE viewing_collections (
//	  name       text PRIMARY KEY,
//	  version    bigint NOT NULL,
//	  data       jsonb NOT NULL,
//	  updated_at timestamptz NOT NULL
//	);
type Postgres struct {
	pool *pgxpool.Pool
	name string
}

func NewPostgres(ctx context.Context, name, dsn string) (*Postgres, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, name: name}, nil
}

func (p *Postgres) Load(ctx context.Context) (Snapshot, error) {
	const q = `SELECT version, data FROM viewing_collections WHERE name = $1`
	var version int64
	var data []byte
	err := p.pool.QueryRow(ctx, q, p.name).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No collection row yet: an empty v0 snapshot.
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	var records []record.ViewingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Records: records, Version: uint64(version)}, nil
}

func (p *Postgres) Store(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(emptyAsList(s.Records))
	if err != nil {
		return err
	}

	if s.Version == 0 {
		const ins = `INSERT INTO viewing_collections (name, version, data, updated_at)
		             VALUES ($1, 1, $2, $3)
		             ON CONFLICT (name) DO NOTHING`
		tag, err := p.pool.Exec(ctx, ins, p.name, data, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		// Row appeared since Load: fall through to the guarded update,
		// which will report the conflict.
	}

	const upd = `UPDATE viewing_collections
	             SET version = version + 1, data = $2, updated_at = $3
	             WHERE name = $1 AND version = $4`
	tag, err := p.pool.Exec(ctx, upd, p.name, data, time.Now().UTC(), int64(s.Version))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (p *Postgres) Replace(ctx context.Context, records []record.ViewingRecord) error {
	data, err := json.Marshal(emptyAsList(records))
	if err != nil {
		return err
	}
	const q = `INSERT INTO viewing_collections (name, version, data, updated_at)
	           VALUES ($1, 1, $2, $3)
	           ON CONFLICT (name) DO UPDATE SET
	             version = viewing_collections.version + 1,
	             data = EXCLUDED.data,
	             updated_at = EXCLUDED.updated_at`
	_, err = p.pool.Exec(ctx, q, p.name, data, time.Now().UTC())
	return err
}

func (p *Postgres) Watch(_ context.Context, _ func()) error {
	return ErrWatchUnsupported
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// emptyAsList keeps the stored JSON a list even for empty collections.
func emptyAsList(in []record.ViewingRecord) []record.ViewingRecord {
	if in == nil {
		return []record.ViewingRecord{}
	}
	return in
}
