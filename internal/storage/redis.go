package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
)

// Redis is the synced secondary tier. The whole collection lives as one
// JSON envelope under a single key; optimistic WATCH transactions give
// the same compare-and-swap semantics as the primary tier, and a pub/sub
// channel carries change notifications to other nodes. Each handle tags
// its publishes with an origin id so it can skip its own writes.
type Redis struct {
	client  *redis.Client
	key     string
	channel string
	origin  string
	log     *zap.Logger
}

type redisEnvelope struct {
	Version uint64                 `json:"version"`
	Records []record.ViewingRecord `json:"records"`
}

type redisNotification struct {
	Origin string `json:"origin"`
}

func NewRedis(name, dsn string, log *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		client:  redis.NewClient(opts),
		key:     "viewtrack:collection:" + name,
		channel: "viewtrack:changed:" + name,
		origin:  uuid.NewString(),
		log:     log,
	}, nil
}

func (r *Redis) Load(ctx context.Context) (Snapshot, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Records: env.Records, Version: env.Version}, nil
}

func (r *Redis) Store(ctx context.Context, s Snapshot) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current uint64
		val, err := tx.Get(ctx, r.key).Result()
		switch {
		case err == nil:
			var env redisEnvelope
			if err := json.Unmarshal([]byte(val), &env); err != nil {
				return err
			}
			current = env.Version
		case errors.Is(err, redis.Nil):
			current = 0
		default:
			return err
		}
		if current != s.Version {
			return ErrVersionConflict
		}

		data, err := json.Marshal(redisEnvelope{Version: s.Version + 1, Records: s.Records})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}, r.key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	r.notify(ctx)
	return nil
}

func (r *Redis) Replace(ctx context.Context, records []record.ViewingRecord) error {
	for {
		snap, err := r.Load(ctx)
		if err != nil {
			return err
		}
		err = r.Store(ctx, Snapshot{Records: records, Version: snap.Version})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Watch subscribes to the change channel and invokes fn for every write
// that did not originate from this handle. It returns once subscribed;
// delivery runs until ctx is cancelled.
func (r *Redis) Watch(ctx context.Context, fn func()) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n redisNotification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err == nil && n.Origin == r.origin {
					continue
				}
				fn()
			}
		}
	}()
	return nil
}

func (r *Redis) notify(ctx context.Context) {
	data, err := json.Marshal(redisNotification{Origin: r.origin})
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.log.Warn("redis change notify failed", zap.Error(err))
	}
}
