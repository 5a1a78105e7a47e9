package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/aggregate"
	"github.com/example/viewtrack/internal/badge"
	"github.com/example/viewtrack/internal/consumer"
	"github.com/example/viewtrack/internal/handlers"
	"github.com/example/viewtrack/internal/platform/config"
	"github.com/example/viewtrack/internal/platform/httpserver"
	"github.com/example/viewtrack/internal/platform/logging"
	"github.com/example/viewtrack/internal/platform/natsconn"
	"github.com/example/viewtrack/internal/platform/run"
	"github.com/example/viewtrack/internal/reconcile"
	"github.com/example/viewtrack/internal/storage"
)

const collectionName = "videos"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	primary := storage.NewMemory()
	secondary, err := storage.NewSecondary(context.Background(), collectionName,
		cfg.RedisDSN, cfg.DatabaseURL, cfg.IsProd(), log)
	if err != nil {
		log.Error("secondary tier init", zap.Error(err))
		run.Exit(1)
	}
	switch {
	case secondary == nil:
		log.Warn("no synced tier configured, records are device-local only")
	case cfg.RedisDSN != "":
		log.Info("synced tier: redis")
	default:
		log.Info("synced tier: postgres")
	}

	rec := reconcile.New(primary, secondary, cfg.SyncInterval, log)
	agg := aggregate.New(primary, log)

	// NATS is non-fatal: without it the daemon still serves reads, it
	// just receives no tracker events.
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		nc = nil
	}

	badges := badge.New(nc, log)
	agg.Badge = badges.Publish
	agg.AfterWrite = rec.Push

	r := chi.NewRouter()
	httpserver.SetupRouter(r)
	r.Get("/v1/records", handlers.ListRecords(agg))
	r.Get("/v1/records/badge", handlers.Badge(agg))
	r.Get("/v1/stats", handlers.Stats(agg))
	r.Post("/v1/records/comment", handlers.SaveComment(agg))
	r.Post("/v1/records/delete-rating", handlers.DeleteRating(agg))
	r.Post("/v1/records/delete", handlers.DeleteRecord(agg))
	r.Post("/v1/rating-prompt", handlers.RatingPrompt(nc, log))

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		// Seed the primary tier from the synced tier before consuming.
		if secondary != nil {
			if snap, err := secondary.Load(ctx); err != nil {
				log.Warn("initial secondary load failed", zap.Error(err))
			} else if err := primary.Replace(ctx, snap.Records); err != nil {
				log.Warn("initial primary seed failed", zap.Error(err))
			}
		}

		go rec.Run(ctx)

		if nc != nil {
			cons := consumer.New(nc, agg, rec, log)
			if err := cons.Start(ctx); err != nil {
				return err
			}
			defer cons.Stop()
			defer nc.Close()
		}

		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
