// Package reconcile keeps the device-local primary tier and the synced
// secondary tier in agreement.
//
// Policy: the secondary mirrors the primary after every successful merge
// (push); the primary is overwritten wholesale from the secondary on a
// periodic timer and whenever the secondary reports an external change
// (pull). The pull is last-writer-wins over the whole collection and can
// clobber very recent local merges; that is the intended sync model.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
	"github.com/example/viewtrack/internal/storage"
)

type Reconciler struct {
	primary   storage.Collection
	secondary storage.Collection
	interval  time.Duration
	log       *zap.Logger

	pulls chan struct{}
}

func New(primary, secondary storage.Collection, interval time.Duration, log *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		primary:   primary,
		secondary: secondary,
		interval:  interval,
		log:       log,
		pulls:     make(chan struct{}, 1),
	}
}

// Run drives periodic pulls and subscribes to external-change
// notifications until ctx is cancelled. Backends without notification
// support fall back to the timer alone.
func (r *Reconciler) Run(ctx context.Context) {
	if r.secondary == nil {
		r.log.Info("no secondary tier configured, reconciler idle")
		return
	}

	if err := r.secondary.Watch(ctx, r.schedulePull); err != nil {
		if errors.Is(err, storage.ErrWatchUnsupported) {
			r.log.Info("secondary tier has no change notification, timer only")
		} else {
			r.log.Warn("secondary watch failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pull(ctx)
		case <-r.pulls:
			r.pull(ctx)
		}
	}
}

// schedulePull coalesces notification bursts into one pending pull.
func (r *Reconciler) schedulePull() {
	select {
	case r.pulls <- struct{}{}:
	default:
	}
}

// Push mirrors the primary collection into the secondary tier. Failures
// are logged and absorbed; the next push supersedes.
func (r *Reconciler) Push(ctx context.Context, records []record.ViewingRecord) {
	if r.secondary == nil {
		return
	}
	if err := r.secondary.Replace(ctx, records); err != nil {
		r.log.Warn("secondary push failed", zap.Error(err))
	}
}

// pull overwrites the primary wholesale from the secondary.
func (r *Reconciler) pull(ctx context.Context) {
	snap, err := r.secondary.Load(ctx)
	if err != nil {
		r.log.Warn("secondary load failed", zap.Error(err))
		return
	}
	if err := r.primary.Replace(ctx, snap.Records); err != nil {
		r.log.Warn("primary replace failed", zap.Error(err))
		return
	}
	r.log.Debug("pulled secondary tier", zap.Int("records", len(snap.Records)))
}

// SweepInterrupted transitions every in-progress record to interrupted.
// Invoked when a tracking context disappears: no record may remain
// in-progress once its owner is known to be gone. The sweep is coarse
// and hits records owned by other live contexts too; their next tick
// restores them.
func (r *Reconciler) SweepInterrupted(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		snap, err := r.primary.Load(ctx)
		if err != nil {
			return err
		}
		changed := false
		for i := range snap.Records {
			if snap.Records[i].Status == record.StatusInProgress {
				snap.Records[i].Status = record.StatusInterrupted
				snap.Records[i].LastUpdated = time.Now().UTC()
				changed = true
			}
		}
		if !changed {
			return nil
		}
		err = r.primary.Store(ctx, snap)
		if err == nil {
			r.Push(ctx, snap.Records)
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
