// Package badge projects the in-progress count for indicator surfaces.
// It is a pure read of the aggregated store pushed out fire-and-forget;
// no decision logic lives here.
package badge

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject carries badge projections to any listening indicator UI.
const Subject = "viewing.badge"

// Event is the projected badge state.
type Event struct {
	InProgressCount int       `json:"in_progress_count"`
	ProjectedAt     time.Time `json:"projected_at"`
}

// Publisher publishes badge projections to NATS. The zero value and a
// nil pointer are both safe no-op stubs.
type Publisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

// New creates a Publisher. Pass nc=nil for a no-op stub (tests, daemons
// without NATS).
func New(nc *nats.Conn, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{nc: nc, log: log}
}

// Publish sends the badge count fire-and-forget. Failures are logged as
// warnings and never surface to the caller.
func (p *Publisher) Publish(count int) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(Event{InProgressCount: count, ProjectedAt: time.Now().UTC()})
	if err != nil {
		p.log.Warn("badge: marshal failed", zap.Error(err))
		return
	}
	if err := p.nc.Publish(Subject, data); err != nil {
		p.log.Warn("badge: publish failed", zap.Error(err))
	}
}
