// Package consumer receives tracker events off NATS and feeds them to
// the aggregator and reconciler.
package consumer

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/aggregate"
	"github.com/example/viewtrack/internal/delivery"
	"github.com/example/viewtrack/internal/record"
	"github.com/example/viewtrack/internal/reconcile"
)

const queueGroup = "viewtrack_aggregator"

// Consumer wires the update and context-closed subjects to their
// handlers. Acked sends get a reply; beacon deliveries carry no reply
// subject and are merged silently.
type Consumer struct {
	nc  *nats.Conn
	agg *aggregate.Aggregator
	rec *reconcile.Reconciler
	log *zap.Logger

	subs []*nats.Subscription
}

func New(nc *nats.Conn, agg *aggregate.Aggregator, rec *reconcile.Reconciler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{nc: nc, agg: agg, rec: rec, log: log}
}

// Start subscribes to the viewing subjects. Handlers run on the NATS
// dispatch goroutine; failures are logged and contained per message.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.nc.QueueSubscribe(delivery.SubjectUpdates, queueGroup, func(m *nats.Msg) {
		c.handleUpdate(ctx, m)
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)

	sub, err = c.nc.QueueSubscribe(delivery.SubjectContextClosed, queueGroup, func(m *nats.Msg) {
		c.handleContextClosed(ctx, m)
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Stop drains the subscriptions.
func (c *Consumer) Stop() {
	for _, s := range c.subs {
		_ = s.Drain()
	}
}

func (c *Consumer) handleUpdate(ctx context.Context, m *nats.Msg) {
	var u record.Update
	if err := json.Unmarshal(m.Data, &u); err != nil {
		c.log.Warn("invalid update payload", zap.Error(err))
		return
	}
	if !u.ValidAction() {
		c.log.Warn("unknown update action", zap.String("action", u.Action))
		return
	}

	if err := c.agg.Merge(ctx, u); err != nil {
		c.log.Error("merge failed",
			zap.String("action", u.Action),
			zap.String("main_title", u.Data.MainTitle),
			zap.Error(err))
		// No ack: the sender's retry redelivers.
		return
	}

	if m.Reply != "" {
		if err := m.Respond(delivery.AckPayload); err != nil {
			c.log.Warn("ack failed", zap.Error(err))
		}
	}
}

func (c *Consumer) handleContextClosed(ctx context.Context, m *nats.Msg) {
	var ev delivery.ContextClosed
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		c.log.Warn("invalid context-closed payload", zap.Error(err))
		return
	}
	c.log.Info("tracking context closed, sweeping", zap.String("context_id", ev.ContextID))
	if err := c.rec.SweepInterrupted(ctx); err != nil {
		c.log.Error("interrupted sweep failed", zap.Error(err))
	}
}
