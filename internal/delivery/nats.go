package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
)

// NATS subjects shared by trackers and the aggregator daemon.
const (
	SubjectUpdates       = "viewing.updates"
	SubjectContextClosed = "viewing.context.closed"
	SubjectRatingPrompt  = "viewing.rating.prompt"
)

// AckPayload is the aggregator's reply body for an acked send.
var AckPayload = []byte(`{"success":true}`)

// ContextClosed is published when a tracking context (page/tab) goes away.
type ContextClosed struct {
	ContextID string `json:"context_id"`
	ClosedAt  string `json:"closed_at"`
}

// NATSChannel delivers updates over NATS request/reply; the beacon is a
// plain publish on the same subject with no reply expected.
type NATSChannel struct {
	nc      *nats.Conn
	timeout time.Duration
	log     *zap.Logger
}

func NewNATSChannel(nc *nats.Conn, timeout time.Duration, log *zap.Logger) *NATSChannel {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSChannel{nc: nc, timeout: timeout, log: log}
}

func (c *NATSChannel) Send(ctx context.Context, u record.Update) error {
	if u.EventID == "" {
		u.EventID = uuid.NewString()
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.nc.RequestWithContext(reqCtx, SubjectUpdates, data)
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrInvalidConnection) {
			return ErrContextInvalidated
		}
		return err
	}
	return nil
}

func (c *NATSChannel) Beacon(u record.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		c.log.Warn("beacon marshal failed", zap.Error(err))
		return
	}
	if err := c.nc.Publish(SubjectUpdates, data); err != nil {
		c.log.Warn("beacon publish failed", zap.Error(err))
		return
	}
	// Best effort only; flush so teardown has a chance to get it out.
	_ = c.nc.FlushTimeout(500 * time.Millisecond)
}

// OnRatingPrompt invokes fn whenever a "rate now" request is relayed to
// the trackers. The caller owns the returned subscription.
func (c *NATSChannel) OnRatingPrompt(fn func()) (*nats.Subscription, error) {
	return c.nc.Subscribe(SubjectRatingPrompt, func(*nats.Msg) { fn() })
}

// NotifyContextClosed publishes the context-closed signal that drives the
// reconciler's interrupted sweep.
func (c *NATSChannel) NotifyContextClosed(contextID string) {
	data, err := json.Marshal(ContextClosed{
		ContextID: contextID,
		ClosedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := c.nc.Publish(SubjectContextClosed, data); err != nil {
		c.log.Warn("context closed publish failed", zap.Error(err))
		return
	}
	_ = c.nc.FlushTimeout(500 * time.Millisecond)
}
