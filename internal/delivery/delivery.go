// Package delivery carries tracker update events to the aggregator with
// at-least-once semantics: acked sends with bounded retries, plus a
// fire-and-forget beacon used as a last gasp during page teardown.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/viewtrack/internal/record"
)

// ErrContextInvalidated signals that the transport's host context is gone
// and no further acked delivery can succeed on this channel.
var ErrContextInvalidated = errors.New("delivery: context invalidated")

// Channel is the transport contract the tracker requires.
type Channel interface {
	// Send delivers an update and waits for the aggregator's ack.
	Send(ctx context.Context, u record.Update) error
	// Beacon delivers an update fire-and-forget. Never retried, delivery
	// not confirmed.
	Beacon(u record.Update)
}

// RetryPolicy bounds how hard Send is retried before surfacing failure.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy mirrors the reference behaviour: three retries with
// a fixed one-second delay.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Second}

// Sender wraps a Channel with the bounded retry policy. On transport
// invalidation it falls back to a single beacon attempt.
type Sender struct {
	ch     Channel
	policy RetryPolicy
	log    *zap.Logger
}

func NewSender(ch Channel, policy RetryPolicy, log *zap.Logger) *Sender {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryPolicy.Delay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{ch: ch, policy: policy, log: log}
}

// Send attempts the acked delivery up to 1+MaxAttempts times. Transport
// invalidation aborts retrying immediately and emits a beacon instead.
func (s *Sender) Send(ctx context.Context, u record.Update) error {
	var lastErr error
	for attempt := 0; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.policy.Delay):
			}
		}
		lastErr = s.ch.Send(ctx, u)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrContextInvalidated) {
			s.log.Warn("delivery channel invalidated, falling back to beacon",
				zap.String("action", u.Action))
			s.ch.Beacon(u)
			return lastErr
		}
		s.log.Warn("delivery attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return fmt.Errorf("delivery: %d attempts exhausted: %w", s.policy.MaxAttempts+1, lastErr)
}

// Beacon passes through to the underlying channel.
func (s *Sender) Beacon(u record.Update) {
	s.ch.Beacon(u)
}
