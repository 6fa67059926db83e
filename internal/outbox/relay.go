package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// Publisher delivers outbox messages to the event bus. A message counts as
// dispatched only once Publish returns nil for its batch.
type Publisher interface {
	Publish(ctx context.Context, msgs []trade.OutboxMessage) error
}

// Sink receives every dispatched message in-process. Sink errors are logged
// and never block the outbox.
type Sink interface {
	Handle(ctx context.Context, msg trade.OutboxMessage) error
}

type SinkFunc func(ctx context.Context, msg trade.OutboxMessage) error

func (f SinkFunc) Handle(ctx context.Context, msg trade.OutboxMessage) error { return f(ctx, msg) }

// Observer receives relay counters.
type Observer interface {
	Dispatched(topic string, n int)
	PublishFailed(n int)
}

type nopObserver struct{}

func (nopObserver) Dispatched(string, int) {}
func (nopObserver) PublishFailed(int)      {}

type Relay struct {
	store    trade.OutboxStore
	pub      Publisher
	sinks    []Sink
	batch    int
	interval time.Duration
	logger   *zap.Logger
	obs      Observer
	now      func() time.Time
}

type Option func(*Relay)

// WithPublisher sets the bus publisher. Without one, messages go straight to the sinks.
func WithPublisher(p Publisher) Option { return func(r *Relay) { r.pub = p } }

func WithSinks(s ...Sink) Option { return func(r *Relay) { r.sinks = append(r.sinks, s...) } }

func WithObserver(o Observer) Option { return func(r *Relay) { r.obs = o } }

func WithClock(now func() time.Time) Option { return func(r *Relay) { r.now = now } }

func NewRelay(store trade.OutboxStore, interval time.Duration, batch int, logger *zap.Logger, opts ...Option) *Relay {
	if batch <= 0 {
		batch = 100
	}
	r := &Relay{
		store:    store,
		batch:    batch,
		interval: interval,
		logger:   logger.Named("outbox"),
		obs:      nopObserver{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					r.logger.Warn("outbox flush failed", zap.Error(err))
					break
				}
				// A full batch means more rows are probably waiting.
				if n < r.batch {
					break
				}
			}
		}
	}
}

// Flush dispatches one batch of pending messages and returns how many were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	msgs, err := r.store.PendingOutbox(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if r.pub != nil {
		if err := r.pub.Publish(ctx, msgs); err != nil {
			r.obs.PublishFailed(len(msgs))
			return 0, fmt.Errorf("failed to publish %d messages: %w", len(msgs), err)
		}
	}

	ids := make([]string, len(msgs))
	perTopic := map[string]int{}
	for i, m := range msgs {
		ids[i] = m.ID
		perTopic[m.Topic]++
	}
	if err := r.store.MarkDispatched(ctx, ids, r.now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to mark outbox dispatched: %w", err)
	}
	for topic, n := range perTopic {
		r.obs.Dispatched(topic, n)
	}

	for _, m := range msgs {
		for _, s := range r.sinks {
			if err := s.Handle(ctx, m); err != nil {
				r.logger.Warn("outbox sink failed",
					zap.String("message_id", m.ID),
					zap.String("trade_id", m.TradeID),
					zap.String("type", string(m.Type)),
					zap.Error(err),
				)
			}
		}
	}

	r.logger.Debug("outbox flushed", zap.Int("count", len(msgs)))
	return len(msgs), nil
}
