package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tranche-vault/internal/observability/metrics"
)

// Publisher writes events to outbox and optionally triggers dispatch.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	actor    string
	logger   *zap.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// NewPublisher constructs a publisher. A nil dispatcher leaves delivery to a background dispatch loop.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, actor string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{outbox: outbox, dispatch: dispatch, actor: actor, logger: logger}
}

// Publish writes the event to outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	result := metrics.ResultSuccess
	if p == nil || p.outbox == nil {
		metrics.ObserveOutboxPublish(result, time.Since(start))
		return nil
	}
	meta := MetaFromContext(ctx, p.actor)
	env, err := BuildEnvelope(event, meta)
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(result, duration)
	if duration > 50*time.Millisecond {
		p.logger.Warn("slow outbox publish",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("event_type", env.EventType),
		)
	}
	if p.dispatch != nil {
		if _, err := p.dispatch.Dispatch(ctx, 1); err != nil {
			p.logger.Warn("inline dispatch failed", zap.String("event_type", env.EventType), zap.Error(err))
		}
	}
	return nil
}
