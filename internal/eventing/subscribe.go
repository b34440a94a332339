package eventing

import (
	"context"
	"time"

	"tranche-vault/internal/observability/metrics"
)

// ProcessedStore remembers which consumer already handled which event.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Consumer outcomes reported to metrics.
const (
	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Subscribe registers handler as consumerName. With a store each event id
// reaches the handler at most once per consumer; redeliveries of an event
// that already succeeded are acknowledged without calling handler.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store != nil {
		handler = once(consumerName, handler, store)
	}
	bus.Subscribe(eventType, observe(consumerName, handler))
}

// once wraps handler with per-consumer idempotency keyed by envelope event id.
// Events published without an envelope are always handled.
func once(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		seen, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if seen {
			return errDuplicate
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

type duplicateError struct{}

func (duplicateError) Error() string { return "eventing: duplicate delivery" }

var errDuplicate error = duplicateError{}

func observe(consumerName string, handler EventHandler) EventHandler {
	return func(ctx context.Context, event any) error {
		err := handler(ctx, event)
		switch {
		case err == errDuplicate:
			metrics.IncConsumerEvent(consumerName, OutcomeDuplicate)
			return nil
		case err != nil:
			metrics.IncConsumerEvent(consumerName, OutcomeError)
			return err
		}
		metrics.IncConsumerEvent(consumerName, OutcomeHandled)
		if env, ok := EnvelopeFromContext(ctx); ok && !env.OccurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(env.OccurredAt))
		}
		return nil
	}
}
