package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tranche-vault/internal/observability/metrics"
)

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	// Due returns pending records whose next attempt is at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]OutboxRecord, error)
	Complete(ctx context.Context, id string, at time.Time) error
	// Retry keeps the record pending and schedules another attempt.
	Retry(ctx context.Context, id string, next time.Time, cause error) error
	// Abandon parks the record; it is never delivered again.
	Abandon(ctx context.Context, id string, cause error) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	// Attempts counts failed deliveries so far.
	Attempts int
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	DLQ       int
}

// Dispatcher sends outbox events to the in-process bus.
type Dispatcher struct {
	bus         EventBus
	outbox      OutboxStore
	registry    *Registry
	dlq         DLQStore
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// DispatcherOption configures a dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetry lets a record fail maxAttempts times before it is dead-lettered.
// The wait before attempt n+1 is backoff * 2^(n-1).
func WithRetry(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// WithDispatchClock overrides the dispatcher time source.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a dispatcher. Without WithRetry the first failure dead-letters.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		bus:         bus,
		outbox:      outbox,
		registry:    registry,
		dlq:         dlq,
		logger:      logger,
		maxAttempts: 1,
		backoff:     time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers due outbox records.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}
	result := DispatchResult{Requested: limit}
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, nil
	}
	now := d.now()
	records, err := d.outbox.Due(ctx, now, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, record := range records {
		deliverErr := d.deliver(ctx, record.Envelope)
		if deliverErr == nil {
			if err := d.outbox.Complete(ctx, record.ID, now); err != nil {
				keep(err)
				result.Failed++
				continue
			}
			result.Sent++
			continue
		}

		attempts := record.Attempts + 1
		log := d.logger.With(
			zap.String("event_id", record.Envelope.EventID),
			zap.String("event_type", record.Envelope.EventType),
			zap.Int("attempts", attempts),
			zap.Error(deliverErr),
		)
		if attempts < d.maxAttempts {
			log.Info("outbox delivery deferred")
			keep(d.outbox.Retry(ctx, record.ID, now.Add(d.delay(attempts)), deliverErr))
			result.Retried++
			continue
		}
		log.Warn("outbox delivery abandoned")
		keep(d.outbox.Abandon(ctx, record.ID, deliverErr))
		result.Failed++
		if d.dlq != nil {
			if err := d.dlq.RecordFailure(ctx, record.Envelope, deliverErr); err != nil {
				keep(err)
			} else {
				result.DLQ++
			}
		}
	}

	outcome := metrics.ResultSuccess
	if firstErr != nil || result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed, result.DLQ)
	return result, firstErr
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	payload, err := d.registry.DecodePayload(env)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, env), payload)
}

func (d *Dispatcher) delay(attempts int) time.Duration {
	wait := d.backoff
	for i := 1; i < attempts && wait < time.Hour; i++ {
		wait *= 2
	}
	return wait
}

// Run dispatches on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, limit int) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, limit); err != nil && ctx.Err() == nil {
				d.logger.Warn("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}
