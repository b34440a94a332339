package application

import (
	"context"
	"time"

	"cosmossdk.io/math"
	"go.uber.org/zap"

	"tranche-vault/internal/failure"
	"tranche-vault/internal/observability/metrics"
	vault "tranche-vault/internal/vault/domain"
)

// txn is the working state of one operation. Nothing in it is visible until run commits.
type txn struct {
	engine        *Engine
	working       *vault.Vault
	now           time.Time
	compensations []compensation
	events        []any
}

type compensation struct {
	name   string
	target string
	amount math.Uint
	undo   func(ctx context.Context) error
}

func (t *txn) emit(event any) {
	t.events = append(t.events, event)
}

func (t *txn) transferIn(ctx context.Context, from string, amount math.Uint) error {
	if err := t.engine.custody.TransferIn(ctx, from, amount); err != nil {
		return err
	}
	t.compensations = append(t.compensations, compensation{
		name:   "refund",
		target: from,
		amount: amount,
		undo: func(ctx context.Context) error {
			return t.engine.custody.TransferOut(ctx, from, amount)
		},
	})
	return nil
}

func (t *txn) transferOut(ctx context.Context, to string, amount math.Uint) error {
	if amount.IsZero() {
		return nil
	}
	if to == "" {
		return vault.ErrEmptyAddress.Wrap("transfer recipient")
	}
	if err := t.engine.custody.TransferOut(ctx, to, amount); err != nil {
		return err
	}
	t.compensations = append(t.compensations, compensation{
		name:   "clawback",
		target: to,
		amount: amount,
		undo: func(ctx context.Context) error {
			return t.engine.custody.TransferIn(ctx, to, amount)
		},
	})
	return nil
}

// compensate reverses completed custody movements, newest first.
func (t *txn) compensate(ctx context.Context) {
	for i := len(t.compensations) - 1; i >= 0; i-- {
		c := t.compensations[i]
		if err := c.undo(ctx); err != nil {
			metrics.IncCompensation(metrics.ResultError)
			t.engine.logger.Error("custody compensation failed",
				zap.String("compensation", c.name),
				zap.String("counterparty", c.target),
				zap.String("amount", c.amount.String()),
				zap.Error(err),
			)
			continue
		}
		metrics.IncCompensation(metrics.ResultSuccess)
	}
}

// run executes fn against a clone of the vault under the engine lock.
// The clone replaces the live vault only when fn and persistence both succeed.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	start := time.Now()
	if e.entered(ctx) {
		err := vault.ErrReentrancy.Wrap(op)
		e.observe(op, start, err)
		return err
	}

	e.mu.Lock()
	tx := &txn{engine: e, working: e.vault.Clone(), now: e.clock.Now()}
	guarded := e.enter(ctx)
	err := fn(guarded, tx)
	if err == nil && !tx.working.Changes().Empty() {
		err = e.repo.Save(guarded, tx.working)
	}
	if err != nil {
		tx.compensate(context.WithoutCancel(guarded))
		e.mu.Unlock()
		e.observe(op, start, err)
		return err
	}
	tx.working.MarkPersisted()
	e.vault = tx.working
	open := e.vault.OpenRequests()
	e.mu.Unlock()

	metrics.SetQueueOpen(e.assetClass, open)
	e.publish(ctx, tx.events)
	e.observe(op, start, nil)
	return nil
}

func (e *Engine) publish(ctx context.Context, events []any) {
	if e.publisher == nil {
		return
	}
	for _, event := range events {
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Error("publish vault event failed", zap.String("event", eventName(event)), zap.Error(err))
		}
	}
}

func (e *Engine) observe(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case failure.KindOf(err) == failure.KindInternal:
		result = metrics.ResultError
		e.logger.Error("vault operation failed", zap.String("operation", op), zap.Error(err))
	default:
		result = metrics.ResultRejected
		e.logger.Debug("vault operation rejected",
			zap.String("operation", op),
			zap.String("code", failure.Code(err)),
			zap.Error(err),
		)
	}
	metrics.ObserveOperation(op, result, time.Since(start))
}
