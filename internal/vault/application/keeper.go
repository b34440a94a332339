package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tranche-vault/internal/access"
)

// BatchProcessor is the part of the engine the keeper drives.
type BatchProcessor interface {
	AssetClass() string
	ListDue() []uint64
	ProcessBatch(ctx context.Context, caller access.Caller, ids []uint64) (BatchResult, error)
}

// Keeper settles due redemptions on a fixed interval.
type Keeper struct {
	engines  []BatchProcessor
	operator access.Caller
	interval time.Duration
	limit    int
	logger   *zap.Logger

	mu sync.Mutex
	// skipped holds, per asset class, due ids the last batches could not settle.
	// They are retried once every other due id has had a turn.
	skipped map[string]map[uint64]struct{}
}

// NewKeeper constructs a Keeper. limit caps ids per engine per tick; zero means no cap.
func NewKeeper(engines []BatchProcessor, operator access.Caller, interval time.Duration, limit int, logger *zap.Logger) *Keeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Keeper{
		engines:  engines,
		operator: operator,
		interval: interval,
		limit:    limit,
		logger:   logger,
		skipped:  make(map[string]map[uint64]struct{}),
	}
}

// Start runs the keeper loop until ctx is cancelled.
func (k *Keeper) Start(ctx context.Context) {
	if k == nil || len(k.engines) == 0 {
		return
	}
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.RunOnce(ctx)
		}
	}
}

// RunOnce processes the due requests of every engine once.
func (k *Keeper) RunOnce(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, engine := range k.engines {
		class := engine.AssetClass()
		due := k.nextBatch(class, engine.ListDue())
		if len(due) == 0 {
			continue
		}
		result, err := engine.ProcessBatch(ctx, k.operator, due)
		if err != nil {
			k.logger.Error("keeper batch failed", zap.String("asset_class", class), zap.Error(err))
			continue
		}
		for _, skip := range result.Skipped {
			k.skipped[class][skip.ID] = struct{}{}
		}
		k.logger.Info("keeper batch processed",
			zap.String("asset_class", class),
			zap.Int("processed", len(result.Processed)),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
}

// nextBatch picks up to limit due ids, preferring ids not skipped before.
// When only skipped ids remain the skip set is reset and they are retried.
func (k *Keeper) nextBatch(class string, due []uint64) []uint64 {
	skipped := k.skipped[class]
	fresh := make([]uint64, 0, len(due))
	stillDue := make(map[uint64]struct{}, len(skipped))
	for _, id := range due {
		if _, ok := skipped[id]; ok {
			stillDue[id] = struct{}{}
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		fresh = due
		stillDue = make(map[uint64]struct{})
	}
	k.skipped[class] = stillDue
	if k.limit > 0 && len(fresh) > k.limit {
		fresh = fresh[:k.limit]
	}
	return fresh
}
