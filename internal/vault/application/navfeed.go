package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	nav "tranche-vault/internal/nav/domain"
	"tranche-vault/internal/observability/metrics"
)

// NavFeed forwards stored oracle updates as NavUpdated events.
type NavFeed struct {
	publisher EventPublisher
	logger    *zap.Logger
}

// NewNavFeed constructs a feed. A nil publisher only records metrics.
func NewNavFeed(publisher EventPublisher, logger *zap.Logger) *NavFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NavFeed{publisher: publisher, logger: logger}
}

// NavUpdated implements nav.Listener.
func (f *NavFeed) NavUpdated(ctx context.Context, update nav.Updated) {
	metrics.IncNavUpdate(update.AssetClass, metrics.ResultSuccess)
	metrics.ObserveNavAge(update.AssetClass, 0)
	f.logger.Info("nav updated",
		zap.String("asset_class", update.AssetClass),
		zap.String("previous", update.Previous.String()),
		zap.String("nav", update.Nav.String()),
		zap.String("updated_by", update.UpdatedBy),
	)
	if f.publisher == nil {
		return
	}
	event := NavUpdated{
		AssetClass: update.AssetClass,
		Previous:   update.Previous,
		Nav:        update.Nav,
		UpdatedBy:  update.UpdatedBy,
		OccurredAt: update.At,
	}
	if err := f.publisher.Publish(ctx, event); err != nil {
		f.logger.Error("publish nav event failed", zap.String("asset_class", update.AssetClass), zap.Error(err))
	}
}

// RecordNavAge refreshes the NAV age gauge of every record at now.
func RecordNavAge(records []nav.Record, now time.Time) {
	for _, record := range records {
		if record.LastUpdated.IsZero() {
			continue
		}
		metrics.ObserveNavAge(record.AssetClass, now.Sub(record.LastUpdated))
	}
}
