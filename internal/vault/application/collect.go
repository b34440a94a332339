package application

import (
	"context"
	"time"

	"cosmossdk.io/math"

	"tranche-vault/internal/access"
	vault "tranche-vault/internal/vault/domain"
)

// FeeCollection is the result of a fee run.
type FeeCollection struct {
	Nav           math.Uint
	Management    math.Uint
	Performance   math.Uint
	HighWaterMark math.Uint
	Elapsed       time.Duration
}

// CollectFees charges the management fee pro rata since the last run and the performance fee on NAV above the high-water mark.
// The first run only records the starting point.
func (e *Engine) CollectFees(ctx context.Context, caller access.Caller) (FeeCollection, error) {
	if !caller.Has(access.CapVaultOperator) {
		return FeeCollection{}, vault.ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	var result FeeCollection
	err := e.run(ctx, "collect_fees", func(ctx context.Context, tx *txn) error {
		nav, err := e.nav.Nav(e.assetClass)
		if err != nil {
			return err
		}
		result = FeeCollection{
			Nav:           nav,
			Management:    math.ZeroUint(),
			Performance:   math.ZeroUint(),
			HighWaterMark: tx.working.HighWaterMark(),
		}

		last := tx.working.LastFeeCollection()
		if !last.IsZero() && tx.now.After(last) {
			result.Elapsed = tx.now.Sub(last)
			result.Management, err = e.fees.ManagementFeeFor(e.assetClass, nav, result.Elapsed)
			if err != nil {
				return err
			}
			if !result.HighWaterMark.IsZero() && nav.GT(result.HighWaterMark) {
				result.Performance = e.fees.PerformanceFeeFor(e.assetClass, nav.Sub(result.HighWaterMark))
			}
		}
		if nav.GT(result.HighWaterMark) {
			result.HighWaterMark = nav
		}

		total := result.Management.Add(result.Performance)
		if !total.IsZero() {
			if err := e.requireLiquidity(ctx, total); err != nil {
				return err
			}
			recipients := e.fees.ResolveRecipients(e.assetClass)
			if err := tx.transferOut(ctx, recipients.Management, result.Management); err != nil {
				return err
			}
			if err := tx.transferOut(ctx, recipients.Performance, result.Performance); err != nil {
				return err
			}
		}
		tx.working.RecordFeeCollection(tx.now, result.HighWaterMark)
		tx.emit(FeesCollected{
			AssetClass:    e.assetClass,
			Nav:           nav,
			Management:    result.Management,
			Performance:   result.Performance,
			HighWaterMark: result.HighWaterMark,
			Elapsed:       result.Elapsed.String(),
			OccurredAt:    tx.now,
		})
		return nil
	})
	return result, err
}
