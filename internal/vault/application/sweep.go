package application

import (
	"context"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"tranche-vault/internal/access"
	vault "tranche-vault/internal/vault/domain"
)

// SweepToTreasury moves surplus custody balance to the treasury and trusts its acknowledgement.
// A rejected deployment is clawed back.
func (e *Engine) SweepToTreasury(ctx context.Context, caller access.Caller, amount math.Uint) (Deployment, error) {
	if !caller.Has(access.CapVaultOperator) {
		return Deployment{}, vault.ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if amount.IsZero() {
		return Deployment{}, vault.ErrZeroAmount
	}
	if e.treasury == nil {
		return Deployment{}, vault.ErrTreasuryRejected.Wrap("no treasury configured")
	}
	var deployment Deployment
	err := e.run(ctx, "sweep_to_treasury", func(ctx context.Context, tx *txn) error {
		if err := e.requireLiquidity(ctx, amount); err != nil {
			return err
		}
		deployment = Deployment{
			ID:         uuid.NewString(),
			AssetClass: e.assetClass,
			Account:    e.treasury.Account(),
			Amount:     amount,
			At:         tx.now,
		}
		if err := tx.transferOut(ctx, deployment.Account, amount); err != nil {
			return err
		}
		if err := e.treasury.Receive(ctx, deployment); err != nil {
			return vault.ErrTreasuryRejected.Wrapf("deployment %s: %v", deployment.ID, err)
		}
		tx.emit(TreasurySwept{
			AssetClass:   e.assetClass,
			DeploymentID: deployment.ID,
			Account:      deployment.Account,
			Amount:       amount,
			OccurredAt:   tx.now,
		})
		return nil
	})
	return deployment, err
}
