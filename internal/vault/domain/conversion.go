package vault

import "cosmossdk.io/math"

// PreviewRedeem converts shares to underlying at the given valuation.
// With no supply the shares amount is returned unchanged.
func PreviewRedeem(shares, totalAssets, supply math.Uint) math.Uint {
	if supply.IsZero() {
		return shares
	}
	return shares.Mul(totalAssets).Quo(supply)
}

// PreviewDeposit converts underlying to shares at the given valuation.
// With no supply the assets amount is returned unchanged.
func PreviewDeposit(assets, totalAssets, supply math.Uint) (math.Uint, error) {
	if supply.IsZero() {
		return assets, nil
	}
	if totalAssets.IsZero() {
		return math.ZeroUint(), ErrZeroValuation.Wrapf("supply %s", supply)
	}
	return assets.Mul(supply).Quo(totalAssets), nil
}
