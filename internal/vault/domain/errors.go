package vault

import "tranche-vault/internal/failure"

const codespace = "vault"

var (
	ErrZeroAmount             = failure.Register(codespace, 2, "zero amount", failure.KindValidation)
	ErrEmptyAddress           = failure.Register(codespace, 3, "empty address", failure.KindValidation)
	ErrZeroValuation          = failure.Register(codespace, 4, "zero valuation with outstanding shares", failure.KindValidation)
	ErrInsufficientShares     = failure.Register(codespace, 5, "insufficient shares", failure.KindInsufficient)
	ErrInsufficientLiquidity  = failure.Register(codespace, 6, "insufficient liquidity", failure.KindInsufficient)
	ErrUnknownRequest         = failure.Register(codespace, 7, "unknown redemption request", failure.KindNotFound)
	ErrAlreadyProcessed       = failure.Register(codespace, 8, "redemption already processed", failure.KindState)
	ErrAlreadyCancelled       = failure.Register(codespace, 9, "redemption already cancelled", failure.KindState)
	ErrNotYetDue              = failure.Register(codespace, 10, "redemption not yet due", failure.KindState)
	ErrPenaltyExceedsProceeds = failure.Register(codespace, 11, "penalty exceeds proceeds", failure.KindState)
	ErrNotOwner               = failure.Register(codespace, 12, "caller is not the owner", failure.KindAuthorization)
	ErrUnauthorized           = failure.Register(codespace, 13, "unauthorized", failure.KindAuthorization)
	ErrNotEligible            = failure.Register(codespace, 14, "address not eligible", failure.KindAuthorization)
	ErrReentrancy             = failure.Register(codespace, 15, "reentrant call", failure.KindState)
	ErrInsufficientFunds      = failure.Register(codespace, 16, "insufficient funds", failure.KindInsufficient)
	ErrTreasuryRejected       = failure.Register(codespace, 17, "treasury rejected deployment", failure.KindState)
	ErrInvalidLockDuration    = failure.Register(codespace, 18, "invalid lock duration", failure.KindValidation)
	ErrSelfTransfer           = failure.Register(codespace, 19, "transfer to self", failure.KindValidation)
	ErrAssetClassMismatch     = failure.Register(codespace, 20, "asset class mismatch", failure.KindValidation)
	ErrUnknownVault           = failure.Register(codespace, 21, "unknown vault", failure.KindNotFound)
)
