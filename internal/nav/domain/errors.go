package nav

import "tranche-vault/internal/failure"

const codespace = "nav"

var (
	// ErrUnknownAssetClass is returned for an asset class that was never registered.
	ErrUnknownAssetClass = failure.Register(codespace, 2, "unknown asset class", failure.KindNotFound)
	// ErrAlreadyRegistered is returned when registering an asset class twice.
	ErrAlreadyRegistered = failure.Register(codespace, 3, "asset class already registered", failure.KindState)
	// ErrAssetClassInactive is returned when updating an inactive asset class.
	ErrAssetClassInactive = failure.Register(codespace, 4, "asset class inactive", failure.KindState)
	// ErrChangeExceedsThreshold is returned when a NAV move is larger than the change threshold.
	ErrChangeExceedsThreshold = failure.Register(codespace, 5, "nav change exceeds threshold", failure.KindState)
	// ErrUnauthorized is returned when the caller may not perform the operation.
	ErrUnauthorized = failure.Register(codespace, 6, "unauthorized", failure.KindAuthorization)
	// ErrZeroNav is returned when a zero valuation is submitted.
	ErrZeroNav = failure.Register(codespace, 7, "zero nav", failure.KindValidation)
	// ErrEmptyAssetClass is returned when an asset class name is empty.
	ErrEmptyAssetClass = failure.Register(codespace, 8, "empty asset class", failure.KindValidation)
	// ErrEmptyAddress is returned when an updater address is empty.
	ErrEmptyAddress = failure.Register(codespace, 9, "empty address", failure.KindValidation)
	// ErrInvalidThreshold is returned for a change threshold above 100% or a non-positive staleness window.
	ErrInvalidThreshold = failure.Register(codespace, 10, "invalid threshold", failure.KindValidation)
)
