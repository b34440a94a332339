package fees

import "tranche-vault/internal/failure"

const codespace = "fees"

var (
	// ErrFeeTooHigh is returned when a rate exceeds its bound.
	ErrFeeTooHigh = failure.Register(codespace, 2, "fee rate exceeds bound", failure.KindValidation)
	// ErrEmptyRecipient is returned when a global recipient is empty.
	ErrEmptyRecipient = failure.Register(codespace, 3, "empty fee recipient", failure.KindValidation)
	// ErrEmptyAssetClass is returned when an asset class name is empty.
	ErrEmptyAssetClass = failure.Register(codespace, 4, "empty asset class", failure.KindValidation)
	// ErrUnauthorized is returned when the caller lacks the fee admin capability.
	ErrUnauthorized = failure.Register(codespace, 5, "unauthorized", failure.KindAuthorization)
	// ErrInvalidYear is returned when a zero year length is used for pro-ration.
	ErrInvalidYear = failure.Register(codespace, 6, "invalid year length", failure.KindValidation)
)
