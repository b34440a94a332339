package eligibility

import (
	"context"

	"tranche-vault/internal/failure"
)

const codespace = "eligibility"

// AnyAssetClass matches every asset class in an allow-list entry.
const AnyAssetClass = "*"

var (
	// ErrEmptyAddress is returned when an entry has no address.
	ErrEmptyAddress = failure.Register(codespace, 2, "empty address", failure.KindValidation)
	// ErrEmptyAssetClass is returned when an entry has no asset class.
	ErrEmptyAssetClass = failure.Register(codespace, 3, "empty asset class", failure.KindValidation)
	// ErrUnauthorized is returned when the caller may not edit the allow-list.
	ErrUnauthorized = failure.Register(codespace, 4, "unauthorized", failure.KindAuthorization)
)

// Entry grants address access to assetClass.
type Entry struct {
	AssetClass string
	Address    string
}

// Validate checks entry fields.
func (e Entry) Validate() error {
	if e.AssetClass == "" {
		return ErrEmptyAssetClass
	}
	if e.Address == "" {
		return ErrEmptyAddress
	}
	return nil
}

// Store is an editable allow-list.
type Store interface {
	Allow(ctx context.Context, entry Entry) error
	Revoke(ctx context.Context, entry Entry) error
	IsEligible(ctx context.Context, assetClass, address string) (bool, error)
	Entries(ctx context.Context, assetClass string) ([]string, error)
}

// AllowAll admits every address. Intended for development setups.
type AllowAll struct{}

// IsEligible always reports true.
func (AllowAll) IsEligible(context.Context, string, string) (bool, error) { return true, nil }
