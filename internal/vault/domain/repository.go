package vault

import "context"

// Repository persists vault aggregates.
type Repository interface {
	// Load returns nil without error when no vault exists for assetClass.
	Load(ctx context.Context, assetClass string) (*Vault, error)
	Save(ctx context.Context, v *Vault) error
}
