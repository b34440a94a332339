package memory

import (
	"context"
	"errors"
	"sync"

	vault "tranche-vault/internal/vault/domain"
)

// Repository keeps one snapshot per asset class.
type Repository struct {
	mu        sync.RWMutex
	snapshots map[string]vault.Snapshot
	saves     int
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{snapshots: make(map[string]vault.Snapshot)}
}

// Load restores the vault for assetClass, or nil when none was saved.
func (r *Repository) Load(_ context.Context, assetClass string) (*vault.Vault, error) {
	r.mu.RLock()
	snapshot, ok := r.snapshots[assetClass]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return vault.Restore(snapshot)
}

// Save stores a full snapshot of v.
func (r *Repository) Save(_ context.Context, v *vault.Vault) error {
	if v == nil {
		return errors.New("vault repo: nil vault")
	}
	snapshot := v.Snapshot()
	r.mu.Lock()
	r.snapshots[snapshot.State.AssetClass] = snapshot
	r.saves++
	r.mu.Unlock()
	return nil
}

// Saves reports how many times Save succeeded.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
