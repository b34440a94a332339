package memory

import (
	"context"
	"sort"
	"sync"

	eligibility "tranche-vault/internal/eligibility/domain"
)

// AllowList is an in-memory eligibility gate.
type AllowList struct {
	mu      sync.RWMutex
	entries map[string]map[string]struct{}
}

// NewAllowList constructs an allow-list seeded with entries.
func NewAllowList(entries ...eligibility.Entry) (*AllowList, error) {
	l := &AllowList{entries: make(map[string]map[string]struct{})}
	for _, entry := range entries {
		if err := l.Allow(context.Background(), entry); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Allow admits an address.
func (l *AllowList) Allow(_ context.Context, entry eligibility.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.entries[entry.AssetClass]
	if !ok {
		set = make(map[string]struct{})
		l.entries[entry.AssetClass] = set
	}
	set[entry.Address] = struct{}{}
	return nil
}

// Revoke removes an address.
func (l *AllowList) Revoke(_ context.Context, entry eligibility.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries[entry.AssetClass], entry.Address)
	return nil
}

// IsEligible reports whether address is listed for assetClass or for every class.
func (l *AllowList) IsEligible(_ context.Context, assetClass, address string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.entries[assetClass][address]; ok {
		return true, nil
	}
	_, ok := l.entries[eligibility.AnyAssetClass][address]
	return ok, nil
}

// Entries lists allowed addresses for assetClass, sorted.
func (l *AllowList) Entries(_ context.Context, assetClass string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.entries[assetClass]))
	for address := range l.entries[assetClass] {
		out = append(out, address)
	}
	sort.Strings(out)
	return out, nil
}
