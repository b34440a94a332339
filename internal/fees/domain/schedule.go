package fees

import (
	"context"
	"errors"

	"github.com/sasha-s/go-deadlock"

	"tranche-vault/internal/access"
)

// Repository persists the fee schedule.
type Repository interface {
	LoadSchedule(ctx context.Context) (global Params, classes map[string]Params, found bool, err error)
	SaveGlobal(ctx context.Context, params Params) error
	SaveAssetClass(ctx context.Context, assetClass string, params Params) error
}

// Schedule holds the global fee record and per-asset-class overrides.
type Schedule struct {
	mu      deadlock.RWMutex
	global  Params
	classes map[string]Params
	repo    Repository
}

// NewSchedule constructs a schedule with the given global defaults.
// A nil repository keeps the schedule in memory only.
func NewSchedule(global Params, repo Repository) (*Schedule, error) {
	if err := global.Rates.Validate(); err != nil {
		return nil, err
	}
	if err := global.Recipients.complete(); err != nil {
		return nil, err
	}
	global.IsSet = true
	return &Schedule{global: global, classes: make(map[string]Params), repo: repo}, nil
}

// Restore loads persisted records, replacing the defaults when a stored global exists.
func (s *Schedule) Restore(ctx context.Context) error {
	if s == nil {
		return errors.New("fee schedule: nil schedule")
	}
	if s.repo == nil {
		return nil
	}
	global, classes, found, err := s.repo.LoadSchedule(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if found {
		global.IsSet = true
		s.global = global
	}
	for class, params := range classes {
		s.classes[class] = params
	}
	return nil
}

// SetGlobal overwrites the global record.
func (s *Schedule) SetGlobal(ctx context.Context, caller access.Caller, params Params) error {
	if !caller.Has(access.CapFeesAdmin) {
		return ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if err := params.Rates.Validate(); err != nil {
		return err
	}
	if err := params.Recipients.complete(); err != nil {
		return err
	}
	params.IsSet = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		if err := s.repo.SaveGlobal(ctx, params); err != nil {
			return err
		}
	}
	s.global = params
	return nil
}

// SetAssetClass writes an asset-class override. Empty recipients inherit the global ones.
func (s *Schedule) SetAssetClass(ctx context.Context, caller access.Caller, assetClass string, params Params) error {
	if !caller.Has(access.CapFeesAdmin) {
		return ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if assetClass == "" {
		return ErrEmptyAssetClass
	}
	if err := params.Rates.Validate(); err != nil {
		return err
	}
	params.IsSet = true
	return s.putClass(ctx, assetClass, params)
}

// ClearAssetClass reverts an asset class to the global record.
func (s *Schedule) ClearAssetClass(ctx context.Context, caller access.Caller, assetClass string) error {
	if !caller.Has(access.CapFeesAdmin) {
		return ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if assetClass == "" {
		return ErrEmptyAssetClass
	}
	return s.putClass(ctx, assetClass, Params{})
}

func (s *Schedule) putClass(ctx context.Context, assetClass string, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		if err := s.repo.SaveAssetClass(ctx, assetClass, params); err != nil {
			return err
		}
	}
	s.classes[assetClass] = params
	return nil
}

// ResolveFees returns the rates that apply to assetClass.
func (s *Schedule) ResolveFees(assetClass string) Rates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if params, ok := s.classes[assetClass]; ok && params.IsSet {
		return params.Rates
	}
	return s.global.Rates
}

// ResolveRecipients returns the recipients that apply to assetClass.
func (s *Schedule) ResolveRecipients(assetClass string) Recipients {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if params, ok := s.classes[assetClass]; ok && params.IsSet {
		return params.Recipients.inherit(s.global.Recipients)
	}
	return s.global.Recipients
}

// Global returns the global record.
func (s *Schedule) Global() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// AssetClass returns the raw asset-class record, if any.
func (s *Schedule) AssetClass(assetClass string) (Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	params, ok := s.classes[assetClass]
	return params, ok
}
