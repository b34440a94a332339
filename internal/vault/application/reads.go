package application

import (
	"time"

	"cosmossdk.io/math"

	fees "tranche-vault/internal/fees/domain"
	vault "tranche-vault/internal/vault/domain"
)

// Position is a holder's view of the vault.
type Position struct {
	Holder    string          `json:"holder"`
	Balance   math.Uint       `json:"balance"`
	Unlocked  math.Uint       `json:"unlocked"`
	Committed math.Uint       `json:"committed"`
	Tranches  []vault.Tranche `json:"tranches"`
}

// Summary is the vault-level view.
type Summary struct {
	AssetClass        string        `json:"asset_class"`
	TotalAssets       math.Uint     `json:"total_assets"`
	Supply            math.Uint     `json:"supply"`
	PricingSupply     math.Uint     `json:"pricing_supply"`
	LockDuration      time.Duration `json:"lock_duration"`
	OpenRequests      int           `json:"open_requests"`
	LastRequestID     uint64        `json:"last_request_id"`
	HighWaterMark     math.Uint     `json:"high_water_mark"`
	LastFeeCollection time.Time     `json:"last_fee_collection"`
	Fees              fees.Rates    `json:"fees"`
}

// AssetClass returns the engine's asset class.
func (e *Engine) AssetClass() string { return e.assetClass }

// TotalAssets is the oracle-reported valuation, not the custody balance.
func (e *Engine) TotalAssets() (math.Uint, error) {
	return e.nav.Nav(e.assetClass)
}

// Summary returns the vault-level view.
func (e *Engine) Summary() (Summary, error) {
	nav, err := e.TotalAssets()
	if err != nil {
		return Summary{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Summary{
		AssetClass:        e.assetClass,
		TotalAssets:       nav,
		Supply:            e.vault.Supply(),
		PricingSupply:     e.vault.PricingSupply(),
		LockDuration:      e.vault.LockDuration(),
		OpenRequests:      e.vault.OpenRequests(),
		LastRequestID:     e.vault.LastRequestID(),
		HighWaterMark:     e.vault.HighWaterMark(),
		LastFeeCollection: e.vault.LastFeeCollection(),
		Fees:              e.fees.ResolveFees(e.assetClass),
	}, nil
}

// Position returns holder's balance and tranches.
func (e *Engine) Position(holder string) Position {
	now := e.clock.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Position{
		Holder:    holder,
		Balance:   e.vault.BalanceOf(holder),
		Unlocked:  e.vault.UnlockedShares(holder, now),
		Committed: e.vault.CommittedShares(holder),
		Tranches:  e.vault.Tranches(holder),
	}
}

// BalanceOf returns holder's share balance.
func (e *Engine) BalanceOf(holder string) math.Uint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.BalanceOf(holder)
}

// Tranches returns holder's tranches oldest first.
func (e *Engine) Tranches(holder string) []vault.Tranche {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.Tranches(holder)
}

// Request returns a redemption request.
func (e *Engine) Request(id uint64) (vault.Request, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.Request(id)
}

// RequestsByOwner returns owner's requests in id order.
func (e *Engine) RequestsByOwner(owner string) []vault.Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.RequestsByOwner(owner)
}

// ListDue returns every open request due now, scanning all allocated ids.
func (e *Engine) ListDue() []uint64 {
	now := e.clock.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.ListDue(now)
}

// ListDueByOwner returns owner's open requests due now.
func (e *Engine) ListDueByOwner(owner string) []uint64 {
	now := e.clock.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.ListDueByOwner(owner, now)
}

// PreviewRedeem prices shares at the current valuation.
func (e *Engine) PreviewRedeem(shares math.Uint) (math.Uint, error) {
	nav, err := e.TotalAssets()
	if err != nil {
		return math.ZeroUint(), err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return vault.PreviewRedeem(shares, nav, e.vault.PricingSupply()), nil
}

// PreviewDeposit prices assets in shares at the current valuation.
func (e *Engine) PreviewDeposit(assets math.Uint) (math.Uint, error) {
	nav, err := e.TotalAssets()
	if err != nil {
		return math.ZeroUint(), err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return vault.PreviewDeposit(assets, nav, e.vault.PricingSupply())
}

// Snapshot returns the full persisted form of the vault.
func (e *Engine) Snapshot() vault.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vault.Snapshot()
}
