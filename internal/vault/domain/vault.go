package vault

import (
	"sort"
	"time"

	"cosmossdk.io/math"
)

// Vault is the accounting aggregate of one asset class: share supply, balances, tranches and the redemption queue.
// Every mutator keeps each holder's tranche total equal to their balance.
type Vault struct {
	assetClass   string
	lockDuration time.Duration

	supply   math.Uint
	balances map[string]math.Uint
	ledger   *Ledger
	queue    *Queue

	highWaterMark     math.Uint
	lastFeeCollection time.Time

	dirtyHolders  map[string]struct{}
	dirtyRequests map[uint64]struct{}
	stateDirty    bool
	isNew         bool
}

// NewVault creates an empty vault for assetClass.
func NewVault(assetClass string, lockDuration time.Duration) (*Vault, error) {
	if assetClass == "" {
		return nil, ErrEmptyAddress.Wrap("empty asset class")
	}
	if lockDuration < 0 {
		return nil, ErrInvalidLockDuration.Wrapf("lock %s", lockDuration)
	}
	return &Vault{
		assetClass:    assetClass,
		lockDuration:  lockDuration,
		supply:        math.ZeroUint(),
		balances:      make(map[string]math.Uint),
		ledger:        NewLedger(),
		queue:         NewQueue(),
		highWaterMark: math.ZeroUint(),
		dirtyHolders:  make(map[string]struct{}),
		dirtyRequests: make(map[uint64]struct{}),
		stateDirty:    true,
		isNew:         true,
	}, nil
}

// Mint credits shares to holder in a new tranche locked for the vault lock duration.
func (v *Vault) Mint(holder string, shares math.Uint, now time.Time) (Tranche, error) {
	if holder == "" {
		return Tranche{}, ErrEmptyAddress
	}
	if shares.IsZero() {
		return Tranche{}, ErrZeroAmount
	}
	tranche := v.ledger.AddTranche(holder, shares, v.lockDuration, now)
	v.balances[holder] = v.BalanceOf(holder).Add(shares)
	v.supply = v.supply.Add(shares)
	v.touchHolder(holder)
	return tranche, nil
}

// RedeemUnlocked consumes unlocked tranches oldest first and burns the shares.
// On ErrInsufficientShares the tranches may be partially drained; callers discard the vault.
func (v *Vault) RedeemUnlocked(holder string, shares math.Uint, now time.Time) error {
	if shares.IsZero() {
		return ErrZeroAmount
	}
	consumed := v.ledger.ConsumeUnlocked(holder, shares, now)
	v.touchHolder(holder)
	if consumed.LT(shares) {
		return ErrInsufficientShares.Wrapf("holder %s has %s unlocked, needs %s", holder, consumed, shares)
	}
	return v.burn(holder, shares)
}

// RequestEarlyExit consumes tranches regardless of lock, burns the shares and queues the request.
func (v *Vault) RequestEarlyExit(owner, receiver string, shares, gross, penalty math.Uint, now time.Time) (Request, error) {
	if shares.IsZero() {
		return Request{}, ErrZeroAmount
	}
	if owner == "" || receiver == "" {
		return Request{}, ErrEmptyAddress
	}
	if !gross.GT(penalty) {
		return Request{}, ErrPenaltyExceedsProceeds.Wrapf("gross %s, penalty %s", gross, penalty)
	}
	pieces, err := v.ledger.Split(owner, shares)
	if err != nil {
		return Request{}, err
	}
	if err := v.burn(owner, shares); err != nil {
		return Request{}, err
	}
	request, err := v.queue.Enqueue(owner, receiver, shares, gross, penalty, now)
	if err != nil {
		return Request{}, err
	}
	v.queue.attach(request.ID, pieces)
	request.Pieces = pieces
	v.touchHolder(owner)
	v.dirtyRequests[request.ID] = struct{}{}
	return request, nil
}

// Settle processes a due request at the current gross value of its shares.
func (v *Vault) Settle(id uint64, now time.Time, gross math.Uint) (Settlement, error) {
	settlement, err := v.queue.Process(id, now, gross)
	if err != nil {
		return Settlement{}, err
	}
	v.dirtyRequests[id] = struct{}{}
	return settlement, nil
}

// CancelRequest cancels an open request and gives its shares back to the owner.
// The consumed pieces return with their original unlock times. A request without
// recorded pieces is restored as one tranche locked from now.
func (v *Vault) CancelRequest(id uint64, caller string, now time.Time) (Request, []Tranche, error) {
	request, err := v.queue.Cancel(id, caller)
	if err != nil {
		return Request{}, nil, err
	}
	v.dirtyRequests[id] = struct{}{}
	if !piecesTotal(request.Pieces).Equal(request.Shares) {
		tranche, err := v.Mint(request.Owner, request.Shares, now)
		if err != nil {
			return Request{}, nil, err
		}
		return request, []Tranche{tranche}, nil
	}
	restored := append([]Tranche(nil), request.Pieces...)
	v.ledger.Append(request.Owner, restored...)
	v.balances[request.Owner] = v.BalanceOf(request.Owner).Add(request.Shares)
	v.supply = v.supply.Add(request.Shares)
	v.touchHolder(request.Owner)
	return request, restored, nil
}

func piecesTotal(pieces []Tranche) math.Uint {
	total := math.ZeroUint()
	for _, piece := range pieces {
		total = total.Add(piece.Shares)
	}
	return total
}

// TransferShares moves shares from one holder to another, keeping each piece's unlock time.
func (v *Vault) TransferShares(from, to string, shares math.Uint) ([]Tranche, error) {
	if from == "" || to == "" {
		return nil, ErrEmptyAddress
	}
	if from == to {
		return nil, ErrSelfTransfer.Wrapf("holder %s", from)
	}
	if shares.IsZero() {
		return nil, ErrZeroAmount
	}
	pieces, err := v.ledger.Split(from, shares)
	if err != nil {
		return nil, err
	}
	v.ledger.Append(to, pieces...)
	v.balances[from] = v.BalanceOf(from).Sub(shares)
	v.balances[to] = v.BalanceOf(to).Add(shares)
	v.touchHolder(from)
	v.touchHolder(to)
	return pieces, nil
}

// RecordFeeCollection stores the collection time and the new high-water mark.
func (v *Vault) RecordFeeCollection(now time.Time, highWaterMark math.Uint) {
	v.lastFeeCollection = now
	v.highWaterMark = highWaterMark
	v.stateDirty = true
}

func (v *Vault) burn(holder string, shares math.Uint) error {
	balance := v.BalanceOf(holder)
	if balance.LT(shares) {
		return ErrInsufficientShares.Wrapf("holder %s balance %s, needs %s", holder, balance, shares)
	}
	v.balances[holder] = balance.Sub(shares)
	v.supply = v.supply.Sub(shares)
	v.touchHolder(holder)
	return nil
}

func (v *Vault) touchHolder(holder string) {
	v.dirtyHolders[holder] = struct{}{}
	v.stateDirty = true
}

// AssetClass returns the vault's asset class.
func (v *Vault) AssetClass() string { return v.assetClass }

// LockDuration returns the lock applied to new tranches.
func (v *Vault) LockDuration() time.Duration { return v.lockDuration }

// Supply returns the total share supply.
func (v *Vault) Supply() math.Uint { return v.supply }

// PricingSupply is the supply used for conversions: live shares plus shares burned into open requests.
// Queued shares keep their claim on the reported valuation until they settle or are cancelled.
func (v *Vault) PricingSupply() math.Uint {
	return v.supply.Add(v.queue.PendingShares())
}

// BalanceOf returns holder's share balance.
func (v *Vault) BalanceOf(holder string) math.Uint {
	if balance, ok := v.balances[holder]; ok {
		return balance
	}
	return math.ZeroUint()
}

// HighWaterMark returns the NAV at which the performance fee was last charged.
func (v *Vault) HighWaterMark() math.Uint { return v.highWaterMark }

// LastFeeCollection returns when fees were last collected. Zero means never.
func (v *Vault) LastFeeCollection() time.Time { return v.lastFeeCollection }

// Tranches returns holder's tranches oldest first.
func (v *Vault) Tranches(holder string) []Tranche { return v.ledger.Tranches(holder) }

// UnlockedShares returns holder's shares redeemable through the standard path at now.
func (v *Vault) UnlockedShares(holder string, now time.Time) math.Uint {
	return v.ledger.Unlocked(holder, now)
}

// TrancheTotal sums holder's tranches.
func (v *Vault) TrancheTotal(holder string) math.Uint { return v.ledger.Total(holder) }

// Holders lists holders with a balance record, sorted.
func (v *Vault) Holders() []string {
	out := make([]string, 0, len(v.balances))
	for holder := range v.balances {
		out = append(out, holder)
	}
	sort.Strings(out)
	return out
}

// Request returns the redemption request with id.
func (v *Vault) Request(id uint64) (Request, bool) { return v.queue.Get(id) }

// RequestsByOwner returns owner's requests in id order.
func (v *Vault) RequestsByOwner(owner string) []Request { return v.queue.ByOwner(owner) }

// CheckDue validates that request id can be settled at now.
func (v *Vault) CheckDue(id uint64, now time.Time) (Request, error) { return v.queue.CheckDue(id, now) }

// ListDue returns open requests due at now, scanning every allocated id.
func (v *Vault) ListDue(now time.Time) []uint64 { return v.queue.ListDue(now) }

// ListDueByOwner returns owner's open requests due at now.
func (v *Vault) ListDueByOwner(owner string, now time.Time) []uint64 {
	return v.queue.ListDueByOwner(owner, now)
}

// OpenRequests counts requests awaiting settlement.
func (v *Vault) OpenRequests() int { return v.queue.Open() }

// CommittedShares sums the shares of owner's open requests.
func (v *Vault) CommittedShares(owner string) math.Uint { return v.queue.OpenShares(owner) }

// LastRequestID is the highest request id allocated.
func (v *Vault) LastRequestID() uint64 { return v.queue.LastID() }

// IsNew reports whether the vault was never persisted.
func (v *Vault) IsNew() bool { return v.isNew }

// MarkPersisted clears change tracking.
func (v *Vault) MarkPersisted() {
	if v == nil {
		return
	}
	v.isNew = false
	v.stateDirty = false
	v.dirtyHolders = make(map[string]struct{})
	v.dirtyRequests = make(map[uint64]struct{})
}

// Clone returns a deep copy including change tracking.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	out.balances = make(map[string]math.Uint, len(v.balances))
	for holder, balance := range v.balances {
		out.balances[holder] = balance
	}
	out.ledger = v.ledger.Clone()
	out.queue = v.queue.Clone()
	out.dirtyHolders = make(map[string]struct{}, len(v.dirtyHolders))
	for holder := range v.dirtyHolders {
		out.dirtyHolders[holder] = struct{}{}
	}
	out.dirtyRequests = make(map[uint64]struct{}, len(v.dirtyRequests))
	for id := range v.dirtyRequests {
		out.dirtyRequests[id] = struct{}{}
	}
	return &out
}
