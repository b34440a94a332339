package vault

import (
	"sort"
	"time"

	"cosmossdk.io/math"
)

// State is the vault-level row.
type State struct {
	AssetClass        string
	LockDuration      time.Duration
	Supply            math.Uint
	HighWaterMark     math.Uint
	LastFeeCollection time.Time
}

// HolderState is one holder's balance and tranches.
type HolderState struct {
	Holder   string
	Balance  math.Uint
	Tranches []Tranche
}

// Changes lists what a repository must write since the last MarkPersisted.
type Changes struct {
	IsNew    bool
	State    *State
	Holders  []HolderState
	Requests []Request
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.IsNew && c.State == nil && len(c.Holders) == 0 && len(c.Requests) == 0
}

// Snapshot is the complete persisted form of a vault.
type Snapshot struct {
	State    State
	Holders  []HolderState
	Requests []Request
}

// State returns the vault-level row.
func (v *Vault) State() State {
	return State{
		AssetClass:        v.assetClass,
		LockDuration:      v.lockDuration,
		Supply:            v.supply,
		HighWaterMark:     v.highWaterMark,
		LastFeeCollection: v.lastFeeCollection,
	}
}

// Changes returns the rows touched since the last MarkPersisted, in a stable order.
func (v *Vault) Changes() Changes {
	changes := Changes{IsNew: v.isNew}
	if v.stateDirty || v.isNew {
		state := v.State()
		changes.State = &state
	}
	holders := make([]string, 0, len(v.dirtyHolders))
	for holder := range v.dirtyHolders {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	for _, holder := range holders {
		changes.Holders = append(changes.Holders, v.holderState(holder))
	}
	ids := make([]uint64, 0, len(v.dirtyRequests))
	for id := range v.dirtyRequests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if request, ok := v.queue.Get(id); ok {
			changes.Requests = append(changes.Requests, request)
		}
	}
	return changes
}

// Snapshot returns the full persisted form.
func (v *Vault) Snapshot() Snapshot {
	snapshot := Snapshot{State: v.State()}
	holders := v.ledger.Holders()
	seen := make(map[string]struct{}, len(holders))
	for _, holder := range holders {
		seen[holder] = struct{}{}
	}
	for holder := range v.balances {
		if _, ok := seen[holder]; !ok {
			holders = append(holders, holder)
		}
	}
	sort.Strings(holders)
	for _, holder := range holders {
		snapshot.Holders = append(snapshot.Holders, v.holderState(holder))
	}
	for id := uint64(1); id <= v.queue.LastID(); id++ {
		request, _ := v.queue.Get(id)
		snapshot.Requests = append(snapshot.Requests, request)
	}
	return snapshot
}

func (v *Vault) holderState(holder string) HolderState {
	return HolderState{
		Holder:   holder,
		Balance:  v.BalanceOf(holder),
		Tranches: v.ledger.Tranches(holder),
	}
}

// Restore rebuilds a persisted vault. Requests must be ordered by id without gaps.
func Restore(snapshot Snapshot) (*Vault, error) {
	v, err := NewVault(snapshot.State.AssetClass, snapshot.State.LockDuration)
	if err != nil {
		return nil, err
	}
	v.supply = orZero(snapshot.State.Supply)
	v.highWaterMark = orZero(snapshot.State.HighWaterMark)
	v.lastFeeCollection = snapshot.State.LastFeeCollection
	for _, holder := range snapshot.Holders {
		v.balances[holder.Holder] = orZero(holder.Balance)
		v.ledger.holders[holder.Holder] = append([]Tranche(nil), holder.Tranches...)
	}
	for _, request := range snapshot.Requests {
		if err := v.queue.restore(request); err != nil {
			return nil, err
		}
	}
	v.MarkPersisted()
	return v, nil
}

func orZero(value math.Uint) math.Uint {
	if value == (math.Uint{}) {
		return math.ZeroUint()
	}
	return value
}
