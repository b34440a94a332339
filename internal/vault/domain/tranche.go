package vault

import (
	"sort"
	"time"

	"cosmossdk.io/math"
)

// Tranche is a block of shares that unlocks at UnlockAt.
type Tranche struct {
	Shares   math.Uint `json:"shares"`
	UnlockAt time.Time `json:"unlock_at"`
}

// Unlocked reports whether the tranche may be consumed by a standard redemption at now.
func (t Tranche) Unlocked(now time.Time) bool {
	return !t.UnlockAt.After(now)
}

// Ledger keeps each holder's tranches oldest first. Sequences only grow; drained tranches stay at zero.
type Ledger struct {
	holders map[string][]Tranche
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{holders: make(map[string][]Tranche)}
}

// AddTranche appends a tranche of shares unlocking at now+lock.
func (l *Ledger) AddTranche(holder string, shares math.Uint, lock time.Duration, now time.Time) Tranche {
	tranche := Tranche{Shares: shares, UnlockAt: now.Add(lock)}
	l.holders[holder] = append(l.holders[holder], tranche)
	return tranche
}

// Append appends pieces to holder in order, keeping their unlock times.
func (l *Ledger) Append(holder string, pieces ...Tranche) {
	for _, piece := range pieces {
		if piece.Shares.IsZero() {
			continue
		}
		l.holders[holder] = append(l.holders[holder], piece)
	}
}

// ConsumeUnlocked drains unlocked tranches oldest first until needed is reached.
// It returns the amount consumed, which is less than needed when unlocked shares run out.
// Consumption is not rolled back on a shortfall.
func (l *Ledger) ConsumeUnlocked(holder string, needed math.Uint, now time.Time) math.Uint {
	consumed := math.ZeroUint()
	tranches := l.holders[holder]
	for i := range tranches {
		if consumed.Equal(needed) {
			break
		}
		if tranches[i].Shares.IsZero() || !tranches[i].Unlocked(now) {
			continue
		}
		take := math.MinUint(needed.Sub(consumed), tranches[i].Shares)
		tranches[i].Shares = tranches[i].Shares.Sub(take)
		consumed = consumed.Add(take)
	}
	return consumed
}

// ConsumeAny drains tranches oldest first regardless of lock.
// Nothing is mutated when the holder's total is below needed.
func (l *Ledger) ConsumeAny(holder string, needed math.Uint) error {
	_, err := l.Split(holder, needed)
	return err
}

// Split drains tranches oldest first regardless of lock and returns the drained pieces with their unlock times.
func (l *Ledger) Split(holder string, needed math.Uint) ([]Tranche, error) {
	total := l.Total(holder)
	if total.LT(needed) {
		return nil, ErrInsufficientShares.Wrapf("holder %s has %s, needs %s", holder, total, needed)
	}
	var pieces []Tranche
	remaining := needed
	tranches := l.holders[holder]
	for i := range tranches {
		if remaining.IsZero() {
			break
		}
		if tranches[i].Shares.IsZero() {
			continue
		}
		take := math.MinUint(remaining, tranches[i].Shares)
		tranches[i].Shares = tranches[i].Shares.Sub(take)
		remaining = remaining.Sub(take)
		pieces = append(pieces, Tranche{Shares: take, UnlockAt: tranches[i].UnlockAt})
	}
	return pieces, nil
}

// Tranches returns a copy of holder's tranches, oldest first.
func (l *Ledger) Tranches(holder string) []Tranche {
	return append([]Tranche(nil), l.holders[holder]...)
}

// Total sums all of holder's tranches.
func (l *Ledger) Total(holder string) math.Uint {
	total := math.ZeroUint()
	for _, tranche := range l.holders[holder] {
		total = total.Add(tranche.Shares)
	}
	return total
}

// Unlocked sums holder's tranches unlocked at now.
func (l *Ledger) Unlocked(holder string, now time.Time) math.Uint {
	total := math.ZeroUint()
	for _, tranche := range l.holders[holder] {
		if tranche.Unlocked(now) {
			total = total.Add(tranche.Shares)
		}
	}
	return total
}

// Holders lists every holder with at least one tranche, sorted.
func (l *Ledger) Holders() []string {
	out := make([]string, 0, len(l.holders))
	for holder := range l.holders {
		out = append(out, holder)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	for holder, tranches := range l.holders {
		out.holders[holder] = append([]Tranche(nil), tranches...)
	}
	return out
}
