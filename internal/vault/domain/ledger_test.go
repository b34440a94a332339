package vault

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func requireUint(t *testing.T, expected uint64, actual math.Uint) {
	t.Helper()
	require.Equal(t, math.NewUint(expected).String(), actual.String())
}

func trancheShares(tranches []Tranche) []string {
	out := make([]string, 0, len(tranches))
	for _, tranche := range tranches {
		out = append(out, tranche.Shares.String())
	}
	return out
}

func TestLedger_ConsumeUnlockedIsFIFOIncludingTies(t *testing.T) {
	l := NewLedger()
	l.AddTranche("alice", math.NewUint(100), 0, t0)
	l.AddTranche("alice", math.NewUint(50), 0, t0)
	l.AddTranche("alice", math.NewUint(70), 0, t0)

	consumed := l.ConsumeUnlocked("alice", math.NewUint(120), t0)
	requireUint(t, 120, consumed)
	require.Equal(t, []string{"0", "30", "70"}, trancheShares(l.Tranches("alice")))
}

func TestLedger_ConsumeUnlockedSkipsLockedTranches(t *testing.T) {
	l := NewLedger()
	l.AddTranche("alice", math.NewUint(100), 48*time.Hour, t0)
	l.AddTranche("alice", math.NewUint(40), 0, t0)
	l.AddTranche("alice", math.NewUint(60), time.Hour, t0)

	consumed := l.ConsumeUnlocked("alice", math.NewUint(80), t0.Add(time.Hour))
	requireUint(t, 80, consumed)
	require.Equal(t, []string{"100", "0", "20"}, trancheShares(l.Tranches("alice")))
	requireUint(t, 20, l.Unlocked("alice", t0.Add(time.Hour)))
}

func TestLedger_ConsumeUnlockedReportsShortfall(t *testing.T) {
	l := NewLedger()
	l.AddTranche("alice", math.NewUint(30), 0, t0)
	l.AddTranche("alice", math.NewUint(100), 24*time.Hour, t0)

	consumed := l.ConsumeUnlocked("alice", math.NewUint(50), t0)
	requireUint(t, 30, consumed)
}

func TestLedger_ConsumeAnyIgnoresLocksAndIsAllOrNothing(t *testing.T) {
	l := NewLedger()
	l.AddTranche("alice", math.NewUint(100), 30*24*time.Hour, t0)
	l.AddTranche("alice", math.NewUint(50), 0, t0)

	err := l.ConsumeAny("alice", math.NewUint(151))
	require.ErrorIs(t, err, ErrInsufficientShares)
	require.Equal(t, []string{"100", "50"}, trancheShares(l.Tranches("alice")))

	require.NoError(t, l.ConsumeAny("alice", math.NewUint(120)))
	require.Equal(t, []string{"0", "30"}, trancheShares(l.Tranches("alice")))
	requireUint(t, 30, l.Total("alice"))
}

func TestLedger_SplitKeepsUnlockTimes(t *testing.T) {
	l := NewLedger()
	first := l.AddTranche("alice", math.NewUint(10), time.Hour, t0)
	second := l.AddTranche("alice", math.NewUint(10), 2*time.Hour, t0)

	pieces, err := l.Split("alice", math.NewUint(15))
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	require.Equal(t, first.UnlockAt, pieces[0].UnlockAt)
	require.Equal(t, second.UnlockAt, pieces[1].UnlockAt)
	requireUint(t, 10, pieces[0].Shares)
	requireUint(t, 5, pieces[1].Shares)

	l.Append("bob", pieces...)
	requireUint(t, 15, l.Total("bob"))
	requireUint(t, 5, l.Total("alice"))
	requireUint(t, 10, l.Unlocked("bob", t0.Add(time.Hour)))
}

func TestLedger_CloneIsDetached(t *testing.T) {
	l := NewLedger()
	l.AddTranche("alice", math.NewUint(10), 0, t0)
	clone := l.Clone()
	clone.ConsumeUnlocked("alice", math.NewUint(10), t0)

	requireUint(t, 10, l.Total("alice"))
	requireUint(t, 0, clone.Total("alice"))
}
