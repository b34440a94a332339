package fees

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/access"
	"tranche-vault/internal/failure"
)

func globalParams() Params {
	return Params{
		Rates: Rates{ManagementBps: 200, PerformanceBps: 2000, PenaltyBps: 500},
		Recipients: Recipients{
			Management:  "mgmt-global",
			Performance: "perf-global",
			Penalty:     "penalty-global",
		},
	}
}

func TestSchedule_FallsBackToGlobal(t *testing.T) {
	s, err := NewSchedule(globalParams(), nil)
	require.NoError(t, err)

	require.Equal(t, globalParams().Rates, s.ResolveFees("private-credit"))
	require.Equal(t, globalParams().Recipients, s.ResolveRecipients("private-credit"))
}

func TestSchedule_AssetClassOverrideWinsVerbatim(t *testing.T) {
	ctx := context.Background()
	admin := access.NewCaller("admin", access.CapFeesAdmin)
	s, err := NewSchedule(globalParams(), nil)
	require.NoError(t, err)

	override := Params{
		Rates:      Rates{ManagementBps: 0, PerformanceBps: 0, PenaltyBps: 1000},
		Recipients: Recipients{Penalty: "penalty-credit"},
	}
	require.NoError(t, s.SetAssetClass(ctx, admin, "credit", override))

	require.Equal(t, override.Rates, s.ResolveFees("credit"))
	recipients := s.ResolveRecipients("credit")
	require.Equal(t, "penalty-credit", recipients.Penalty)
	require.Equal(t, "mgmt-global", recipients.Management)
	require.Equal(t, "perf-global", recipients.Performance)

	require.NoError(t, s.ClearAssetClass(ctx, admin, "credit"))
	require.Equal(t, globalParams().Rates, s.ResolveFees("credit"))
}

func TestSchedule_BoundsEnforcedOnWrite(t *testing.T) {
	ctx := context.Background()
	admin := access.NewCaller("admin", access.CapFeesAdmin)
	s, err := NewSchedule(globalParams(), nil)
	require.NoError(t, err)

	cases := []Rates{
		{ManagementBps: 5001},
		{PerformanceBps: 5001},
		{PenaltyBps: 10001},
	}
	for _, rates := range cases {
		err := s.SetAssetClass(ctx, admin, "credit", Params{Rates: rates})
		require.ErrorIs(t, err, ErrFeeTooHigh)
		require.Equal(t, failure.KindValidation, failure.KindOf(err))
	}
	require.NoError(t, s.SetAssetClass(ctx, admin, "credit", Params{Rates: Rates{ManagementBps: 5000, PerformanceBps: 5000, PenaltyBps: 10000}}))
}

func TestSchedule_RequiresCapability(t *testing.T) {
	s, err := NewSchedule(globalParams(), nil)
	require.NoError(t, err)

	err = s.SetGlobal(context.Background(), access.NewCaller("someone"), globalParams())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, failure.KindAuthorization, failure.KindOf(err))
}

func TestFeeMath_FloorsInProtocolFavour(t *testing.T) {
	requireUint(t, 25, PenaltyDue(math.NewUint(500), 500))
	requireUint(t, 0, PenaltyDue(math.NewUint(19), 500))
	requireUint(t, 4, PerformanceFeeDue(math.NewUint(21), 2000))

	due, err := ManagementFeeDue(math.NewUint(1_000_000), 200, Year, Year)
	require.NoError(t, err)
	requireUint(t, 20_000, due)

	due, err = ManagementFeeDue(math.NewUint(1_000_000), 200, Year/2, Year)
	require.NoError(t, err)
	requireUint(t, 10_000, due)

	due, err = ManagementFeeDue(math.NewUint(1_000), 200, 24*time.Hour, Year)
	require.NoError(t, err)
	requireUint(t, 0, due)

	_, err = ManagementFeeDue(math.NewUint(1), 1, time.Hour, 0)
	require.ErrorIs(t, err, ErrInvalidYear)
}

func TestSchedule_FeesForUseResolvedRates(t *testing.T) {
	admin := access.NewCaller("admin", access.CapFeesAdmin)
	s, err := NewSchedule(globalParams(), nil)
	require.NoError(t, err)
	require.NoError(t, s.SetAssetClass(context.Background(), admin, "credit", Params{
		Rates: Rates{ManagementBps: 100, PerformanceBps: 1000, PenaltyBps: 1000},
	}))

	requireUint(t, 25, s.PenaltyFor("treasuries", math.NewUint(500)))
	requireUint(t, 50, s.PenaltyFor("credit", math.NewUint(500)))
	requireUint(t, 100, s.PerformanceFeeFor("credit", math.NewUint(1000)))

	due, err := s.ManagementFeeFor("credit", math.NewUint(1_000_000), Year)
	require.NoError(t, err)
	requireUint(t, 10_000, due)
	due, err = s.ManagementFeeFor("treasuries", math.NewUint(1_000_000), Year)
	require.NoError(t, err)
	requireUint(t, 20_000, due)
}

func requireUint(t *testing.T, expected uint64, actual math.Uint) {
	t.Helper()
	require.Equal(t, math.NewUint(expected).String(), actual.String())
}
