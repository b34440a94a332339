package nav

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/access"
	"tranche-vault/internal/failure"
)

const unit = uint64(1_000_000_000_000_000_000)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type recordingListener struct{ updates []Updated }

func (l *recordingListener) NavUpdated(_ context.Context, update Updated) {
	l.updates = append(l.updates, update)
}

type memRepo struct{ saved map[string]Record }

func (r *memRepo) Save(_ context.Context, record Record) error {
	if r.saved == nil {
		r.saved = make(map[string]Record)
	}
	r.saved[record.AssetClass] = record
	return nil
}

func (r *memRepo) LoadAll(context.Context) ([]Record, error) {
	out := make([]Record, 0, len(r.saved))
	for _, record := range r.saved {
		out = append(out, record)
	}
	return out, nil
}

var (
	admin   = access.NewCaller("admin", access.CapNavAdmin)
	updater = access.NewCaller("oracle-bot", access.CapNavUpdater)
)

func newTestOracle(t *testing.T, opts ...Option) (*Oracle, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	o := NewOracle(nil, append([]Option{WithClock(clock)}, opts...)...)
	_, err := o.Register(context.Background(), admin, RegisterParams{
		AssetClass:         "treasury-bills",
		ChangeThresholdBps: 1000,
		StalenessThreshold: 24 * time.Hour,
	})
	require.NoError(t, err)
	return o, clock
}

func TestUpdateNav_ChangeThreshold(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOracle(t)

	_, err := o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit))
	require.NoError(t, err)

	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit*3/2))
	require.ErrorIs(t, err, ErrChangeExceedsThreshold)
	require.Equal(t, failure.KindState, failure.KindOf(err))
	current, err := o.Nav("treasury-bills")
	require.NoError(t, err)
	require.Equal(t, math.NewUint(unit).String(), current.String())

	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit/100*105))
	require.NoError(t, err)
	current, err = o.Nav("treasury-bills")
	require.NoError(t, err)
	require.Equal(t, math.NewUint(unit/100*105).String(), current.String())
}

func TestUpdateNav_ThresholdBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOracle(t)

	_, err := o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(1000))
	require.NoError(t, err)
	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(900))
	require.NoError(t, err)
	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(809))
	require.ErrorIs(t, err, ErrChangeExceedsThreshold)
}

func TestUpdateNav_FirstUpdateSkipsThreshold(t *testing.T) {
	o, _ := newTestOracle(t)
	_, err := o.UpdateNav(context.Background(), updater, "treasury-bills", math.NewUint(5*unit))
	require.NoError(t, err)
}

func TestUpdateNav_Authorization(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOracle(t)
	desk := access.NewCaller("desk")

	_, err := o.UpdateNav(ctx, desk, "treasury-bills", math.NewUint(unit))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, failure.KindAuthorization, failure.KindOf(err))

	require.NoError(t, o.AddUpdater(ctx, admin, "treasury-bills", "desk"))
	_, err = o.UpdateNav(ctx, desk, "treasury-bills", math.NewUint(unit))
	require.NoError(t, err)

	require.NoError(t, o.RemoveUpdater(ctx, admin, "treasury-bills", "desk"))
	_, err = o.UpdateNav(ctx, desk, "treasury-bills", math.NewUint(unit))
	require.ErrorIs(t, err, ErrUnauthorized)

	err = o.AddUpdater(ctx, updater, "treasury-bills", "desk")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateNav_RejectsInactiveUnknownAndZero(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOracle(t)

	_, err := o.UpdateNav(ctx, updater, "treasury-bills", math.ZeroUint())
	require.ErrorIs(t, err, ErrZeroNav)

	_, err = o.UpdateNav(ctx, updater, "real-estate", math.NewUint(unit))
	require.ErrorIs(t, err, ErrUnknownAssetClass)

	require.NoError(t, o.SetActive(ctx, admin, "treasury-bills", false))
	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit))
	require.ErrorIs(t, err, ErrAssetClassInactive)

	require.NoError(t, o.SetActive(ctx, admin, "treasury-bills", true))
	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit))
	require.NoError(t, err)
}

func TestRegister_OnlyOnce(t *testing.T) {
	o, _ := newTestOracle(t)
	_, err := o.Register(context.Background(), admin, RegisterParams{
		AssetClass:         "treasury-bills",
		ChangeThresholdBps: 500,
		StalenessThreshold: time.Hour,
	})
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	record, ok := o.Get("treasury-bills")
	require.True(t, ok)
	require.Equal(t, uint32(1000), record.ChangeThresholdBps)
}

func TestSetThresholds_Validates(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOracle(t)

	require.ErrorIs(t, o.SetThresholds(ctx, admin, "treasury-bills", 10001, time.Hour), ErrInvalidThreshold)
	require.ErrorIs(t, o.SetThresholds(ctx, admin, "treasury-bills", 100, 0), ErrInvalidThreshold)
	require.NoError(t, o.SetThresholds(ctx, admin, "treasury-bills", 100, time.Hour))

	record, _ := o.Get("treasury-bills")
	require.Equal(t, uint32(100), record.ChangeThresholdBps)
	require.Equal(t, time.Hour, record.StalenessThreshold)
}

func TestIsFresh_Advisory(t *testing.T) {
	ctx := context.Background()
	o, clock := newTestOracle(t)

	fresh, err := o.IsFresh("treasury-bills")
	require.NoError(t, err)
	require.False(t, fresh)

	_, err = o.UpdateNav(ctx, updater, "treasury-bills", math.NewUint(unit))
	require.NoError(t, err)

	clock.now = clock.now.Add(24 * time.Hour)
	fresh, err = o.IsFresh("treasury-bills")
	require.NoError(t, err)
	require.True(t, fresh)

	clock.now = clock.now.Add(time.Second)
	fresh, err = o.IsFresh("treasury-bills")
	require.NoError(t, err)
	require.False(t, fresh)

	_, err = o.Nav("treasury-bills")
	require.NoError(t, err)
}

func TestOracle_PersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	listener := &recordingListener{}
	clock := &fixedClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	o := NewOracle(repo, WithClock(clock), WithListener(listener))

	_, err := o.Register(ctx, admin, RegisterParams{
		AssetClass:         "credit",
		ChangeThresholdBps: 200,
		StalenessThreshold: time.Hour,
		Updaters:           []string{"desk"},
	})
	require.NoError(t, err)
	_, err = o.UpdateNav(ctx, access.NewCaller("desk"), "credit", math.NewUint(42))
	require.NoError(t, err)

	require.Len(t, listener.updates, 1)
	require.Equal(t, "desk", listener.updates[0].UpdatedBy)
	require.True(t, listener.updates[0].Previous.IsZero())

	restored := NewOracle(repo, WithClock(clock))
	require.NoError(t, restored.Restore(ctx))
	nav, err := restored.Nav("credit")
	require.NoError(t, err)
	require.Equal(t, "42", nav.String())
	record, _ := restored.Get("credit")
	require.Equal(t, []string{"desk"}, record.Updaters)
}
