package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"tranche-vault/internal/access"
	custody "tranche-vault/internal/custody/domain"
	custodymem "tranche-vault/internal/custody/infrastructure/memory"
	eligibility "tranche-vault/internal/eligibility/domain"
	eligibilitymem "tranche-vault/internal/eligibility/infrastructure/memory"
	"tranche-vault/internal/failure"
	fees "tranche-vault/internal/fees/domain"
	vault "tranche-vault/internal/vault/domain"
	vaultmem "tranche-vault/internal/vault/infrastructure/memory"
)

const (
	testClass    = "private-credit"
	vaultAccount = "vault:private-credit"
	testLock     = 30 * 24 * time.Hour
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type fakeNav struct {
	mu    sync.Mutex
	value math.Uint
}

func (n *fakeNav) Nav(string) (math.Uint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value, nil
}

func (n *fakeNav) Set(value uint64) {
	n.mu.Lock()
	n.value = math.NewUint(value)
	n.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, eventName(event))
	}
	return out
}

type flakyRepo struct {
	*vaultmem.Repository
	fail bool
}

func (r *flakyRepo) Save(ctx context.Context, v *vault.Vault) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.Repository.Save(ctx, v)
}

type fakeTreasury struct {
	reject   bool
	received []Deployment
}

func (f *fakeTreasury) Account() string { return "treasury" }

func (f *fakeTreasury) Receive(_ context.Context, deployment Deployment) error {
	if f.reject {
		return errors.New("treasury closed")
	}
	f.received = append(f.received, deployment)
	return nil
}

type harness struct {
	engine    *Engine
	ledger    *custodymem.Ledger
	custody   *custody.VaultAccount
	nav       *fakeNav
	clock     *fakeClock
	allow     *eligibilitymem.AllowList
	repo      *flakyRepo
	publisher *recordingPublisher
	treasury  *fakeTreasury
	operator  access.Caller
	alice     access.Caller
	bob       access.Caller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:    custodymem.NewLedger(),
		nav:       &fakeNav{value: math.ZeroUint()},
		clock:     &fakeClock{now: t0},
		repo:      &flakyRepo{Repository: vaultmem.NewRepository()},
		publisher: &recordingPublisher{},
		treasury:  &fakeTreasury{},
		operator:  access.NewCaller("keeper", access.CapVaultOperator),
		alice:     access.NewCaller("alice"),
		bob:       access.NewCaller("bob"),
	}
	var err error
	h.custody, err = custody.NewVaultAccount(h.ledger, vaultAccount)
	require.NoError(t, err)
	h.allow, err = eligibilitymem.NewAllowList(
		eligibility.Entry{AssetClass: testClass, Address: "alice"},
		eligibility.Entry{AssetClass: testClass, Address: "bob"},
	)
	require.NoError(t, err)
	schedule, err := fees.NewSchedule(fees.Params{
		Rates: fees.Rates{ManagementBps: 200, PerformanceBps: 2000, PenaltyBps: 500},
		Recipients: fees.Recipients{
			Management:  "mgmt",
			Performance: "perf",
			Penalty:     "penalty",
		},
	}, nil)
	require.NoError(t, err)

	h.ledger.Credit("alice", math.NewUint(10_000))
	h.ledger.Credit("bob", math.NewUint(10_000))
	h.engine = h.newEngine(t, schedule)
	return h
}

func (h *harness) newEngine(t *testing.T, schedule *fees.Schedule) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), testClass, testLock, Dependencies{
		Repository:  h.repo,
		Custody:     h.custody,
		Eligibility: h.allow,
		Nav:         h.nav,
		Fees:        schedule,
		Treasury:    h.treasury,
		Publisher:   h.publisher,
		Clock:       h.clock,
	})
	require.NoError(t, err)
	return engine
}

func (h *harness) balance(t *testing.T, account string) string {
	t.Helper()
	balance, err := h.ledger.Balance(context.Background(), account)
	require.NoError(t, err)
	return balance.String()
}

func (h *harness) deposit(t *testing.T, caller access.Caller, assets uint64) DepositResult {
	t.Helper()
	result, err := h.engine.Deposit(context.Background(), caller, math.NewUint(assets), caller.Address)
	require.NoError(t, err)
	current, _ := h.nav.Nav(testClass)
	h.nav.Set(current.Uint64() + assets)
	return result
}

func TestEngine_LockedSharesCannotBeRedeemedEarly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deposit := h.deposit(t, h.alice, 1000)
	require.Equal(t, "1000", deposit.Shares.String())
	require.True(t, deposit.Tranche.UnlockAt.Equal(t0.Add(testLock)))

	h.clock.Set(t0.Add(29 * 24 * time.Hour))
	_, err := h.engine.Redeem(ctx, h.alice, math.NewUint(1000), "alice", "alice")
	require.ErrorIs(t, err, vault.ErrInsufficientShares)
	require.Equal(t, failure.KindInsufficient, failure.KindOf(err))
	require.Equal(t, "1000", h.engine.BalanceOf("alice").String())
	require.Len(t, h.engine.Tranches("alice"), 1)
	require.Equal(t, "9000", h.balance(t, "alice"))

	h.clock.Set(t0.Add(31 * 24 * time.Hour))
	result, err := h.engine.Redeem(ctx, h.alice, math.NewUint(1000), "alice", "alice")
	require.NoError(t, err)
	require.Equal(t, "1000", result.Assets.String())
	require.Equal(t, "0", h.engine.BalanceOf("alice").String())
	require.Equal(t, "0", h.engine.Tranches("alice")[0].Shares.String())
	require.Equal(t, "10000", h.balance(t, "alice"))
	require.Equal(t, "0", h.balance(t, vaultAccount))
}

func TestEngine_EarlyExitSettlesAfterDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	request, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(500), "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1), request.ID)
	require.Equal(t, "25", request.Penalty.String())
	require.True(t, request.SettlementDate.Equal(t0.Add(24*time.Hour)))
	require.Equal(t, "500", h.engine.BalanceOf("alice").String())

	h.clock.Set(t0.Add(24*time.Hour - time.Second))
	_, err = h.engine.ProcessRedemption(ctx, h.operator, request.ID)
	require.ErrorIs(t, err, vault.ErrNotYetDue)

	h.clock.Set(t0.Add(24 * time.Hour))
	settlement, err := h.engine.ProcessRedemption(ctx, h.operator, request.ID)
	require.NoError(t, err)
	require.Equal(t, "500", settlement.Gross.String())
	require.Equal(t, "475", settlement.Net.String())
	require.Equal(t, "25", settlement.Penalty.String())

	require.Equal(t, "9475", h.balance(t, "alice"))
	require.Equal(t, "25", h.balance(t, "penalty"))
	require.Equal(t, "500", h.balance(t, vaultAccount))

	stored, ok := h.engine.Request(request.ID)
	require.True(t, ok)
	require.Equal(t, vault.StatusProcessed, stored.Status())

	_, err = h.engine.ProcessRedemption(ctx, h.operator, request.ID)
	require.ErrorIs(t, err, vault.ErrAlreadyProcessed)
}

func TestEngine_ListDueReturnsMaturedRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 3000)

	for _, at := range []time.Time{t0, t0.Add(24 * time.Hour), t0.Add(36 * time.Hour)} {
		h.clock.Set(at)
		_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(100), "alice")
		require.NoError(t, err)
	}

	h.clock.Set(t0.Add(48 * time.Hour))
	require.Equal(t, []uint64{1, 2}, h.engine.ListDue())
	require.Equal(t, []uint64{1, 2}, h.engine.ListDueByOwner("alice"))
	require.Empty(t, h.engine.ListDueByOwner("bob"))
}

func TestEngine_ProcessBatchSkipsSilently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(100), "alice")
	require.NoError(t, err)
	_, err = h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(100), "alice")
	require.NoError(t, err)
	_, err = h.engine.CancelRedemption(ctx, h.alice, 2)
	require.NoError(t, err)
	h.clock.Set(t0.Add(12 * time.Hour))
	_, err = h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(100), "alice")
	require.NoError(t, err)

	h.clock.Set(t0.Add(24 * time.Hour))
	result, err := h.engine.ProcessBatch(ctx, h.operator, []uint64{1, 2, 3, 99})
	require.NoError(t, err)
	require.Len(t, result.Processed, 1)
	require.Equal(t, uint64(1), result.Processed[0].RequestID)
	require.Len(t, result.Skipped, 3)
	require.Equal(t, uint64(2), result.Skipped[0].ID)
	require.Equal(t, uint64(3), result.Skipped[1].ID)
	require.Equal(t, uint64(99), result.Skipped[2].ID)

	third, ok := h.engine.Request(3)
	require.True(t, ok)
	require.True(t, third.Open())

	_, err = h.engine.ProcessBatch(ctx, h.alice, []uint64{3})
	require.ErrorIs(t, err, vault.ErrUnauthorized)
}

func TestEngine_ProcessBatchSkipsWhenCustodyIsShort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(500), "alice")
	require.NoError(t, err)
	require.NoError(t, h.ledger.Transfer(ctx, vaultAccount, "elsewhere", math.NewUint(800)))

	h.clock.Set(t0.Add(24 * time.Hour))
	_, err = h.engine.ProcessRedemption(ctx, h.operator, 1)
	require.ErrorIs(t, err, vault.ErrInsufficientLiquidity)

	result, err := h.engine.ProcessBatch(ctx, h.operator, []uint64{1})
	require.NoError(t, err)
	require.Empty(t, result.Processed)
	require.Len(t, result.Skipped, 1)

	request, _ := h.engine.Request(1)
	require.True(t, request.Open())
	require.Equal(t, "200", h.balance(t, vaultAccount))
}

func TestEngine_CancelRestoresSharesRegardlessOfNav(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(400), "alice")
	require.NoError(t, err)
	require.Equal(t, "600", h.engine.BalanceOf("alice").String())

	h.nav.Set(2500)
	h.clock.Set(t0.Add(time.Hour))

	_, err = h.engine.CancelRedemption(ctx, h.bob, 1)
	require.ErrorIs(t, err, vault.ErrNotOwner)

	cancelled, err := h.engine.CancelRedemption(ctx, h.alice, 1)
	require.NoError(t, err)
	require.True(t, cancelled.IsCancelled)
	require.Equal(t, "1000", h.engine.BalanceOf("alice").String())

	tranches := h.engine.Tranches("alice")
	require.Len(t, tranches, 2)
	require.Equal(t, "400", tranches[1].Shares.String())
	require.True(t, tranches[1].UnlockAt.Equal(t0.Add(testLock)))

	summary, err := h.engine.Summary()
	require.NoError(t, err)
	require.Equal(t, "1000", summary.Supply.String())
	require.Equal(t, "1000", summary.PricingSupply.String())
	require.Equal(t, "1000", h.balance(t, vaultAccount))

	_, err = h.engine.CancelRedemption(ctx, h.alice, 1)
	require.ErrorIs(t, err, vault.ErrAlreadyCancelled)
}

func TestEngine_SettlementIsPricedAtCurrentNav(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	request, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(500), "alice")
	require.NoError(t, err)
	require.Equal(t, "25", request.Penalty.String())

	h.nav.Set(800)
	h.clock.Set(t0.Add(24 * time.Hour))
	settlement, err := h.engine.ProcessRedemption(ctx, h.operator, request.ID)
	require.NoError(t, err)
	require.Equal(t, "400", settlement.Gross.String())
	require.Equal(t, "375", settlement.Net.String())
	require.Equal(t, "25", settlement.Penalty.String())
}

func TestEngine_RejectsReentrantCalls(t *testing.T) {
	h := newHarness(t)
	reentrant := &reentrantCustody{Custody: h.custody}
	engine, err := NewEngine(context.Background(), "reentrant", testLock, Dependencies{
		Repository:  vaultmem.NewRepository(),
		Custody:     reentrant,
		Eligibility: eligibility.AllowAll{},
		Nav:         h.nav,
		Fees:        mustSchedule(t),
		Clock:       h.clock,
	})
	require.NoError(t, err)
	reentrant.engine = engine

	_, err = engine.Deposit(context.Background(), h.alice, math.NewUint(100), "alice")
	require.NoError(t, err)
	require.ErrorIs(t, reentrant.innerErr, vault.ErrReentrancy)
	require.Equal(t, "100", engine.BalanceOf("alice").String())

	_, err = engine.ProcessBatch(engine.enter(context.Background()), h.operator, []uint64{1})
	require.ErrorIs(t, err, vault.ErrReentrancy)
}

type reentrantCustody struct {
	Custody
	engine   *Engine
	innerErr error
}

func (r *reentrantCustody) TransferIn(ctx context.Context, from string, amount math.Uint) error {
	_, r.innerErr = r.engine.Deposit(ctx, access.NewCaller(from), amount, from)
	return r.Custody.TransferIn(ctx, from, amount)
}

func mustSchedule(t *testing.T) *fees.Schedule {
	t.Helper()
	schedule, err := fees.NewSchedule(fees.Params{
		Recipients: fees.Recipients{Management: "mgmt", Performance: "perf", Penalty: "penalty"},
	}, nil)
	require.NoError(t, err)
	return schedule
}

func TestEngine_FailedSaveLeavesStateAndCustodyUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)
	events := len(h.publisher.names())

	h.repo.fail = true
	_, err := h.engine.Deposit(ctx, h.alice, math.NewUint(500), "alice")
	require.Error(t, err)
	require.Equal(t, failure.KindInternal, failure.KindOf(err))

	require.Equal(t, "1000", h.engine.BalanceOf("alice").String())
	require.Equal(t, "9000", h.balance(t, "alice"))
	require.Equal(t, "1000", h.balance(t, vaultAccount))
	require.Len(t, h.publisher.names(), events)
}

func TestEngine_EligibilityAndOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ledger.Credit("mallory", math.NewUint(1000))

	_, err := h.engine.Deposit(ctx, access.NewCaller("mallory"), math.NewUint(100), "mallory")
	require.ErrorIs(t, err, vault.ErrNotEligible)
	require.Equal(t, "1000", h.balance(t, "mallory"))

	h.deposit(t, h.alice, 1000)
	_, err = h.engine.Redeem(ctx, h.bob, math.NewUint(10), "bob", "alice")
	require.ErrorIs(t, err, vault.ErrNotOwner)

	_, err = h.engine.Transfer(ctx, h.alice, "mallory", math.NewUint(10))
	require.ErrorIs(t, err, vault.ErrNotEligible)

	_, err = h.engine.ProcessRedemption(ctx, h.alice, 1)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, err = h.engine.Deposit(ctx, h.alice, math.ZeroUint(), "alice")
	require.ErrorIs(t, err, vault.ErrZeroAmount)
}

func TestEngine_TransferKeepsUnlockTimes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 600)
	h.clock.Set(t0.Add(24 * time.Hour))
	h.deposit(t, h.alice, 400)

	pieces, err := h.engine.Transfer(ctx, h.alice, "bob", math.NewUint(700))
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	require.True(t, pieces[0].UnlockAt.Equal(t0.Add(testLock)))
	require.True(t, pieces[1].UnlockAt.Equal(t0.Add(24*time.Hour).Add(testLock)))

	require.Equal(t, "300", h.engine.BalanceOf("alice").String())
	require.Equal(t, "700", h.engine.BalanceOf("bob").String())

	position := h.engine.Position("bob")
	require.Equal(t, "0", position.Unlocked.String())
	require.Len(t, position.Tranches, 2)
}

func TestEngine_CollectFees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ledger.Credit("alice", math.NewUint(1_000_000))
	h.deposit(t, h.alice, 1_000_000)

	first, err := h.engine.CollectFees(ctx, h.operator)
	require.NoError(t, err)
	require.True(t, first.Management.IsZero())
	require.True(t, first.Performance.IsZero())
	require.Equal(t, "1000000", first.HighWaterMark.String())

	h.nav.Set(1_100_000)
	h.clock.Set(t0.Add(fees.Year / 2))
	second, err := h.engine.CollectFees(ctx, h.operator)
	require.NoError(t, err)
	require.Equal(t, "11000", second.Management.String())
	require.Equal(t, "20000", second.Performance.String())
	require.Equal(t, "1100000", second.HighWaterMark.String())
	require.Equal(t, fees.Year/2, second.Elapsed)

	require.Equal(t, "11000", h.balance(t, "mgmt"))
	require.Equal(t, "20000", h.balance(t, "perf"))
	require.Equal(t, "969000", h.balance(t, vaultAccount))

	_, err = h.engine.CollectFees(ctx, h.alice)
	require.ErrorIs(t, err, vault.ErrUnauthorized)
}

func TestEngine_SweepToTreasury(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	deployment, err := h.engine.SweepToTreasury(ctx, h.operator, math.NewUint(300))
	require.NoError(t, err)
	require.NotEmpty(t, deployment.ID)
	require.Len(t, h.treasury.received, 1)
	require.Equal(t, "300", h.balance(t, "treasury"))
	require.Equal(t, "700", h.balance(t, vaultAccount))

	h.treasury.reject = true
	_, err = h.engine.SweepToTreasury(ctx, h.operator, math.NewUint(200))
	require.ErrorIs(t, err, vault.ErrTreasuryRejected)
	require.Equal(t, "300", h.balance(t, "treasury"))
	require.Equal(t, "700", h.balance(t, vaultAccount))

	_, err = h.engine.SweepToTreasury(ctx, h.operator, math.NewUint(5000))
	require.ErrorIs(t, err, vault.ErrInsufficientLiquidity)
}

func TestEngine_SweepLeavesOpenRequestsToCustodyTopUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)

	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(500), "alice")
	require.NoError(t, err)

	_, err = h.engine.SweepToTreasury(ctx, h.operator, math.NewUint(800))
	require.NoError(t, err)
	require.Equal(t, "200", h.balance(t, vaultAccount))

	h.clock.Set(t0.Add(24 * time.Hour))
	_, err = h.engine.ProcessRedemption(ctx, h.operator, 1)
	require.ErrorIs(t, err, vault.ErrInsufficientLiquidity)

	h.ledger.Credit(vaultAccount, math.NewUint(300))
	settlement, err := h.engine.ProcessRedemption(ctx, h.operator, 1)
	require.NoError(t, err)
	require.Equal(t, "475", settlement.Net.String())
	require.Equal(t, "0", h.balance(t, vaultAccount))
}

func TestEngine_ReloadsFromRepository(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)
	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(250), "bob")
	require.NoError(t, err)

	reloaded := h.newEngine(t, mustSchedule(t))
	require.Equal(t, "750", reloaded.BalanceOf("alice").String())
	request, ok := reloaded.Request(1)
	require.True(t, ok)
	require.Equal(t, "bob", request.Receiver)
	snapshot := reloaded.Snapshot()
	require.Equal(t, "750", snapshot.State.Supply.String())
	require.Len(t, snapshot.Requests, 1)
	require.Len(t, snapshot.Holders, 1)
}

func TestEngine_PublishesCommittedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deposit(t, h.alice, 1000)
	_, err := h.engine.RequestEarlyExit(ctx, h.alice, math.NewUint(100), "alice")
	require.NoError(t, err)
	_, err = h.engine.Redeem(ctx, h.alice, math.NewUint(100), "alice", "alice")
	require.Error(t, err)

	require.Equal(t, []string{"Deposited", "EarlyExitRequested"}, h.publisher.names())
}
