package application

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/math"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"tranche-vault/internal/access"
	"tranche-vault/internal/failure"
	"tranche-vault/internal/observability/metrics"
	vault "tranche-vault/internal/vault/domain"
)

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Repository  vault.Repository
	Custody     Custody
	Eligibility EligibilityGate
	Nav         NavReader
	Fees        FeeResolver
	Treasury    TreasurySink
	Publisher   EventPublisher
	Clock       Clock
	Logger      *zap.Logger
}

// Engine runs every operation of one asset class serialized and all-or-nothing.
type Engine struct {
	mu    deadlock.RWMutex
	vault *vault.Vault

	assetClass  string
	repo        vault.Repository
	custody     Custody
	eligibility EligibilityGate
	nav         NavReader
	fees        FeeResolver
	treasury    TreasurySink
	publisher   EventPublisher
	clock       Clock
	logger      *zap.Logger
}

// NewEngine loads the vault for assetClass or creates it with lockDuration.
func NewEngine(ctx context.Context, assetClass string, lockDuration time.Duration, deps Dependencies) (*Engine, error) {
	if deps.Repository == nil {
		return nil, errors.New("vault engine: nil repository")
	}
	if deps.Custody == nil {
		return nil, errors.New("vault engine: nil custody")
	}
	if deps.Eligibility == nil {
		return nil, errors.New("vault engine: nil eligibility gate")
	}
	if deps.Nav == nil {
		return nil, errors.New("vault engine: nil nav reader")
	}
	if deps.Fees == nil {
		return nil, errors.New("vault engine: nil fee resolver")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	current, err := deps.Repository.Load(ctx, assetClass)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current, err = vault.NewVault(assetClass, lockDuration)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		vault:       current,
		assetClass:  assetClass,
		repo:        deps.Repository,
		custody:     deps.Custody,
		eligibility: deps.Eligibility,
		nav:         deps.Nav,
		fees:        deps.Fees,
		treasury:    deps.Treasury,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		logger:      deps.Logger.With(zap.String("asset_class", assetClass)),
	}, nil
}

// DepositResult describes minted shares.
type DepositResult struct {
	Shares  math.Uint
	Tranche vault.Tranche
}

// RedeemResult describes a standard redemption payout.
type RedeemResult struct {
	Shares math.Uint
	Assets math.Uint
}

// SkippedRequest is a batch entry left untouched.
type SkippedRequest struct {
	ID     uint64
	Code   string
	Reason string
}

// BatchResult lists settled and skipped requests in input order.
type BatchResult struct {
	Processed []vault.Settlement
	Skipped   []SkippedRequest
}

// Deposit takes assets from the caller and mints shares to receiver in a new locked tranche.
func (e *Engine) Deposit(ctx context.Context, caller access.Caller, assets math.Uint, receiver string) (DepositResult, error) {
	if caller.Address == "" || receiver == "" {
		return DepositResult{}, vault.ErrEmptyAddress
	}
	if assets.IsZero() {
		return DepositResult{}, vault.ErrZeroAmount
	}
	var result DepositResult
	err := e.run(ctx, "deposit", func(ctx context.Context, tx *txn) error {
		if err := e.requireEligible(ctx, receiver); err != nil {
			return err
		}
		nav, err := e.nav.Nav(e.assetClass)
		if err != nil {
			return err
		}
		shares, err := vault.PreviewDeposit(assets, nav, tx.working.PricingSupply())
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return vault.ErrZeroAmount.Wrapf("deposit of %s mints no shares", assets)
		}
		tranche, err := tx.working.Mint(receiver, shares, tx.now)
		if err != nil {
			return err
		}
		if err := tx.transferIn(ctx, caller.Address, assets); err != nil {
			return err
		}
		tx.emit(Deposited{
			AssetClass: e.assetClass,
			Depositor:  caller.Address,
			Receiver:   receiver,
			Assets:     assets,
			Shares:     shares,
			OccurredAt: tx.now,
		})
		result = DepositResult{Shares: shares, Tranche: tranche}
		return nil
	})
	return result, err
}

// Redeem burns the owner's unlocked shares oldest first and pays receiver at the current valuation.
func (e *Engine) Redeem(ctx context.Context, caller access.Caller, shares math.Uint, receiver, owner string) (RedeemResult, error) {
	if owner == "" || receiver == "" {
		return RedeemResult{}, vault.ErrEmptyAddress
	}
	if shares.IsZero() {
		return RedeemResult{}, vault.ErrZeroAmount
	}
	if caller.Address != owner {
		return RedeemResult{}, vault.ErrNotOwner.Wrapf("caller %s, owner %s", caller.Address, owner)
	}
	var result RedeemResult
	err := e.run(ctx, "redeem", func(ctx context.Context, tx *txn) error {
		if err := e.requireEligible(ctx, receiver); err != nil {
			return err
		}
		nav, err := e.nav.Nav(e.assetClass)
		if err != nil {
			return err
		}
		assets := vault.PreviewRedeem(shares, nav, tx.working.PricingSupply())
		if assets.IsZero() {
			return vault.ErrZeroAmount.Wrapf("redemption of %s shares pays nothing", shares)
		}
		if err := tx.working.RedeemUnlocked(owner, shares, tx.now); err != nil {
			return err
		}
		if err := e.requireLiquidity(ctx, assets); err != nil {
			return err
		}
		if err := tx.transferOut(ctx, receiver, assets); err != nil {
			return err
		}
		tx.emit(Redeemed{
			AssetClass: e.assetClass,
			Owner:      owner,
			Receiver:   receiver,
			Shares:     shares,
			Assets:     assets,
			OccurredAt: tx.now,
		})
		result = RedeemResult{Shares: shares, Assets: assets}
		return nil
	})
	return result, err
}

// RequestEarlyExit burns the caller's shares regardless of lock and queues a penalised payout.
func (e *Engine) RequestEarlyExit(ctx context.Context, caller access.Caller, shares math.Uint, receiver string) (vault.Request, error) {
	if caller.Address == "" || receiver == "" {
		return vault.Request{}, vault.ErrEmptyAddress
	}
	if shares.IsZero() {
		return vault.Request{}, vault.ErrZeroAmount
	}
	var request vault.Request
	err := e.run(ctx, "request_early_exit", func(ctx context.Context, tx *txn) error {
		if err := e.requireEligible(ctx, receiver); err != nil {
			return err
		}
		nav, err := e.nav.Nav(e.assetClass)
		if err != nil {
			return err
		}
		gross := vault.PreviewRedeem(shares, nav, tx.working.PricingSupply())
		penalty := e.fees.PenaltyFor(e.assetClass, gross)
		request, err = tx.working.RequestEarlyExit(caller.Address, receiver, shares, gross, penalty, tx.now)
		if err != nil {
			return err
		}
		tx.emit(EarlyExitRequested{
			AssetClass:     e.assetClass,
			RequestID:      request.ID,
			Owner:          request.Owner,
			Receiver:       request.Receiver,
			Shares:         request.Shares,
			Gross:          gross,
			Penalty:        request.Penalty,
			SettlementDate: request.SettlementDate,
			OccurredAt:     tx.now,
		})
		return nil
	})
	return request, err
}

// ProcessRedemption settles one due request. Gross proceeds are priced now, not at request time.
func (e *Engine) ProcessRedemption(ctx context.Context, caller access.Caller, id uint64) (vault.Settlement, error) {
	if !caller.Has(access.CapVaultOperator) {
		return vault.Settlement{}, vault.ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	var settlement vault.Settlement
	err := e.run(ctx, "process", func(ctx context.Context, tx *txn) error {
		var err error
		settlement, err = e.settle(ctx, tx, caller, id)
		return err
	})
	return settlement, err
}

// ProcessBatch settles each id as its own unit in list order.
// Ids failing for a state, not-found, liquidity or eligibility reason are skipped without error.
func (e *Engine) ProcessBatch(ctx context.Context, caller access.Caller, ids []uint64) (BatchResult, error) {
	var result BatchResult
	if e.entered(ctx) {
		return result, vault.ErrReentrancy.Wrap("process batch")
	}
	if !caller.Has(access.CapVaultOperator) {
		return result, vault.ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	for _, id := range ids {
		var settlement vault.Settlement
		err := e.run(ctx, "process_batch_item", func(ctx context.Context, tx *txn) error {
			var err error
			settlement, err = e.settle(ctx, tx, caller, id)
			return err
		})
		if err == nil {
			result.Processed = append(result.Processed, settlement)
			continue
		}
		if !skippable(err) {
			return result, err
		}
		skipped := SkippedRequest{ID: id, Code: failure.Code(err), Reason: err.Error()}
		result.Skipped = append(result.Skipped, skipped)
		metrics.IncBatchSkipped(skipped.Code)
		e.logger.Debug("batch skipped request", zap.Uint64("request_id", id), zap.String("code", skipped.Code))
	}
	return result, nil
}

func skippable(err error) bool {
	switch failure.KindOf(err) {
	case failure.KindState, failure.KindNotFound, failure.KindInsufficient:
		return true
	}
	return errors.Is(err, vault.ErrNotEligible)
}

func (e *Engine) settle(ctx context.Context, tx *txn, caller access.Caller, id uint64) (vault.Settlement, error) {
	request, err := tx.working.CheckDue(id, tx.now)
	if err != nil {
		return vault.Settlement{}, err
	}
	if err := e.requireEligible(ctx, request.Receiver); err != nil {
		return vault.Settlement{}, err
	}
	nav, err := e.nav.Nav(e.assetClass)
	if err != nil {
		return vault.Settlement{}, err
	}
	gross := vault.PreviewRedeem(request.Shares, nav, tx.working.PricingSupply())
	if err := e.requireLiquidity(ctx, gross); err != nil {
		return vault.Settlement{}, err
	}
	settlement, err := tx.working.Settle(id, tx.now, gross)
	if err != nil {
		return vault.Settlement{}, err
	}
	recipient := e.fees.ResolveRecipients(e.assetClass).Penalty
	if err := tx.transferOut(ctx, settlement.Receiver, settlement.Net); err != nil {
		return vault.Settlement{}, err
	}
	if !settlement.Penalty.IsZero() {
		if err := tx.transferOut(ctx, recipient, settlement.Penalty); err != nil {
			return vault.Settlement{}, err
		}
	}
	tx.emit(RedemptionProcessed{
		AssetClass:       e.assetClass,
		RequestID:        id,
		Receiver:         settlement.Receiver,
		Gross:            settlement.Gross,
		Net:              settlement.Net,
		Penalty:          settlement.Penalty,
		PenaltyRecipient: recipient,
		ProcessedBy:      caller.Address,
		OccurredAt:       tx.now,
	})
	return settlement, nil
}

// CancelRedemption cancels the caller's open request and restores its shares in a fresh locked tranche.
func (e *Engine) CancelRedemption(ctx context.Context, caller access.Caller, id uint64) (vault.Request, error) {
	var request vault.Request
	err := e.run(ctx, "cancel", func(ctx context.Context, tx *txn) error {
		cancelled, restored, err := tx.working.CancelRequest(id, caller.Address, tx.now)
		if err != nil {
			return err
		}
		request = cancelled
		tx.emit(RedemptionCancelled{
			AssetClass: e.assetClass,
			RequestID:  id,
			Owner:      cancelled.Owner,
			Shares:     cancelled.Shares,
			Tranches:   restored,
			OccurredAt: tx.now,
		})
		return nil
	})
	return request, err
}

// Transfer moves shares from the caller to another eligible holder, keeping each tranche's unlock time.
func (e *Engine) Transfer(ctx context.Context, caller access.Caller, to string, shares math.Uint) ([]vault.Tranche, error) {
	var pieces []vault.Tranche
	err := e.run(ctx, "transfer", func(ctx context.Context, tx *txn) error {
		if err := e.requireEligible(ctx, caller.Address); err != nil {
			return err
		}
		if err := e.requireEligible(ctx, to); err != nil {
			return err
		}
		var err error
		pieces, err = tx.working.TransferShares(caller.Address, to, shares)
		if err != nil {
			return err
		}
		tx.emit(SharesTransferred{
			AssetClass: e.assetClass,
			From:       caller.Address,
			To:         to,
			Shares:     shares,
			Pieces:     len(pieces),
			OccurredAt: tx.now,
		})
		return nil
	})
	return pieces, err
}

func (e *Engine) requireEligible(ctx context.Context, address string) error {
	if address == "" {
		return vault.ErrEmptyAddress
	}
	ok, err := e.eligibility.IsEligible(ctx, e.assetClass, address)
	if err != nil {
		return err
	}
	if !ok {
		return vault.ErrNotEligible.Wrapf("address %s", address)
	}
	return nil
}

func (e *Engine) requireLiquidity(ctx context.Context, amount math.Uint) error {
	balance, err := e.custody.BalanceOf(ctx)
	if err != nil {
		return err
	}
	if balance.LT(amount) {
		return vault.ErrInsufficientLiquidity.Wrapf("custody holds %s, needs %s", balance, amount)
	}
	return nil
}
