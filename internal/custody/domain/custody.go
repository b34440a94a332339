package custody

import (
	"context"

	"cosmossdk.io/math"

	"tranche-vault/internal/failure"
)

const codespace = "custody"

var (
	// ErrInsufficientFunds is returned when the source account cannot cover a transfer.
	ErrInsufficientFunds = failure.Register(codespace, 2, "insufficient funds", failure.KindInsufficient)
	// ErrEmptyAccount is returned for an empty account name.
	ErrEmptyAccount = failure.Register(codespace, 3, "empty account", failure.KindValidation)
	// ErrZeroAmount is returned for zero-value transfers.
	ErrZeroAmount = failure.Register(codespace, 4, "zero amount", failure.KindValidation)
)

// Ledger moves the underlying asset between named accounts.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount math.Uint) error
	Balance(ctx context.Context, account string) (math.Uint, error)
}

// VaultAccount binds a ledger to the account holding one vault's underlying.
type VaultAccount struct {
	ledger  Ledger
	account string
}

// NewVaultAccount constructs a custody view over account.
func NewVaultAccount(ledger Ledger, account string) (*VaultAccount, error) {
	if ledger == nil {
		return nil, ErrEmptyAccount.Wrap("nil ledger")
	}
	if account == "" {
		return nil, ErrEmptyAccount
	}
	return &VaultAccount{ledger: ledger, account: account}, nil
}

// Account returns the vault's account name.
func (v *VaultAccount) Account() string { return v.account }

// TransferIn moves amount from a depositor into the vault account.
func (v *VaultAccount) TransferIn(ctx context.Context, from string, amount math.Uint) error {
	return v.ledger.Transfer(ctx, from, v.account, amount)
}

// TransferOut moves amount from the vault account to a recipient.
func (v *VaultAccount) TransferOut(ctx context.Context, to string, amount math.Uint) error {
	return v.ledger.Transfer(ctx, v.account, to, amount)
}

// BalanceOf returns the vault account balance.
func (v *VaultAccount) BalanceOf(ctx context.Context) (math.Uint, error) {
	return v.ledger.Balance(ctx, v.account)
}

// ValidateTransfer checks transfer arguments.
func ValidateTransfer(from, to string, amount math.Uint) error {
	if from == "" || to == "" {
		return ErrEmptyAccount
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}
