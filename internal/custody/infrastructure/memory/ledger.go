package memory

import (
	"context"
	"sync"

	"cosmossdk.io/math"

	custody "tranche-vault/internal/custody/domain"
)

// Ledger is an in-memory account ledger.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]math.Uint
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]math.Uint)}
}

// Credit mints amount into account.
func (l *Ledger) Credit(account string, amount math.Uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balanceLocked(account).Add(amount)
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(_ context.Context, from, to string, amount math.Uint) error {
	if err := custody.ValidateTransfer(from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(from)
	if balance.LT(amount) {
		return custody.ErrInsufficientFunds.Wrapf("account %s holds %s, needs %s", from, balance, amount)
	}
	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

// Balance returns the balance of account.
func (l *Ledger) Balance(_ context.Context, account string) (math.Uint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account), nil
}

func (l *Ledger) balanceLocked(account string) math.Uint {
	if balance, ok := l.balances[account]; ok {
		return balance
	}
	return math.ZeroUint()
}
