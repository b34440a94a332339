package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"

	custody "tranche-vault/internal/custody/domain"
)

const defaultBalanceTable = "custody_balances"

// Ledger is a Postgres account ledger.
type Ledger struct {
	db    *sql.DB
	table string
}

// LedgerOption configures the ledger.
type LedgerOption func(*Ledger)

// WithTable overrides the balance table.
func WithTable(table string) LedgerOption {
	return func(l *Ledger) {
		if table != "" {
			l.table = table
		}
	}
}

// NewLedger constructs a ledger.
func NewLedger(db *sql.DB, opts ...LedgerOption) *Ledger {
	l := &Ledger{db: db, table: defaultBalanceTable}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Credit mints amount into account.
func (l *Ledger) Credit(ctx context.Context, account string, amount math.Uint) error {
	if l == nil || l.db == nil {
		return errors.New("custody ledger: nil db")
	}
	if account == "" {
		return custody.ErrEmptyAccount
	}
	query := fmt.Sprintf(`
INSERT INTO %s (account, balance, updated_at)
VALUES ($1, $2::numeric, $3)
ON CONFLICT (account)
DO UPDATE SET balance = %s.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`, l.table, l.table)
	_, err := l.db.ExecContext(ctx, query, account, amount.String(), time.Now().UTC())
	return err
}

// Transfer moves amount between accounts in one transaction, locking both rows.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount math.Uint) error {
	if l == nil || l.db == nil {
		return errors.New("custody ledger: nil db")
	}
	if err := custody.ValidateTransfer(from, to, amount); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ensure := fmt.Sprintf(`
INSERT INTO %s (account, balance, updated_at)
VALUES ($1, 0, $2)
ON CONFLICT (account) DO NOTHING`, l.table)
	now := time.Now().UTC()
	for _, account := range []string{from, to} {
		if _, err := tx.ExecContext(ctx, ensure, account, now); err != nil {
			return err
		}
	}

	lock := fmt.Sprintf(`
SELECT account, balance::text
FROM %s
WHERE account = ANY($1)
ORDER BY account
FOR UPDATE`, l.table)
	rows, err := tx.QueryContext(ctx, lock, []string{from, to})
	if err != nil {
		return err
	}
	balances := make(map[string]math.Uint, 2)
	for rows.Next() {
		var account, raw string
		if err := rows.Scan(&account, &raw); err != nil {
			rows.Close()
			return err
		}
		balance, err := math.ParseUint(raw)
		if err != nil {
			rows.Close()
			return err
		}
		balances[account] = balance
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	balance, ok := balances[from]
	if !ok || balance.LT(amount) {
		if !ok {
			balance = math.ZeroUint()
		}
		return custody.ErrInsufficientFunds.Wrapf("account %s holds %s, needs %s", from, balance, amount)
	}

	update := fmt.Sprintf(`
UPDATE %s
SET balance = balance + $2::numeric, updated_at = $3
WHERE account = $1`, l.table)
	if _, err := tx.ExecContext(ctx, update, from, "-"+amount.String(), now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, update, to, amount.String(), now); err != nil {
		return err
	}
	return tx.Commit()
}

// Balance returns the balance of account, zero when unknown.
func (l *Ledger) Balance(ctx context.Context, account string) (math.Uint, error) {
	if l == nil || l.db == nil {
		return math.ZeroUint(), errors.New("custody ledger: nil db")
	}
	query := fmt.Sprintf(`SELECT balance::text FROM %s WHERE account = $1`, l.table)
	var raw string
	if err := l.db.QueryRowContext(ctx, query, account).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return math.ZeroUint(), nil
		}
		return math.ZeroUint(), err
	}
	return math.ParseUint(raw)
}
