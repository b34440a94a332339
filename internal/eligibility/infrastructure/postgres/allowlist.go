package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	eligibility "tranche-vault/internal/eligibility/domain"
)

const defaultAllowTable = "eligibility_allowlist"

// AllowList is a Postgres-backed eligibility gate.
type AllowList struct {
	db    *sql.DB
	table string
}

// AllowListOption configures the allow-list.
type AllowListOption func(*AllowList)

// WithTable overrides the allow-list table.
func WithTable(table string) AllowListOption {
	return func(l *AllowList) {
		if table != "" {
			l.table = table
		}
	}
}

// NewAllowList constructs an allow-list.
func NewAllowList(db *sql.DB, opts ...AllowListOption) *AllowList {
	l := &AllowList{db: db, table: defaultAllowTable}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow admits an address.
func (l *AllowList) Allow(ctx context.Context, entry eligibility.Entry) error {
	if l == nil || l.db == nil {
		return errors.New("eligibility repo: nil db")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_class, address, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (asset_class, address) DO NOTHING`, l.table)
	_, err := l.db.ExecContext(ctx, query, entry.AssetClass, entry.Address, time.Now().UTC())
	return err
}

// Revoke removes an address.
func (l *AllowList) Revoke(ctx context.Context, entry eligibility.Entry) error {
	if l == nil || l.db == nil {
		return errors.New("eligibility repo: nil db")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE asset_class = $1 AND address = $2`, l.table)
	_, err := l.db.ExecContext(ctx, query, entry.AssetClass, entry.Address)
	return err
}

// IsEligible reports whether address is listed for assetClass or for every class.
func (l *AllowList) IsEligible(ctx context.Context, assetClass, address string) (bool, error) {
	if l == nil || l.db == nil {
		return false, errors.New("eligibility repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s
	WHERE address = $1 AND asset_class IN ($2, $3)
)`, l.table)
	var ok bool
	if err := l.db.QueryRowContext(ctx, query, address, assetClass, eligibility.AnyAssetClass).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Entries lists allowed addresses for assetClass, sorted.
func (l *AllowList) Entries(ctx context.Context, assetClass string) ([]string, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("eligibility repo: nil db")
	}
	query := fmt.Sprintf(`SELECT address FROM %s WHERE asset_class = $1 ORDER BY address`, l.table)
	rows, err := l.db.QueryContext(ctx, query, assetClass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		out = append(out, address)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
