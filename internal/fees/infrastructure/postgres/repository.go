package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fees "tranche-vault/internal/fees/domain"
)

const defaultFeeTable = "fee_params"

// globalKey is the asset_class value of the global row. Asset classes are never empty.
const globalKey = ""

// FeeRepository is a Postgres implementation of fees.Repository.
type FeeRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*FeeRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *FeeRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewFeeRepository constructs a repository with defaults.
func NewFeeRepository(db *sql.DB, opts ...RepositoryOption) *FeeRepository {
	repo := &FeeRepository{db: db, table: defaultFeeTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// LoadSchedule returns the stored global record and every asset-class record.
func (r *FeeRepository) LoadSchedule(ctx context.Context) (fees.Params, map[string]fees.Params, bool, error) {
	if r == nil || r.db == nil {
		return fees.Params{}, nil, false, errors.New("fee repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT asset_class, management_bps, performance_bps, penalty_bps,
	management_recipient, performance_recipient, penalty_recipient, is_set
FROM %s`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fees.Params{}, nil, false, err
	}
	defer rows.Close()

	var (
		global fees.Params
		found  bool
	)
	classes := make(map[string]fees.Params)
	for rows.Next() {
		var (
			assetClass                   string
			management, performance, pen int64
			params                       fees.Params
		)
		if err := rows.Scan(
			&assetClass,
			&management,
			&performance,
			&pen,
			&params.Recipients.Management,
			&params.Recipients.Performance,
			&params.Recipients.Penalty,
			&params.IsSet,
		); err != nil {
			return fees.Params{}, nil, false, err
		}
		params.Rates = fees.Rates{
			ManagementBps:  uint32(management),
			PerformanceBps: uint32(performance),
			PenaltyBps:     uint32(pen),
		}
		if assetClass == globalKey {
			global = params
			found = true
			continue
		}
		classes[assetClass] = params
	}
	if err := rows.Err(); err != nil {
		return fees.Params{}, nil, false, err
	}
	return global, classes, found, nil
}

// SaveGlobal upserts the global record.
func (r *FeeRepository) SaveGlobal(ctx context.Context, params fees.Params) error {
	return r.save(ctx, globalKey, params)
}

// SaveAssetClass upserts an asset-class record.
func (r *FeeRepository) SaveAssetClass(ctx context.Context, assetClass string, params fees.Params) error {
	if assetClass == globalKey {
		return fees.ErrEmptyAssetClass
	}
	return r.save(ctx, assetClass, params)
}

func (r *FeeRepository) save(ctx context.Context, key string, params fees.Params) error {
	if r == nil || r.db == nil {
		return errors.New("fee repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_class, management_bps, performance_bps, penalty_bps,
	management_recipient, performance_recipient, penalty_recipient, is_set, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (asset_class)
DO UPDATE SET
	management_bps = EXCLUDED.management_bps,
	performance_bps = EXCLUDED.performance_bps,
	penalty_bps = EXCLUDED.penalty_bps,
	management_recipient = EXCLUDED.management_recipient,
	performance_recipient = EXCLUDED.performance_recipient,
	penalty_recipient = EXCLUDED.penalty_recipient,
	is_set = EXCLUDED.is_set,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		key,
		int64(params.Rates.ManagementBps),
		int64(params.Rates.PerformanceBps),
		int64(params.Rates.PenaltyBps),
		params.Recipients.Management,
		params.Recipients.Performance,
		params.Recipients.Penalty,
		params.IsSet,
		time.Now().UTC(),
	)
	return err
}
