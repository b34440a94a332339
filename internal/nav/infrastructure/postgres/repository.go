package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"

	nav "tranche-vault/internal/nav/domain"
)

const defaultNavTable = "nav_records"

// NavRepository is a Postgres implementation of nav.Repository.
type NavRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*NavRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *NavRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewNavRepository constructs a repository with defaults.
func NewNavRepository(db *sql.DB, opts ...RepositoryOption) *NavRepository {
	repo := &NavRepository{db: db, table: defaultNavTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Save upserts one record.
func (r *NavRepository) Save(ctx context.Context, record nav.Record) error {
	if r == nil || r.db == nil {
		return errors.New("nav repo: nil db")
	}
	updaters, err := json.Marshal(record.Updaters)
	if err != nil {
		return err
	}
	value := "0"
	if record.Nav != (math.Uint{}) {
		value = record.Nav.String()
	}
	var lastUpdated sql.NullTime
	if !record.LastUpdated.IsZero() {
		lastUpdated = sql.NullTime{Time: record.LastUpdated.UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_class, nav, last_updated, change_threshold_bps, staleness_seconds, active, updaters, updated_at)
VALUES ($1, $2::numeric, $3, $4, $5, $6, $7::jsonb, $8)
ON CONFLICT (asset_class)
DO UPDATE SET
	nav = EXCLUDED.nav,
	last_updated = EXCLUDED.last_updated,
	change_threshold_bps = EXCLUDED.change_threshold_bps,
	staleness_seconds = EXCLUDED.staleness_seconds,
	active = EXCLUDED.active,
	updaters = EXCLUDED.updaters,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		record.AssetClass,
		value,
		lastUpdated,
		int64(record.ChangeThresholdBps),
		int64(record.StalenessThreshold/time.Second),
		record.Active,
		string(updaters),
		time.Now().UTC(),
	)
	return err
}

// LoadAll returns every stored record.
func (r *NavRepository) LoadAll(ctx context.Context) ([]nav.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("nav repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT asset_class, nav::text, last_updated, change_threshold_bps, staleness_seconds, active, updaters::text
FROM %s
ORDER BY asset_class`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []nav.Record
	for rows.Next() {
		var (
			record       nav.Record
			value        string
			lastUpdated  sql.NullTime
			thresholdBps int64
			staleness    int64
			updaters     string
		)
		if err := rows.Scan(&record.AssetClass, &value, &lastUpdated, &thresholdBps, &staleness, &record.Active, &updaters); err != nil {
			return nil, err
		}
		if record.Nav, err = math.ParseUint(value); err != nil {
			return nil, err
		}
		if lastUpdated.Valid {
			record.LastUpdated = lastUpdated.Time.UTC()
		}
		record.ChangeThresholdBps = uint32(thresholdBps)
		record.StalenessThreshold = time.Duration(staleness) * time.Second
		if updaters != "" {
			if err := json.Unmarshal([]byte(updaters), &record.Updaters); err != nil {
				return nil, err
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
