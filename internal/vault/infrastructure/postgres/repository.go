package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"

	vault "tranche-vault/internal/vault/domain"
)

// Tables names the relations a VaultRepository writes.
type Tables struct {
	State    string
	Balances string
	Tranches string
	Requests string
}

// DefaultTables matches the bundled migrations.
var DefaultTables = Tables{
	State:    "vault_state",
	Balances: "vault_balances",
	Tranches: "vault_tranches",
	Requests: "redemption_requests",
}

// VaultRepository is a Postgres implementation of vault.Repository.
type VaultRepository struct {
	db     *sql.DB
	tables Tables
}

// RepositoryOption configures the repository.
type RepositoryOption func(*VaultRepository)

// WithTables overrides table names; empty fields keep the default.
func WithTables(tables Tables) RepositoryOption {
	return func(repo *VaultRepository) {
		if tables.State != "" {
			repo.tables.State = tables.State
		}
		if tables.Balances != "" {
			repo.tables.Balances = tables.Balances
		}
		if tables.Tranches != "" {
			repo.tables.Tranches = tables.Tranches
		}
		if tables.Requests != "" {
			repo.tables.Requests = tables.Requests
		}
	}
}

// NewVaultRepository constructs a repository with defaults.
func NewVaultRepository(db *sql.DB, opts ...RepositoryOption) *VaultRepository {
	repo := &VaultRepository{db: db, tables: DefaultTables}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Load rebuilds the vault for assetClass. It returns nil, nil when no state row exists.
func (r *VaultRepository) Load(ctx context.Context, assetClass string) (*vault.Vault, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("vault repo: nil db")
	}
	snapshot := vault.Snapshot{State: vault.State{AssetClass: assetClass}}

	stateQuery := fmt.Sprintf(`
SELECT lock_seconds, supply::text, high_water_mark::text, last_fee_collection
FROM %s
WHERE asset_class = $1`, r.tables.State)
	var (
		lockSeconds int64
		supply      string
		hwm         string
		lastFee     sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, stateQuery, assetClass).Scan(&lockSeconds, &supply, &hwm, &lastFee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snapshot.State.LockDuration = time.Duration(lockSeconds) * time.Second
	if snapshot.State.Supply, err = math.ParseUint(supply); err != nil {
		return nil, err
	}
	if snapshot.State.HighWaterMark, err = math.ParseUint(hwm); err != nil {
		return nil, err
	}
	if lastFee.Valid {
		snapshot.State.LastFeeCollection = lastFee.Time.UTC()
	}

	if snapshot.Holders, err = r.loadHolders(ctx, assetClass); err != nil {
		return nil, err
	}
	if snapshot.Requests, err = r.loadRequests(ctx, assetClass); err != nil {
		return nil, err
	}
	return vault.Restore(snapshot)
}

func (r *VaultRepository) loadHolders(ctx context.Context, assetClass string) ([]vault.HolderState, error) {
	index := make(map[string]int)
	var holders []vault.HolderState
	holderAt := func(holder string) *vault.HolderState {
		i, ok := index[holder]
		if !ok {
			i = len(holders)
			index[holder] = i
			holders = append(holders, vault.HolderState{Holder: holder, Balance: math.ZeroUint()})
		}
		return &holders[i]
	}

	balanceQuery := fmt.Sprintf(`
SELECT holder, balance::text
FROM %s
WHERE asset_class = $1
ORDER BY holder`, r.tables.Balances)
	rows, err := r.db.QueryContext(ctx, balanceQuery, assetClass)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var holder, raw string
		if err := rows.Scan(&holder, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		balance, err := math.ParseUint(raw)
		if err != nil {
			rows.Close()
			return nil, err
		}
		holderAt(holder).Balance = balance
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	trancheQuery := fmt.Sprintf(`
SELECT holder, shares::text, unlock_at
FROM %s
WHERE asset_class = $1
ORDER BY holder, seq`, r.tables.Tranches)
	rows, err = r.db.QueryContext(ctx, trancheQuery, assetClass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			holder, raw string
			unlockAt    time.Time
		)
		if err := rows.Scan(&holder, &raw, &unlockAt); err != nil {
			return nil, err
		}
		shares, err := math.ParseUint(raw)
		if err != nil {
			return nil, err
		}
		h := holderAt(holder)
		h.Tranches = append(h.Tranches, vault.Tranche{Shares: shares, UnlockAt: unlockAt.UTC()})
	}
	return holders, rows.Err()
}

func (r *VaultRepository) loadRequests(ctx context.Context, assetClass string) ([]vault.Request, error) {
	query := fmt.Sprintf(`
SELECT id, owner, receiver, shares::text, penalty::text, request_time, settlement_date, is_processed, is_cancelled, pieces
FROM %s
WHERE asset_class = $1
ORDER BY id`, r.tables.Requests)
	rows, err := r.db.QueryContext(ctx, query, assetClass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []vault.Request
	for rows.Next() {
		var (
			request         vault.Request
			shares, penalty string
			pieces          []byte
		)
		if err := rows.Scan(
			&request.ID,
			&request.Owner,
			&request.Receiver,
			&shares,
			&penalty,
			&request.RequestTime,
			&request.SettlementDate,
			&request.IsProcessed,
			&request.IsCancelled,
			&pieces,
		); err != nil {
			return nil, err
		}
		if len(pieces) > 0 {
			if err := json.Unmarshal(pieces, &request.Pieces); err != nil {
				return nil, fmt.Errorf("request %d pieces: %w", request.ID, err)
			}
		}
		if request.Shares, err = math.ParseUint(shares); err != nil {
			return nil, err
		}
		if request.Penalty, err = math.ParseUint(penalty); err != nil {
			return nil, err
		}
		request.RequestTime = request.RequestTime.UTC()
		request.SettlementDate = request.SettlementDate.UTC()
		for i := range request.Pieces {
			request.Pieces[i].UnlockAt = request.Pieces[i].UnlockAt.UTC()
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// Save writes the rows touched since the vault was last persisted, in one transaction.
func (r *VaultRepository) Save(ctx context.Context, v *vault.Vault) error {
	if r == nil || r.db == nil {
		return errors.New("vault repo: nil db")
	}
	if v == nil {
		return errors.New("vault repo: nil vault")
	}
	changes := v.Changes()
	if changes.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	if changes.State != nil {
		if err := r.saveState(ctx, tx, *changes.State, now); err != nil {
			return err
		}
	}
	for _, holder := range changes.Holders {
		if err := r.saveHolder(ctx, tx, v.AssetClass(), holder, now); err != nil {
			return err
		}
	}
	for _, request := range changes.Requests {
		if err := r.saveRequest(ctx, tx, v.AssetClass(), request, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *VaultRepository) saveState(ctx context.Context, tx *sql.Tx, state vault.State, now time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (asset_class, lock_seconds, supply, high_water_mark, last_fee_collection, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
ON CONFLICT (asset_class)
DO UPDATE SET
	lock_seconds = EXCLUDED.lock_seconds,
	supply = EXCLUDED.supply,
	high_water_mark = EXCLUDED.high_water_mark,
	last_fee_collection = EXCLUDED.last_fee_collection,
	updated_at = EXCLUDED.updated_at`, r.tables.State)
	var lastFee sql.NullTime
	if !state.LastFeeCollection.IsZero() {
		lastFee = sql.NullTime{Time: state.LastFeeCollection.UTC(), Valid: true}
	}
	_, err := tx.ExecContext(ctx, query,
		state.AssetClass,
		int64(state.LockDuration/time.Second),
		numeric(state.Supply),
		numeric(state.HighWaterMark),
		lastFee,
		now,
	)
	return err
}

func (r *VaultRepository) saveHolder(ctx context.Context, tx *sql.Tx, assetClass string, holder vault.HolderState, now time.Time) error {
	balanceQuery := fmt.Sprintf(`
INSERT INTO %s (asset_class, holder, balance, updated_at)
VALUES ($1, $2, $3::numeric, $4)
ON CONFLICT (asset_class, holder)
DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`, r.tables.Balances)
	if _, err := tx.ExecContext(ctx, balanceQuery, assetClass, holder.Holder, numeric(holder.Balance), now); err != nil {
		return err
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE asset_class = $1 AND holder = $2`, r.tables.Tranches)
	if _, err := tx.ExecContext(ctx, deleteQuery, assetClass, holder.Holder); err != nil {
		return err
	}
	insertQuery := fmt.Sprintf(`
INSERT INTO %s (asset_class, holder, seq, shares, unlock_at)
VALUES ($1, $2, $3, $4::numeric, $5)`, r.tables.Tranches)
	for i, tranche := range holder.Tranches {
		if _, err := tx.ExecContext(ctx, insertQuery, assetClass, holder.Holder, i, numeric(tranche.Shares), tranche.UnlockAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (r *VaultRepository) saveRequest(ctx context.Context, tx *sql.Tx, assetClass string, request vault.Request, now time.Time) error {
	pieces, err := json.Marshal(request.Pieces)
	if err != nil {
		return err
	}
	if request.Pieces == nil {
		pieces = []byte("[]")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_class, id, owner, receiver, shares, penalty, request_time, settlement_date, is_processed, is_cancelled, pieces, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11::jsonb, $12)
ON CONFLICT (asset_class, id)
DO UPDATE SET
	is_processed = EXCLUDED.is_processed,
	is_cancelled = EXCLUDED.is_cancelled,
	updated_at = EXCLUDED.updated_at`, r.tables.Requests)
	_, err = tx.ExecContext(ctx, query,
		assetClass,
		int64(request.ID),
		request.Owner,
		request.Receiver,
		numeric(request.Shares),
		numeric(request.Penalty),
		request.RequestTime.UTC(),
		request.SettlementDate.UTC(),
		request.IsProcessed,
		request.IsCancelled,
		string(pieces),
		now,
	)
	return err
}

func numeric(value math.Uint) string {
	if value == (math.Uint{}) {
		return "0"
	}
	return value.String()
}
