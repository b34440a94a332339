package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tranche-vault/internal/eventing"
)

const defaultOutboxTable = "event_outbox"

var errNilOutbox = errors.New("outbox store: nil db")

// OutboxStore persists envelopes in event_outbox until the dispatcher delivers them.
type OutboxStore struct {
	db    *sql.DB
	table string
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert stores env as a pending record due immediately.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errNilOutbox
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id := eventing.NewEventID()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, asset_class, payload, status, attempts)
VALUES ($1, $2, $3, $4, $5, 'pending', 0)`, s.table),
		id, env.EventID, env.EventType, env.AssetClass, body)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Due returns pending records whose next attempt is at or before now.
func (s *OutboxStore) Due(ctx context.Context, now time.Time, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilOutbox
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, payload, attempts
FROM %s
WHERE status = 'pending' AND next_attempt_at <= $1
ORDER BY created_at, id
LIMIT $2`, s.table), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eventing.OutboxRecord
	for rows.Next() {
		var (
			record eventing.OutboxRecord
			body   []byte
		)
		if err := rows.Scan(&record.ID, &body, &record.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Complete marks the record sent.
func (s *OutboxStore) Complete(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE %s SET status = 'sent', sent_at = $2, last_error = '' WHERE id = $1`, id, at.UTC())
}

// Retry counts a failed attempt and defers the record until next.
func (s *OutboxStore) Retry(ctx context.Context, id string, next time.Time, cause error) error {
	return s.exec(ctx, `
UPDATE %s
SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3
WHERE id = $1 AND status = 'pending'`, id, next.UTC(), causeText(cause))
}

// Abandon counts the final failed attempt and parks the record.
func (s *OutboxStore) Abandon(ctx context.Context, id string, cause error) error {
	return s.exec(ctx, `
UPDATE %s
SET status = 'failed', attempts = attempts + 1, last_error = $2
WHERE id = $1`, id, causeText(cause))
}

// Pending counts records still awaiting delivery.
func (s *OutboxStore) Pending(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNilOutbox
	}
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = 'pending'`, s.table)).Scan(&count)
	return count, err
}

func (s *OutboxStore) exec(ctx context.Context, query string, args ...any) error {
	if s == nil || s.db == nil {
		return errNilOutbox
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(query, s.table), args...)
	return err
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
