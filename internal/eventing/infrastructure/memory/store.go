package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"tranche-vault/internal/eventing"
)

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

type outboxEntry struct {
	record  eventing.OutboxRecord
	status  string
	next    time.Time
	lastErr string
}

// Store is an in-memory outbox, processed-event and dead-letter store.
type Store struct {
	mu        sync.Mutex
	entries   []*outboxEntry
	processed map[string]struct{}
	dead      []eventing.Envelope
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{processed: make(map[string]struct{})}
}

// Insert appends a pending record due immediately.
func (s *Store) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	if env.EventID == "" {
		return "", errors.New("memory outbox: empty event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := eventing.NewEventID()
	s.entries = append(s.entries, &outboxEntry{
		record: eventing.OutboxRecord{ID: id, Envelope: env},
		status: statusPending,
	})
	return id, nil
}

// Due returns pending records whose next attempt has come, oldest first.
func (s *Store) Due(_ context.Context, now time.Time, limit int) ([]eventing.OutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventing.OutboxRecord
	for _, entry := range s.entries {
		if entry.status != statusPending || entry.next.After(now) {
			continue
		}
		out = append(out, entry.record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Complete marks a record sent.
func (s *Store) Complete(_ context.Context, id string, _ time.Time) error {
	return s.update(id, func(entry *outboxEntry) {
		entry.status = statusSent
		entry.lastErr = ""
	})
}

// Retry records a failed attempt and defers the record until next.
func (s *Store) Retry(_ context.Context, id string, next time.Time, cause error) error {
	return s.update(id, func(entry *outboxEntry) {
		entry.record.Attempts++
		entry.next = next
		entry.lastErr = errText(cause)
	})
}

// Abandon records the final failed attempt.
func (s *Store) Abandon(_ context.Context, id string, cause error) error {
	return s.update(id, func(entry *outboxEntry) {
		entry.record.Attempts++
		entry.status = statusFailed
		entry.lastErr = errText(cause)
	})
}

func (s *Store) update(id string, apply func(*outboxEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.record.ID == id {
			apply(entry)
			return nil
		}
	}
	return errors.New("memory outbox: unknown record")
}

// Pending counts records not yet sent or abandoned.
func (s *Store) Pending(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.status == statusPending {
			count++
		}
	}
	return count, nil
}

// LastError returns the most recent delivery error recorded for a record.
func (s *Store) LastError(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.record.ID == id {
			return entry.lastErr
		}
	}
	return ""
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HasProcessed checks if event was already processed by consumer.
func (s *Store) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID+"|"+consumerName]
	return ok, nil
}

// MarkProcessed records an event as processed by consumer.
func (s *Store) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID+"|"+consumerName] = struct{}{}
	return nil
}

// RecordFailure keeps a dead-lettered envelope.
func (s *Store) RecordFailure(_ context.Context, env eventing.Envelope, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, env)
	return nil
}

// DeadLetters returns dead-lettered envelopes.
func (s *Store) DeadLetters() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventing.Envelope(nil), s.dead...)
}
