// Package postgres persists the bridge journal in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/pushbridge/internal/infra/journal"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

const (
	journalInsertSQL = `
INSERT INTO bridge_journal (
    id,
    call_id,
    direction,
    module,
    method,
    status,
    payload,
    error,
    recorded_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, NULLIF($8, ''), $9);
`

	journalRecentSQL = `
SELECT
    id,
    call_id,
    direction,
    module,
    method,
    status,
    payload,
    error,
    recorded_at
FROM bridge_journal
ORDER BY recorded_at DESC, seq DESC
LIMIT $1;
`

	journalByCallSQL = `
SELECT
    id,
    call_id,
    direction,
    module,
    method,
    status,
    payload,
    error,
    recorded_at
FROM bridge_journal
WHERE call_id = $1
ORDER BY seq ASC;
`
)

// JournalStore is a journal.Store backed by the bridge_journal table.
type JournalStore struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*JournalStore)(nil)

// NewJournalStore constructs a JournalStore backed by the provided pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Pool exposes the underlying pgx pool.
func (s *JournalStore) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Append inserts one entry.
func (s *JournalStore) Append(ctx context.Context, entry journal.Entry) error {
	if s.pool == nil {
		return fmt.Errorf("journal store: nil pool")
	}
	if entry.ID == uuid.Nil {
		return fmt.Errorf("journal store: entry id required")
	}
	if strings.TrimSpace(entry.Method) == "" {
		return fmt.Errorf("journal store: method required")
	}
	payload := encodePayload(entry.Payload)
	_, err := s.pool.Exec(ctx, journalInsertSQL,
		entry.ID,
		entry.CallID,
		entry.Direction,
		entry.Module,
		entry.Method,
		entry.Status,
		payload,
		entry.Error,
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("journal store: insert %s: %w", entry.Method, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *JournalStore) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("journal store: nil pool")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.query(ctx, journalRecentSQL, limit)
}

// ByCall returns the call and callback entries for callID in write order.
func (s *JournalStore) ByCall(ctx context.Context, callID uuid.UUID) ([]journal.Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("journal store: nil pool")
	}
	return s.query(ctx, journalByCallSQL, callID)
}

func (s *JournalStore) query(ctx context.Context, sql string, arg any) ([]journal.Entry, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("journal store: query: %w", err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var (
			entry   journal.Entry
			payload []byte
			errText pgtype.Text
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.CallID,
			&entry.Direction,
			&entry.Module,
			&entry.Method,
			&entry.Status,
			&payload,
			&errText,
			&entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("journal store: scan: %w", err)
		}
		if len(payload) > 0 {
			entry.Payload = json.RawMessage(payload)
		}
		if errText.Valid {
			entry.Error = errText.String
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal store: rows: %w", err)
	}
	return out, nil
}

// encodePayload returns a jsonb-compatible value. Payloads that are not valid
// JSON are stored as a JSON string.
func encodePayload(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	if json.Valid(payload) {
		return string(payload)
	}
	quoted, err := json.Marshal(string(payload))
	if err != nil {
		return nil
	}
	return string(quoted)
}
