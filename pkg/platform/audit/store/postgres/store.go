// Package postgres persists audit entries durably and stages them for Kafka
// publication through a transactional outbox.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "caregate/pkg/domain"
	"caregate/pkg/platform/audit"
	txcontext "caregate/pkg/platform/tx"
)

// Store implements the audit store over PostgreSQL. Append writes the entry
// row and an outbox row in the caller's transaction when one is present, so
// an audit write commits atomically with the mutation it records. The outbox
// worker publishes staged rows to Kafka.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts the entry and its outbox row. There is no update or delete
// path for audit_entries anywhere in this codebase.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	payloadBytes, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	var actorID *uuid.UUID
	if !entry.ActorID.IsNil() {
		uid := uuid.UUID(entry.ActorID)
		actorID = &uid
	}

	execer := s.execer(ctx)

	const insertEntry = `
		INSERT INTO audit_entries (
			id, subject_type, subject_id, actor_id, action,
			category, timestamp, payload, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := execer.ExecContext(ctx, insertEntry,
		entry.ID,
		string(entry.SubjectType),
		entry.SubjectID,
		actorID,
		entry.Action,
		string(audit.Action(entry.Action).Category()),
		entry.Timestamp,
		payloadBytes,
		entry.RequestID,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	outboxPayload, err := json.Marshal(outboxRecord{
		ID:          entry.ID,
		SubjectType: string(entry.SubjectType),
		SubjectID:   entry.SubjectID,
		Action:      entry.Action,
		Category:    string(audit.Action(entry.Action).Category()),
		Timestamp:   entry.Timestamp.Format(time.RFC3339Nano),
		Payload:     entry.Payload,
		RequestID:   entry.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	const insertOutbox = `
		INSERT INTO audit_outbox (id, entry_id, subject_type, subject_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := execer.ExecContext(ctx, insertOutbox,
		uuid.New(),
		entry.ID,
		string(entry.SubjectType),
		entry.SubjectID,
		outboxPayload,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert audit outbox row: %w", err)
	}
	return nil
}

// outboxRecord is the JSON structure published to Kafka.
type outboxRecord struct {
	ID          string            `json:"id"`
	SubjectType string            `json:"subject_type"`
	SubjectID   string            `json:"subject_id"`
	Action      string            `json:"action"`
	Category    string            `json:"category"`
	Timestamp   string            `json:"timestamp"`
	Payload     map[string]string `json:"payload,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
}

// ListBySubject returns the ordered history of one subject. Backed by the
// (subject_type, subject_id, timestamp) index.
func (s *Store) ListBySubject(ctx context.Context, subjectType audit.SubjectType, subjectID string) ([]audit.Entry, error) {
	const query = `
		SELECT id, subject_type, subject_id, actor_id, action, timestamp, payload, request_id
		FROM audit_entries
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(subjectType), subjectID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByTimeRange returns entries within [from, to] ordered by timestamp.
func (s *Store) ListByTimeRange(ctx context.Context, from, to time.Time) ([]audit.Entry, error) {
	const query = `
		SELECT id, subject_type, subject_id, actor_id, action, timestamp, payload, request_id
		FROM audit_entries
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry

	for rows.Next() {
		var (
			entry        audit.Entry
			subjectType  string
			actorID      *uuid.UUID
			payloadBytes []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&subjectType,
			&entry.SubjectID,
			&actorID,
			&entry.Action,
			&entry.Timestamp,
			&payloadBytes,
			&entry.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.SubjectType = audit.SubjectType(subjectType)
		if actorID != nil {
			entry.ActorID = id.UserID(*actorID)
		}
		if len(payloadBytes) > 0 {
			if err := json.Unmarshal(payloadBytes, &entry.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal audit payload: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// PendingOutbox returns up to limit unpublished outbox rows in creation order.
// Used by the Kafka outbox worker.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]OutboxRow, error) {
	const query = `
		SELECT id, entry_id, subject_type, subject_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		if err := rows.Scan(&row.ID, &row.EntryID, &row.SubjectType, &row.SubjectID, &row.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// MarkPublished stamps outbox rows as delivered to Kafka. Rows stay in place
// for traceability; the worker never deletes them.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2)
	`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}

// OutboxRow is one staged Kafka message.
type OutboxRow struct {
	ID          uuid.UUID
	EntryID     string
	SubjectType string
	SubjectID   string
	Payload     []byte
}
