package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"caregate/internal/document/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
	txcontext "caregate/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, document *models.Document) error {
	const query = `
		INSERT INTO documents (id, enrollment_id, type, storage_handle, status,
		                       attempt_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(document.ID),
		uuid.UUID(document.EnrollmentID),
		string(document.Type),
		document.StorageHandle,
		string(document.Status),
		document.AttemptCount,
		document.LastError,
		document.CreatedAt,
		document.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	const query = `
		SELECT id, enrollment_id, type, storage_handle, status, extraction,
		       attempt_count, last_error, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	return scanDocument(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(documentID)))
}

func (s *PostgresStore) ListByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Document, error) {
	const query = `
		SELECT id, enrollment_id, type, storage_handle, status, extraction,
		       attempt_count, last_error, created_at, updated_at
		FROM documents
		WHERE enrollment_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(enrollmentID))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, document)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, document *models.Document) error {
	var extraction []byte
	if document.Extraction != nil {
		var err error
		extraction, err = json.Marshal(document.Extraction)
		if err != nil {
			return fmt.Errorf("marshal extraction result: %w", err)
		}
	}

	const query = `
		UPDATE documents
		SET storage_handle = $1, status = $2, extraction = $3,
		    attempt_count = $4, last_error = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		document.StorageHandle,
		string(document.Status),
		extraction,
		document.AttemptCount,
		document.LastError,
		document.UpdatedAt,
		uuid.UUID(document.ID),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		document     models.Document
		documentID   uuid.UUID
		enrollmentID uuid.UUID
		docType      string
		status       string
		extraction   []byte
		lastError    sql.NullString
	)
	err := row.Scan(
		&documentID,
		&enrollmentID,
		&docType,
		&document.StorageHandle,
		&status,
		&extraction,
		&document.AttemptCount,
		&lastError,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	document.ID = id.DocumentID(documentID)
	document.EnrollmentID = id.EnrollmentID(enrollmentID)
	document.Type = models.Type(docType)
	document.Status = models.Status(status)
	if len(extraction) > 0 {
		var result models.ExtractionResult
		if err := json.Unmarshal(extraction, &result); err != nil {
			return nil, fmt.Errorf("unmarshal extraction result: %w", err)
		}
		document.Extraction = &result
	}
	if lastError.Valid {
		document.LastError = lastError.String
	}
	return &document, nil
}
