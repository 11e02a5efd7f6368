package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caregate/internal/enrollment/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
	txcontext "caregate/pkg/platform/tx"
)

// PostgresStore persists enrollments. The compare-and-swap on status is a
// conditional UPDATE; a zero-row result is disambiguated into not-found vs
// conflict with a follow-up existence check.
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

func (s *PostgresStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	metadata, err := json.Marshal(enrollment.Metadata)
	if err != nil {
		return fmt.Errorf("marshal enrollment metadata: %w", err)
	}

	const query = `
		INSERT INTO enrollments (id, owner_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(enrollment.ID),
		uuid.UUID(enrollment.OwnerID),
		string(enrollment.Status),
		metadata,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	const query = `
		SELECT id, owner_id, status, metadata, interview_id, declaration,
		       cancel_reason, created_at, updated_at, completed_at
		FROM enrollments
		WHERE id = $1
	`
	enrollment, err := scanEnrollment(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(enrollmentID)))
	if err != nil {
		return nil, err
	}

	documentIDs, err := s.documentIDs(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	enrollment.DocumentIDs = documentIDs
	return enrollment, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Enrollment, error) {
	const query = `
		SELECT id, owner_id, status, metadata, interview_id, declaration,
		       cancel_reason, created_at, updated_at, completed_at
		FROM enrollments
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("query enrollments by owner: %w", err)
	}
	defer rows.Close()

	var out []*models.Enrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, enrollment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatusCAS(ctx context.Context, enrollmentID id.EnrollmentID, expected, next models.Status, at time.Time) error {
	const query = `
		UPDATE enrollments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		string(next), at, uuid.UUID(enrollmentID), string(expected))
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, uuid.UUID(enrollmentID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check enrollment existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) AttachDocument(ctx context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID) error {
	const query = `
		INSERT INTO enrollment_documents (enrollment_id, document_id, attached_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(enrollmentID), uuid.UUID(documentID), time.Now().UTC()); err != nil {
		return fmt.Errorf("attach document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetInterview(ctx context.Context, enrollmentID id.EnrollmentID, interviewID id.InterviewID) error {
	return s.updateColumn(ctx, enrollmentID, "interview_id", uuid.UUID(interviewID))
}

func (s *PostgresStore) SaveDeclaration(ctx context.Context, enrollmentID id.EnrollmentID, declaration models.HealthDeclaration) error {
	payload, err := json.Marshal(declaration)
	if err != nil {
		return fmt.Errorf("marshal health declaration: %w", err)
	}
	return s.updateColumn(ctx, enrollmentID, "declaration", payload)
}

func (s *PostgresStore) SetCancelReason(ctx context.Context, enrollmentID id.EnrollmentID, reason string) error {
	return s.updateColumn(ctx, enrollmentID, "cancel_reason", reason)
}

func (s *PostgresStore) SetCompletedAt(ctx context.Context, enrollmentID id.EnrollmentID, at time.Time) error {
	return s.updateColumn(ctx, enrollmentID, "completed_at", at)
}

func (s *PostgresStore) updateColumn(ctx context.Context, enrollmentID id.EnrollmentID, column string, value any) error {
	query := fmt.Sprintf(`UPDATE enrollments SET %s = $1 WHERE id = $2`, column)
	result, err := s.execer(ctx).ExecContext(ctx, query, value, uuid.UUID(enrollmentID))
	if err != nil {
		return fmt.Errorf("update enrollment %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment %s: %w", column, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) documentIDs(ctx context.Context, enrollmentID id.EnrollmentID) ([]id.DocumentID, error) {
	const query = `
		SELECT document_id FROM enrollment_documents
		WHERE enrollment_id = $1
		ORDER BY attached_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(enrollmentID))
	if err != nil {
		return nil, fmt.Errorf("query enrollment documents: %w", err)
	}
	defer rows.Close()

	var out []id.DocumentID
	for rows.Next() {
		var documentID uuid.UUID
		if err := rows.Scan(&documentID); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		out = append(out, id.DocumentID(documentID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment   models.Enrollment
		enrollmentID uuid.UUID
		ownerID      uuid.UUID
		status       string
		metadata     []byte
		interviewID  *uuid.UUID
		declaration  []byte
		cancelReason sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&enrollmentID,
		&ownerID,
		&status,
		&metadata,
		&interviewID,
		&declaration,
		&cancelReason,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}

	enrollment.ID = id.EnrollmentID(enrollmentID)
	enrollment.OwnerID = id.UserID(ownerID)
	enrollment.Status = models.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &enrollment.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal enrollment metadata: %w", err)
		}
	}
	if interviewID != nil {
		iid := id.InterviewID(*interviewID)
		enrollment.InterviewID = &iid
	}
	if len(declaration) > 0 {
		var decl models.HealthDeclaration
		if err := json.Unmarshal(declaration, &decl); err != nil {
			return nil, fmt.Errorf("unmarshal health declaration: %w", err)
		}
		enrollment.Declaration = &decl
	}
	if cancelReason.Valid {
		enrollment.CancelReason = cancelReason.String
	}
	if completedAt.Valid {
		at := completedAt.Time
		enrollment.CompletedAt = &at
	}
	return &enrollment, nil
}
