package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caregate/internal/interview/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
	txcontext "caregate/pkg/platform/tx"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Save(ctx context.Context, interview *models.Interview) error {
	const query = `
		INSERT INTO interviews (id, enrollment_id, interviewer_id, scheduled_at,
		                        status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET interviewer_id = EXCLUDED.interviewer_id,
		    scheduled_at = EXCLUDED.scheduled_at,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(interview.ID),
		uuid.UUID(interview.EnrollmentID),
		uuid.UUID(interview.InterviewerID),
		interview.ScheduledAt,
		string(interview.Status),
		interview.CreatedAt,
		interview.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save interview: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, interviewID id.InterviewID) (*models.Interview, error) {
	const query = `
		SELECT id, enrollment_id, interviewer_id, scheduled_at, status,
		       created_at, updated_at
		FROM interviews
		WHERE id = $1
	`
	var (
		interview     models.Interview
		ivID          uuid.UUID
		enrollmentID  uuid.UUID
		interviewerID uuid.UUID
		status        string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(interviewID)).Scan(
		&ivID,
		&enrollmentID,
		&interviewerID,
		&interview.ScheduledAt,
		&status,
		&interview.CreatedAt,
		&interview.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview: %w", err)
	}
	interview.ID = id.InterviewID(ivID)
	interview.EnrollmentID = id.EnrollmentID(enrollmentID)
	interview.InterviewerID = id.UserID(interviewerID)
	interview.Status = models.Status(status)
	return &interview, nil
}

// UpdateStatus refuses to move interviews already in a terminal status; the
// guard runs in the same statement so concurrent completion and cancellation
// cannot both apply.
func (s *Postgres) UpdateStatus(ctx context.Context, interviewID id.InterviewID, status models.Status) error {
	const query = `
		UPDATE interviews
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status NOT IN ($4, $5)
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		string(status),
		time.Now().UTC(),
		uuid.UUID(interviewID),
		string(models.StatusCompleted),
		string(models.StatusCancelled),
	)
	if err != nil {
		return fmt.Errorf("update interview status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update interview status: %w", err)
	}
	if affected == 0 {
		const existsQuery = `SELECT EXISTS (SELECT 1 FROM interviews WHERE id = $1)`
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx, existsQuery, uuid.UUID(interviewID)).Scan(&exists); err != nil {
			return fmt.Errorf("check interview existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrTerminal
	}
	return nil
}
