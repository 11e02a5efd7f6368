package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregate/internal/enrollment/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
)

func TestPostgresUpdateStatusCAS(t *testing.T) {
	enrollmentID := id.EnrollmentID(uuid.New())
	now := time.Now().UTC()

	t.Run("swap succeeds when expected status still holds", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("UPDATE enrollments").
			WithArgs("DOCUMENTS_PENDING", now, uuid.UUID(enrollmentID), "DRAFT").
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := NewPostgresStore(db)
		err = s.UpdateStatusCAS(context.Background(), enrollmentID, models.StatusDraft, models.StatusDocumentsPending, now)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("losing the race returns conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("UPDATE enrollments").
			WithArgs("DOCUMENTS_PENDING", now, uuid.UUID(enrollmentID), "DRAFT").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(uuid.UUID(enrollmentID)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		s := NewPostgresStore(db)
		err = s.UpdateStatusCAS(context.Background(), enrollmentID, models.StatusDraft, models.StatusDocumentsPending, now)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing enrollment returns not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("UPDATE enrollments").
			WithArgs("CANCELLED", now, uuid.UUID(enrollmentID), "DRAFT").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(uuid.UUID(enrollmentID)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		s := NewPostgresStore(db)
		err = s.UpdateStatusCAS(context.Background(), enrollmentID, models.StatusDraft, models.StatusCancelled, now)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresCreateInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	enrollment := &models.Enrollment{
		ID:        id.EnrollmentID(uuid.New()),
		OwnerID:   id.UserID(uuid.New()),
		Status:    models.StatusDraft,
		Metadata:  map[string]string{"full_name": "Sample Member"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(uuid.UUID(enrollment.ID), uuid.UUID(enrollment.OwnerID), "DRAFT",
			sqlmock.AnyArg(), enrollment.CreatedAt, enrollment.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	require.NoError(t, s.Create(context.Background(), enrollment))
	assert.NoError(t, mock.ExpectationsWereMet())
}
