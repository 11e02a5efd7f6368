// Package store persists enrollment aggregates. Implementations must make
// UpdateStatusCAS atomic: a caller whose expected status no longer matches
// gets sentinel.ErrConflict and the row is untouched.
package store

import (
	"context"
	"time"

	"caregate/internal/enrollment/models"
	id "caregate/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Enrollment, error)

	// UpdateStatusCAS transitions the enrollment from expected to next only if
	// the stored status still equals expected. Returns sentinel.ErrNotFound
	// when the enrollment does not exist and sentinel.ErrConflict when the
	// stored status has moved on.
	UpdateStatusCAS(ctx context.Context, enrollmentID id.EnrollmentID, expected, next models.Status, at time.Time) error

	// AttachDocument appends a document reference to the aggregate.
	AttachDocument(ctx context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID) error

	// SetInterview links the scheduled interview to the aggregate.
	SetInterview(ctx context.Context, enrollmentID id.EnrollmentID, interviewID id.InterviewID) error

	// SaveDeclaration records the health declaration on the aggregate.
	SaveDeclaration(ctx context.Context, enrollmentID id.EnrollmentID, declaration models.HealthDeclaration) error

	// SetCancelReason records why a case was cancelled.
	SetCancelReason(ctx context.Context, enrollmentID id.EnrollmentID, reason string) error

	// SetCompletedAt stamps the completion time.
	SetCompletedAt(ctx context.Context, enrollmentID id.EnrollmentID, at time.Time) error
}
