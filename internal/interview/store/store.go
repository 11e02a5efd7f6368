// Package store persists interviews.
package store

import (
	"context"

	"caregate/internal/interview/models"
	id "caregate/pkg/domain"
)

// Store is the interview persistence contract.
type Store interface {
	Save(ctx context.Context, interview *models.Interview) error
	FindByID(ctx context.Context, interviewID id.InterviewID) (*models.Interview, error)
	// UpdateStatus moves an interview to a new status. Returns
	// sentinel.ErrNotFound when missing and sentinel.ErrTerminal when the
	// interview already reached a final status.
	UpdateStatus(ctx context.Context, interviewID id.InterviewID, status models.Status) error
}
