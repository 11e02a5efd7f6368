// Package models defines the recorded medical interview entity.
package models

import (
	"time"

	id "caregate/pkg/domain"
)

// Status is the interview lifecycle status.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the interview reached a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Interview is one scheduled medical interview for an enrollment. The video
// session itself runs on an external conferencing provider; the core tracks
// scheduling state only.
type Interview struct {
	ID            id.InterviewID
	EnrollmentID  id.EnrollmentID
	InterviewerID id.UserID
	ScheduledAt   time.Time
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
