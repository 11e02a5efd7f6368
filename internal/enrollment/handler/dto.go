package handler

import (
	"time"

	docmodels "caregate/internal/document/models"
	"caregate/internal/enrollment/models"
	"caregate/internal/enrollment/service"
	ivmodels "caregate/internal/interview/models"
)

type createEnrollmentRequest struct {
	Metadata map[string]string `json:"metadata" validate:"required"`
}

type healthDeclarationRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

type scheduleInterviewRequest struct {
	InterviewerID string    `json:"interviewer_id" validate:"required,uuid4"`
	ScheduledAt   time.Time `json:"scheduled_at" validate:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type enrollmentResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Status       string     `json:"status"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type documentResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type interviewResponse struct {
	ID            string    `json:"id"`
	InterviewerID string    `json:"interviewer_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
}

type viewResponse struct {
	Enrollment enrollmentResponse `json:"enrollment"`
	Documents  []documentResponse `json:"documents"`
	Interview  *interviewResponse `json:"interview,omitempty"`
}

func toEnrollmentResponse(e *models.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:           e.ID.String(),
		OwnerID:      e.OwnerID.String(),
		Status:       string(e.Status),
		CancelReason: e.CancelReason,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		CompletedAt:  e.CompletedAt,
	}
}

func toDocumentResponse(d *docmodels.Document) documentResponse {
	return documentResponse{
		ID:        d.ID.String(),
		Type:      string(d.Type),
		Status:    string(d.Status),
		LastError: d.LastError,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toInterviewResponse(iv *ivmodels.Interview) *interviewResponse {
	if iv == nil {
		return nil
	}
	return &interviewResponse{
		ID:            iv.ID.String(),
		InterviewerID: iv.InterviewerID.String(),
		ScheduledAt:   iv.ScheduledAt,
		Status:        string(iv.Status),
	}
}

func toViewResponse(v *service.View) viewResponse {
	documents := make([]documentResponse, 0, len(v.Documents))
	for _, d := range v.Documents {
		documents = append(documents, toDocumentResponse(d))
	}
	return viewResponse{
		Enrollment: toEnrollmentResponse(v.Enrollment),
		Documents:  documents,
		Interview:  toInterviewResponse(v.Interview),
	}
}
