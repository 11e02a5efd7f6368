// Package models defines the enrollment aggregate and its status machine.
package models

import (
	"time"

	id "caregate/pkg/domain"
)

// Status is the case-level enrollment status.
type Status string

const (
	StatusDraft                    Status = "DRAFT"
	StatusDocumentsPending         Status = "DOCUMENTS_PENDING"
	StatusDocumentsSubmitted       Status = "DOCUMENTS_SUBMITTED"
	StatusHealthDeclarationPending Status = "HEALTH_DECLARATION_PENDING"
	StatusInterviewScheduled       Status = "INTERVIEW_SCHEDULED"
	StatusInterviewCompleted       Status = "INTERVIEW_COMPLETED"
	StatusCompleted                Status = "COMPLETED"
	StatusCancelled                Status = "CANCELLED"
)

// transitions is the single source of truth for legal status changes. Any
// attempted transition outside this table fails without mutating the
// aggregate. Status never regresses; CANCELLED is reachable from every
// non-terminal status.
var transitions = map[Status][]Status{
	StatusDraft:                    {StatusDocumentsPending, StatusCancelled},
	StatusDocumentsPending:         {StatusDocumentsSubmitted, StatusHealthDeclarationPending, StatusCancelled},
	StatusDocumentsSubmitted:       {StatusHealthDeclarationPending, StatusCancelled},
	StatusHealthDeclarationPending: {StatusInterviewScheduled, StatusCancelled},
	StatusInterviewScheduled:       {StatusInterviewCompleted, StatusCancelled},
	StatusInterviewCompleted:       {StatusCompleted, StatusCancelled},
	StatusCompleted:                {},
	StatusCancelled:                {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no forward transition is defined from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// NextStatuses returns the statuses reachable from s. Used by the property
// tests; the returned slice must not be mutated.
func NextStatuses(s Status) []Status {
	return transitions[s]
}

// requiredMetadataKeys are the personal fields that must be present before an
// enrollment leaves DRAFT. Values stay opaque to the core.
var requiredMetadataKeys = []string{"full_name", "date_of_birth", "contact_email"}

// MissingMetadataKeys returns the required keys absent from metadata.
func MissingMetadataKeys(metadata map[string]string) []string {
	var missing []string
	for _, key := range requiredMetadataKeys {
		if metadata[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Enrollment is the case aggregate. It exclusively owns its documents and
// interview by identifier; all relations are unidirectional.
type Enrollment struct {
	ID      id.EnrollmentID
	OwnerID id.UserID
	Status  Status
	// Metadata holds personal/contact/address fields. Opaque to the core
	// beyond the presence checks above.
	Metadata map[string]string
	// DocumentIDs is the ordered set of documents submitted for this case.
	DocumentIDs []id.DocumentID
	InterviewID *id.InterviewID
	Declaration *HealthDeclaration

	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// HealthDeclaration is the applicant's self-reported health questionnaire.
type HealthDeclaration struct {
	Answers    map[string]string
	RecordedAt time.Time
}

// requiredDeclarationQuestions must be answered for a declaration to count.
var requiredDeclarationQuestions = []string{"chronic_conditions", "current_medications", "allergies"}

// MissingDeclarationAnswers returns unanswered required questions.
func MissingDeclarationAnswers(answers map[string]string) []string {
	var missing []string
	for _, q := range requiredDeclarationQuestions {
		if answers[q] == "" {
			missing = append(missing, q)
		}
	}
	return missing
}
