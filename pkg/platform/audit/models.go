// Package audit defines the append-only audit trail shared by every module.
//
// Entries are emitted from domain logic and kept transport-agnostic so stores
// and sinks can fan out. Once written, an entry is never updated or deleted;
// replaying entries for a subject in timestamp order reconstructs its history.
package audit

import (
	"time"

	id "caregate/pkg/domain"
)

// SubjectType names the kind of entity an entry is about.
type SubjectType string

const (
	SubjectEnrollment SubjectType = "enrollment"
	SubjectDocument   SubjectType = "document"
	SubjectInterview  SubjectType = "interview"
	SubjectDelivery   SubjectType = "delivery"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          string
	SubjectType SubjectType
	SubjectID   string
	ActorID     id.UserID
	Action      string
	Timestamp   time.Time
	// Payload carries structured context (from/to status, reasons, device
	// info). Raw sensitive values are redacted by the publisher before the
	// entry reaches any store.
	Payload   map[string]string
	RequestID string
}

// Category classifies audit actions by their primary purpose. Categories
// drive retention policy and downstream routing, not emission.
type Category string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance Category = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity Category = "security"

	// CategoryOperations covers events useful for debugging and visibility.
	CategoryOperations Category = "operations"
)

// Action names every auditable action in the system.
type Action string

const (
	// Enrollment lifecycle
	ActionEnrollmentCreated       Action = "enrollment_created"
	ActionEnrollmentStatusChanged Action = "enrollment_status_changed"
	ActionEnrollmentCancelled     Action = "enrollment_cancelled"
	ActionEnrollmentCompleted     Action = "enrollment_completed"
	ActionHealthDeclarationSaved  Action = "health_declaration_recorded"
	ActionInterviewScheduled      Action = "interview_scheduled"
	ActionInterviewCompleted      Action = "interview_completed"

	// Document pipeline
	ActionDocumentUploaded    Action = "document_uploaded"
	ActionDocumentVerified    Action = "document_verified"
	ActionDocumentRejected    Action = "document_rejected"
	ActionExtractionRetried   Action = "extraction_retried"
	ActionSensitiveDataAccess Action = "sensitive_data_access"
	ActionDiscardedPostCancel Action = "discarded_post_cancel"

	// Access control
	ActionForbiddenAccess   Action = "forbidden_access"
	ActionInvalidTransition Action = "invalid_transition_attempt"

	// Notifications
	ActionNotificationDelivered Action = "notification_delivered"
	ActionNotificationFailed    Action = "notification_failed"
)

// actionCategories maps each action to its category.
// Compliance: legal/regulatory significance, long retention required.
// Security: security monitoring and forensics.
// Operations: debugging and operational visibility, can be sampled.
var actionCategories = map[Action]Category{
	ActionEnrollmentCreated:       CategoryCompliance,
	ActionEnrollmentStatusChanged: CategoryCompliance,
	ActionEnrollmentCancelled:     CategoryCompliance,
	ActionEnrollmentCompleted:     CategoryCompliance,
	ActionHealthDeclarationSaved:  CategoryCompliance,
	ActionInterviewScheduled:      CategoryCompliance,
	ActionInterviewCompleted:      CategoryCompliance,
	ActionDocumentVerified:        CategoryCompliance,
	ActionDocumentRejected:        CategoryCompliance,

	ActionSensitiveDataAccess: CategorySecurity,
	ActionForbiddenAccess:     CategorySecurity,
	ActionInvalidTransition:   CategorySecurity,

	ActionDocumentUploaded:      CategoryOperations,
	ActionExtractionRetried:     CategoryOperations,
	ActionDiscardedPostCancel:   CategoryOperations,
	ActionNotificationDelivered: CategoryOperations,
	ActionNotificationFailed:    CategoryOperations,
}

// Category returns the category for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
