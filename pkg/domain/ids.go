// Package domain defines typed identifiers shared across modules.
//
// IDs are distinct named types over uuid.UUID so an EnrollmentID can never be
// passed where a DocumentID is expected. Parse helpers enforce the trust
// boundary invariant: IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "caregate/pkg/domain-errors"
)

type (
	// UserID identifies the person enrolling (or an admin actor).
	UserID uuid.UUID

	// EnrollmentID identifies an enrollment case aggregate.
	EnrollmentID uuid.UUID

	// DocumentID identifies one uploaded document instance.
	DocumentID uuid.UUID

	// InterviewID identifies a scheduled medical interview.
	InterviewID uuid.UUID

	// DeliveryID identifies an outbound notification delivery record.
	DeliveryID uuid.UUID
)

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewEnrollmentID returns a fresh random enrollment ID.
func NewEnrollmentID() EnrollmentID { return EnrollmentID(uuid.New()) }

// NewDocumentID returns a fresh random document ID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewInterviewID returns a fresh random interview ID.
func NewInterviewID() InterviewID { return InterviewID(uuid.New()) }

// NewDeliveryID returns a fresh random delivery ID.
func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id EnrollmentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string   { return uuid.UUID(id).String() }
func (id InterviewID) String() string  { return uuid.UUID(id).String() }
func (id DeliveryID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id EnrollmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id InterviewID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DeliveryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses and validates a user ID from its string form.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseEnrollmentID parses and validates an enrollment ID from its string form.
func ParseEnrollmentID(s string) (EnrollmentID, error) {
	u, err := parseUUID(s, "enrollment_id")
	return EnrollmentID(u), err
}

// ParseDocumentID parses and validates a document ID from its string form.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document_id")
	return DocumentID(u), err
}

// ParseInterviewID parses and validates an interview ID from its string form.
func ParseInterviewID(s string) (InterviewID, error) {
	u, err := parseUUID(s, "interview_id")
	return InterviewID(u), err
}

// ParseDeliveryID parses and validates a delivery ID from its string form.
func ParseDeliveryID(s string) (DeliveryID, error) {
	u, err := parseUUID(s, "delivery_id")
	return DeliveryID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return u, nil
}
