// Package models defines the document entity owned by the verification
// pipeline.
package models

import (
	"time"

	id "caregate/pkg/domain"
)

// Type classifies an uploaded document.
type Type string

const (
	TypeID                Type = "ID"
	TypeProofOfAddress    Type = "PROOF_OF_ADDRESS"
	TypeHealthDeclaration Type = "HEALTH_DECLARATION"
)

// supportedTypes lists every type the pipeline accepts.
var supportedTypes = map[Type]bool{
	TypeID:                true,
	TypeProofOfAddress:    true,
	TypeHealthDeclaration: true,
}

// requiredTypes are the types that must reach VERIFIED before the case can
// advance past document verification.
var requiredTypes = []Type{TypeID, TypeProofOfAddress}

// IsSupported reports whether the pipeline accepts this type.
func (t Type) IsSupported() bool {
	return supportedTypes[t]
}

// RequiredTypes returns the document types a case must have verified.
// The returned slice must not be mutated.
func RequiredTypes() []Type {
	return requiredTypes
}

// Status is the per-document processing status.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusVerified   Status = "VERIFIED"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether the document has reached its final status.
// REJECTED is terminal for this instance; retrying requires a new upload.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Last-error reasons recorded on REJECTED documents.
const (
	ErrReasonExtractionUnavailable = "extraction_unavailable"
	ErrReasonLowConfidence         = "low_confidence"
)

// ExtractionResult is the structured output of the OCR extraction service.
type ExtractionResult struct {
	Confidence float64
	Fields     map[string]string
	// FlaggedSensitive is set when extraction detected unmasked identifiers
	// beyond the expected document type. It triggers an audit entry, not a
	// rejection.
	FlaggedSensitive bool
}

// Document is one uploaded document instance. A document belongs to exactly
// one enrollment and is never reassigned.
type Document struct {
	ID           id.DocumentID
	EnrollmentID id.EnrollmentID
	Type         Type
	// StorageHandle is the opaque content address in the blob store. Empty
	// until the raw bytes have been stored.
	StorageHandle string
	Status        Status
	Extraction    *ExtractionResult
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
