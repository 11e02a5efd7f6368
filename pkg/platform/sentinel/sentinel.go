package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: compare-and-swap lost, current state differs from expected
// - ErrTerminal: entity is in a terminal status and rejects further mutation
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrAlreadyClaimed: processing claim already held by another worker
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrTerminal       = errors.New("terminal state")
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrUnavailable    = errors.New("unavailable")
)
