// Package publisher emits audit entries to an append-only store.
package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"caregate/pkg/platform/audit"
)

// Store is the append-only persistence contract. Append must be durable
// before it returns: callers treat it as part of the transaction boundary of
// the action being audited. No update or delete operation exists.
type Store interface {
	Append(ctx context.Context, entry audit.Entry) error
	ListBySubject(ctx context.Context, subjectType audit.SubjectType, subjectID string) ([]audit.Entry, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]audit.Entry, error)
}

// redactedPayloadKeys are payload keys whose raw values never reach storage.
// Extraction may surface unmasked identifiers; the audit trail records that
// they were seen, not what they were.
var redactedPayloadKeys = map[string]bool{
	"ssn":            true,
	"national_id":    true,
	"date_of_birth":  true,
	"address":        true,
	"phone":          true,
	"email":          true,
	"field_values":   true,
	"declaration":    true,
	"medical_notes":  true,
	"account_number": true,
}

const redactedPlaceholder = "[REDACTED]"

// Publisher captures structured audit entries. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func New(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit stamps, redacts, and appends one entry. The entry ID and timestamp are
// assigned here when the caller left them zero.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Payload = redact(entry.Payload)
	return p.store.Append(ctx, entry)
}

// ListBySubject returns the ordered history for one subject.
func (p *Publisher) ListBySubject(ctx context.Context, subjectType audit.SubjectType, subjectID string) ([]audit.Entry, error) {
	return p.store.ListBySubject(ctx, subjectType, subjectID)
}

// redact copies the payload, replacing values of sensitive keys. The input
// map is never mutated; emitters may reuse it.
func redact(payload map[string]string) map[string]string {
	if len(payload) == 0 {
		return payload
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if redactedPayloadKeys[k] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}
