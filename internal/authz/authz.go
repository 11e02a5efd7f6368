// Package authz is the capability check consumed before every mutating
// orchestrator operation. Services call Check exactly once at their boundary;
// the state machine itself stays free of access-control branching.
package authz

import (
	"context"

	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
)

// Action names a mutating capability on an enrollment case.
type Action string

const (
	ActionCreateEnrollment  Action = "enrollment.create"
	ActionSubmitDocuments   Action = "enrollment.submit_documents"
	ActionUploadDocument    Action = "enrollment.upload_document"
	ActionRecordDeclaration Action = "enrollment.record_declaration"
	ActionScheduleInterview Action = "enrollment.schedule_interview"
	ActionCompleteInterview Action = "enrollment.complete_interview"
	ActionCancelEnrollment  Action = "enrollment.cancel"
	ActionReadEnrollment    Action = "enrollment.read"
	ActionReadAudit         Action = "audit.read"
	ActionRedeliverWebhook  Action = "notification.redeliver"
)

// Known roles. Members act on their own cases; agents and medical staff act
// on any case within their capability set.
const (
	RoleMember     = "member"
	RoleAgent      = "agent"
	RoleMedical    = "medical"
	RoleCompliance = "compliance"
	RoleAdmin      = "admin"
)

// Actor is the authenticated principal attempting an action.
type Actor struct {
	ID    id.UserID
	Roles []string
}

// Resource identifies what the action targets. OwnerID is the enrolling
// member; ownership gates member self-service.
type Resource struct {
	Type    string
	ID      string
	OwnerID id.UserID
}

// Gate decides whether an actor may perform an action on a resource.
// A deny returns a forbidden error and the mutation is never attempted.
type Gate interface {
	Check(ctx context.Context, actor Actor, action Action, resource Resource) error
}

// rolePolicy is the static role-to-capability table.
var rolePolicy = map[string]map[Action]bool{
	RoleMember: {
		ActionCreateEnrollment:  true,
		ActionSubmitDocuments:   true,
		ActionUploadDocument:    true,
		ActionRecordDeclaration: true,
		ActionCancelEnrollment:  true,
		ActionReadEnrollment:    true,
	},
	RoleAgent: {
		ActionScheduleInterview: true,
		ActionCancelEnrollment:  true,
		ActionReadEnrollment:    true,
	},
	RoleMedical: {
		ActionCompleteInterview: true,
		ActionReadEnrollment:    true,
	},
	RoleCompliance: {
		ActionReadEnrollment:   true,
		ActionReadAudit:        true,
		ActionRedeliverWebhook: true,
	},
}

// memberOnlyOwnActions require the member to own the targeted case. Staff
// roles are not ownership-bound.
var memberOwnershipBound = map[Action]bool{
	ActionSubmitDocuments:   true,
	ActionUploadDocument:    true,
	ActionRecordDeclaration: true,
	ActionCancelEnrollment:  true,
	ActionReadEnrollment:    true,
}

// PolicyGate implements Gate from the static role table.
type PolicyGate struct{}

func NewPolicyGate() *PolicyGate {
	return &PolicyGate{}
}

func (g *PolicyGate) Check(_ context.Context, actor Actor, action Action, resource Resource) error {
	for _, role := range actor.Roles {
		if role == RoleAdmin {
			return nil
		}
		if !rolePolicy[role][action] {
			continue
		}
		if role == RoleMember && memberOwnershipBound[action] {
			if resource.OwnerID.IsNil() || resource.OwnerID != actor.ID {
				continue
			}
		}
		return nil
	}
	return dErrors.Newf(dErrors.CodeForbidden, "actor is not permitted to %s", string(action))
}
