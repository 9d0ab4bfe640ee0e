package baseline

import (
	"time"

	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditAction identifies the kind of baseline lifecycle event recorded
type AuditAction string

const (
	AuditActionCreated   AuditAction = "BASELINE_CREATED"
	AuditActionHandedOff AuditAction = "BASELINE_HANDED_OFF"
	AuditActionAccepted  AuditAction = "BASELINE_ACCEPTED"
	AuditActionRejected  AuditAction = "BASELINE_REJECTED"
	AuditActionReverted  AuditAction = "BASELINE_REVERTED" // written by the consistency auditor
)

// IsValid checks if the action is a known AuditAction
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionCreated, AuditActionHandedOff, AuditActionAccepted,
		AuditActionRejected, AuditActionReverted:
		return true
	}
	return false
}

// String returns the string representation of AuditAction
func (a AuditAction) String() string {
	return string(a)
}

// AuditEntry is one append-only record of a baseline lifecycle event.
// A baseline may be ACCEPTED if and only if a BASELINE_ACCEPTED entry
// exists for its project; the consistency auditor repairs violations.
type AuditEntry struct {
	shared.BaseEntity
	ProjectID  uuid.UUID   `json:"project_id"`
	BaselineID uuid.UUID   `json:"baseline_id"`
	Action     AuditAction `json:"action"`
	Actor      string      `json:"actor"`
	Detail     string      `json:"detail,omitempty"`
}

// NewAuditEntry creates a new audit entry
func NewAuditEntry(projectID, baselineID uuid.UUID, action AuditAction, actor, detail string) (*AuditEntry, error) {
	if projectID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROJECT", "Project ID cannot be empty")
	}
	if baselineID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BASELINE", "Baseline ID cannot be empty")
	}
	if !action.IsValid() {
		return nil, shared.NewDomainError("INVALID_ACTION", "Invalid audit action")
	}
	if actor == "" {
		return nil, shared.NewDomainError("INVALID_ACTOR", "Audit actor cannot be empty")
	}

	return &AuditEntry{
		BaseEntity: shared.NewBaseEntity(),
		ProjectID:  projectID,
		BaselineID: baselineID,
		Action:     action,
		Actor:      actor,
		Detail:     detail,
	}, nil
}

// GetTimestamp returns when the audit entry was recorded
func (e *AuditEntry) GetTimestamp() time.Time {
	return e.CreatedAt
}
