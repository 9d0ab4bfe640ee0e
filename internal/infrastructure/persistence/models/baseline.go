package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/google/uuid"
)

// BaselineModel is the persistence model for baselines. Line items travel
// with the baseline as a jsonb document: they are immutable once the
// baseline is handed off and are always read as a whole.
type BaselineModel struct {
	AggregateModel
	ProjectID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status           string     `gorm:"type:varchar(20);not null;index"`
	LineItems        []byte     `gorm:"type:jsonb;not null"`
	SignatureHash    string     `gorm:"type:varchar(64)"`
	HandedOffBy      string     `gorm:"type:varchar(255)"`
	HandedOffAt      *time.Time `gorm:""`
	AcceptedBy       string     `gorm:"type:varchar(255)"`
	AcceptedAt       *time.Time `gorm:""`
	RejectedBy       string     `gorm:"type:varchar(255)"`
	RejectedAt       *time.Time `gorm:""`
	RejectionComment string     `gorm:"type:text"`
	SupersededBy     *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for BaselineModel
func (BaselineModel) TableName() string {
	return "baselines"
}

// ToDomain converts BaselineModel to the domain aggregate
func (m *BaselineModel) ToDomain() (*baseline.Baseline, error) {
	var items []baseline.LineItem
	if len(m.LineItems) > 0 {
		if err := json.Unmarshal(m.LineItems, &items); err != nil {
			return nil, fmt.Errorf("failed to decode baseline line items: %w", err)
		}
	}

	b := &baseline.Baseline{
		ProjectID:        m.ProjectID,
		Status:           baseline.Status(m.Status),
		LineItems:        items,
		SignatureHash:    m.SignatureHash,
		HandedOffBy:      m.HandedOffBy,
		HandedOffAt:      m.HandedOffAt,
		AcceptedBy:       m.AcceptedBy,
		AcceptedAt:       m.AcceptedAt,
		RejectedBy:       m.RejectedBy,
		RejectedAt:       m.RejectedAt,
		RejectionComment: m.RejectionComment,
		SupersededBy:     m.SupersededBy,
	}
	b.ID = m.ID
	b.CreatedAt = m.CreatedAt
	b.UpdatedAt = m.UpdatedAt
	b.Version = m.Version
	return b, nil
}

// BaselineModelFromDomain converts the domain aggregate to its model
func BaselineModelFromDomain(b *baseline.Baseline) (*BaselineModel, error) {
	items, err := json.Marshal(b.LineItems)
	if err != nil {
		return nil, fmt.Errorf("failed to encode baseline line items: %w", err)
	}

	m := &BaselineModel{
		ProjectID:        b.ProjectID,
		Status:           b.Status.String(),
		LineItems:        items,
		SignatureHash:    b.SignatureHash,
		HandedOffBy:      b.HandedOffBy,
		HandedOffAt:      b.HandedOffAt,
		AcceptedBy:       b.AcceptedBy,
		AcceptedAt:       b.AcceptedAt,
		RejectedBy:       b.RejectedBy,
		RejectedAt:       b.RejectedAt,
		RejectionComment: b.RejectionComment,
		SupersededBy:     b.SupersededBy,
	}
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	return m, nil
}

// AuditEntryModel is the persistence model for lifecycle audit entries.
// The table is append-only.
type AuditEntryModel struct {
	BaseModel
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_project_action"`
	BaselineID uuid.UUID `gorm:"type:uuid;not null;index"`
	Action     string    `gorm:"type:varchar(30);not null;index:idx_audit_project_action"`
	Actor      string    `gorm:"type:varchar(255);not null"`
	Detail     string    `gorm:"type:text"`
}

// TableName returns the table name for AuditEntryModel
func (AuditEntryModel) TableName() string {
	return "baseline_audit_entries"
}

// ToDomain converts AuditEntryModel to the domain entity
func (m *AuditEntryModel) ToDomain() *baseline.AuditEntry {
	e := &baseline.AuditEntry{
		ProjectID:  m.ProjectID,
		BaselineID: m.BaselineID,
		Action:     baseline.AuditAction(m.Action),
		Actor:      m.Actor,
		Detail:     m.Detail,
	}
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e
}

// AuditEntryModelFromDomain converts the domain entity to its model
func AuditEntryModelFromDomain(e *baseline.AuditEntry) *AuditEntryModel {
	m := &AuditEntryModel{
		ProjectID:  e.ProjectID,
		BaselineID: e.BaselineID,
		Action:     e.Action.String(),
		Actor:      e.Actor,
		Detail:     e.Detail,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}
