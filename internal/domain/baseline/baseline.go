package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a cost baseline
type Status string

const (
	StatusDraft     Status = "DRAFT"      // Being edited by the estimator
	StatusHandedOff Status = "HANDED_OFF" // Submitted for acceptance review
	StatusAccepted  Status = "ACCEPTED"   // Accepted by an authorized actor
	StatusRejected  Status = "REJECTED"   // Rejected; may be resubmitted
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusHandedOff, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the baseline is in a terminal state.
// ACCEPTED is terminal unless the baseline is explicitly superseded by
// a fresh draft for the same project.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted
}

// CanHandOff returns true if a hand-off is legal from this status
func (s Status) CanHandOff() bool {
	return s == StatusDraft || s == StatusRejected
}

// CanReview returns true if accept/reject decisions are legal from this status
func (s Status) CanReview() bool {
	return s == StatusHandedOff
}

// LineItem is one rubro (categorized cost line) captured in the baseline.
// The set of line items is frozen into the signature hash at hand-off time.
type LineItem struct {
	LineItemID   uuid.UUID       `json:"line_item_id"`
	RubroID      string          `json:"rubro_id"`
	Description  string          `json:"description"`
	Category     string          `json:"category"` // LABOR or NON_LABOR
	PlannedTotal decimal.Decimal `json:"planned_total"`
}

// Baseline is the aggregate root for one candidate/accepted cost plan of a
// project. A project has at most one active baseline; older baselines are
// retained for audit and linked through SupersededBy.
type Baseline struct {
	shared.BaseAggregateRoot
	ProjectID        uuid.UUID  `json:"project_id"`
	Status           Status     `json:"status"`
	LineItems        []LineItem `json:"line_items"`
	SignatureHash    string     `json:"signature_hash"`
	HandedOffBy      string     `json:"handed_off_by,omitempty"`
	HandedOffAt      *time.Time `json:"handed_off_at,omitempty"`
	AcceptedBy       string     `json:"accepted_by,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	RejectedBy       string     `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	RejectionComment string     `json:"rejection_comment,omitempty"`
	SupersededBy     *uuid.UUID `json:"superseded_by,omitempty"`
}

// NewBaseline creates a new draft baseline for a project
func NewBaseline(projectID uuid.UUID, lineItems []LineItem) (*Baseline, error) {
	if projectID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROJECT", "Project ID cannot be empty")
	}
	if len(lineItems) == 0 {
		return nil, shared.NewDomainError("INVALID_LINE_ITEMS", "A baseline requires at least one line item")
	}
	items := make([]LineItem, len(lineItems))
	copy(items, lineItems)
	for i := range items {
		if items[i].LineItemID == uuid.Nil {
			items[i].LineItemID = uuid.New()
		}
		if items[i].RubroID == "" && items[i].Description == "" {
			return nil, shared.NewDomainError("INVALID_LINE_ITEMS", "A line item needs a rubro ID or a description")
		}
	}

	return &Baseline{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProjectID:         projectID,
		Status:            StatusDraft,
		LineItems:         items,
	}, nil
}

// HandOff submits the baseline for acceptance review. Legal from DRAFT and,
// for resubmission, from REJECTED. The signature hash freezes the line-item
// set as it stood at hand-off time.
func (b *Baseline) HandOff(actor string) error {
	if !b.Status.CanHandOff() {
		return illegalTransition(b.Status, StatusHandedOff)
	}
	if actor == "" {
		return shared.NewDomainError("INVALID_ACTOR", "Hand-off actor is required")
	}

	now := time.Now()
	b.Status = StatusHandedOff
	b.HandedOffBy = actor
	b.HandedOffAt = &now
	b.SignatureHash = ComputeSignature(b.LineItems)
	b.UpdatedAt = now
	b.IncrementVersion()
	return nil
}

// Accept marks the baseline accepted. Legal only from HANDED_OFF. Prior
// rejection fields are cleared; the caller must persist the matching
// BASELINE_ACCEPTED audit entry in the same transaction.
func (b *Baseline) Accept(actor string) error {
	if !b.Status.CanReview() {
		return illegalTransition(b.Status, StatusAccepted)
	}
	if actor == "" {
		return shared.NewDomainError("INVALID_ACTOR", "Accepting actor is required")
	}

	now := time.Now()
	b.Status = StatusAccepted
	b.AcceptedBy = actor
	b.AcceptedAt = &now
	b.RejectedBy = ""
	b.RejectedAt = nil
	b.RejectionComment = ""
	b.UpdatedAt = now
	b.IncrementVersion()
	return nil
}

// Reject sends the baseline back to the estimator with a comment.
// Legal only from HANDED_OFF.
func (b *Baseline) Reject(actor, comment string) error {
	if !b.Status.CanReview() {
		return illegalTransition(b.Status, StatusRejected)
	}
	if actor == "" {
		return shared.NewDomainError("INVALID_ACTOR", "Rejecting actor is required")
	}
	if comment == "" {
		return shared.NewDomainError("INVALID_COMMENT", "A rejection comment is required")
	}

	now := time.Now()
	b.Status = StatusRejected
	b.RejectedBy = actor
	b.RejectedAt = &now
	b.RejectionComment = comment
	b.UpdatedAt = now
	b.IncrementVersion()
	return nil
}

// RevertAcceptance undoes an acceptance that has no audit proof. Used only
// by the consistency auditor: status returns to HANDED_OFF, the acceptance
// stamps are cleared and the hand-off stamps are left untouched.
func (b *Baseline) RevertAcceptance() error {
	if b.Status != StatusAccepted {
		return illegalTransition(b.Status, StatusHandedOff)
	}

	b.Status = StatusHandedOff
	b.AcceptedBy = ""
	b.AcceptedAt = nil
	b.UpdatedAt = time.Now()
	b.IncrementVersion()
	return nil
}

// MarkSuperseded links an accepted baseline to the fresh draft replacing it.
// The record itself is never deleted.
func (b *Baseline) MarkSuperseded(successorID uuid.UUID) error {
	if b.Status != StatusAccepted {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot supersede a baseline in %s status", b.Status))
	}
	if successorID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Successor baseline ID cannot be empty")
	}

	b.SupersededBy = &successorID
	b.UpdatedAt = time.Now()
	b.IncrementVersion()
	return nil
}

// IsAccepted returns true if the baseline is accepted
func (b *Baseline) IsAccepted() bool {
	return b.Status == StatusAccepted
}

// IsSuperseded returns true if a newer baseline replaced this one
func (b *Baseline) IsSuperseded() bool {
	return b.SupersededBy != nil
}

// PlannedTotal sums the planned totals of all line items
func (b *Baseline) PlannedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.LineItems {
		total = total.Add(item.PlannedTotal)
	}
	return total
}

// ComputeSignature returns the content fingerprint of a line-item set.
// Items are sorted by (rubro_id, line_item_id) so the hash is independent
// of insertion order.
func ComputeSignature(items []LineItem) string {
	sorted := make([]LineItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].RubroID != sorted[j].RubroID {
			return sorted[i].RubroID < sorted[j].RubroID
		}
		return sorted[i].LineItemID.String() < sorted[j].LineItemID.String()
	})

	var sb strings.Builder
	for _, item := range sorted {
		sb.WriteString(item.RubroID)
		sb.WriteByte('|')
		sb.WriteString(strings.ToLower(strings.TrimSpace(item.Description)))
		sb.WriteByte('|')
		sb.WriteString(item.Category)
		sb.WriteByte('|')
		sb.WriteString(item.PlannedTotal.String())
		sb.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func illegalTransition(from, to Status) error {
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("Illegal baseline transition from %s to %s", from, to))
}
