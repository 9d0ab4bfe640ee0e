package baseline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotArchiver stores a durable copy of a baseline at acceptance time.
// Archiving is best effort: a failure is logged, never surfaced to the
// accepting caller.
type SnapshotArchiver interface {
	ArchiveBaseline(ctx context.Context, b *baseline.Baseline) error
}

// LifecycleService owns the baseline state machine on the serving path.
// Every transition runs the same gauntlet: idempotency admission, version
// precondition, aggregate transition, then a single transaction pairing
// the record write with its audit entry.
type LifecycleService struct {
	repo      baseline.Repository
	auditRepo baseline.AuditLogRepository
	guard     *shared.IdempotencyGuard
	archiver  SnapshotArchiver
	logger    *zap.Logger
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(
	repo baseline.Repository,
	auditRepo baseline.AuditLogRepository,
	guard *shared.IdempotencyGuard,
	archiver SnapshotArchiver,
	logger *zap.Logger,
) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		repo:      repo,
		auditRepo: auditRepo,
		guard:     guard,
		archiver:  archiver,
		logger:    logger,
	}
}

// LineItemRequest is one rubro line in a baseline creation request
type LineItemRequest struct {
	RubroID      string          `json:"rubro_id"`
	Description  string          `json:"description"`
	Category     string          `json:"category" binding:"omitempty,oneof=LABOR NON_LABOR"`
	PlannedTotal decimal.Decimal `json:"planned_total"`
}

// CreateBaselineRequest creates a fresh draft for a project. When the
// project already holds an accepted baseline it is superseded, never
// deleted.
type CreateBaselineRequest struct {
	LineItems []LineItemRequest `json:"line_items" binding:"required,min=1"`
}

// TransitionRequest carries what every mutating request must supply: the
// version the caller last observed. Comment is only read by reject.
type TransitionRequest struct {
	Version int    `json:"version" binding:"required,min=1"`
	Comment string `json:"comment"`
}

// BaselineResponse represents a baseline in API responses
type BaselineResponse struct {
	ID               uuid.UUID           `json:"id"`
	ProjectID        uuid.UUID           `json:"project_id"`
	Status           string              `json:"status"`
	Version          int                 `json:"version"`
	LineItems        []baseline.LineItem `json:"line_items"`
	PlannedTotal     decimal.Decimal     `json:"planned_total"`
	SignatureHash    string              `json:"signature_hash,omitempty"`
	HandedOffBy      string              `json:"handed_off_by,omitempty"`
	HandedOffAt      *time.Time          `json:"handed_off_at,omitempty"`
	AcceptedBy       string              `json:"accepted_by,omitempty"`
	AcceptedAt       *time.Time          `json:"accepted_at,omitempty"`
	RejectedBy       string              `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time          `json:"rejected_at,omitempty"`
	RejectionComment string              `json:"rejection_comment,omitempty"`
	SupersededBy     *uuid.UUID          `json:"superseded_by,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Replayed         bool                `json:"replayed,omitempty"`
}

func toBaselineResponse(b *baseline.Baseline) *BaselineResponse {
	return &BaselineResponse{
		ID:               b.ID,
		ProjectID:        b.ProjectID,
		Status:           b.Status.String(),
		Version:          b.Version,
		LineItems:        b.LineItems,
		PlannedTotal:     b.PlannedTotal(),
		SignatureHash:    b.SignatureHash,
		HandedOffBy:      b.HandedOffBy,
		HandedOffAt:      b.HandedOffAt,
		AcceptedBy:       b.AcceptedBy,
		AcceptedAt:       b.AcceptedAt,
		RejectedBy:       b.RejectedBy,
		RejectedAt:       b.RejectedAt,
		RejectionComment: b.RejectionComment,
		SupersededBy:     b.SupersededBy,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// CreateBaseline creates a draft baseline. An existing accepted baseline
// for the project is marked superseded by the new draft; an existing
// draft/handed-off/rejected baseline blocks creation (one active plan per
// project).
func (s *LifecycleService) CreateBaseline(ctx context.Context, projectID uuid.UUID, req CreateBaselineRequest, actor string) (*BaselineResponse, error) {
	items := make([]baseline.LineItem, len(req.LineItems))
	for i, li := range req.LineItems {
		category := li.Category
		if category == "" {
			category = "NON_LABOR"
		}
		items[i] = baseline.LineItem{
			LineItemID:   uuid.New(),
			RubroID:      li.RubroID,
			Description:  li.Description,
			Category:     category,
			PlannedTotal: li.PlannedTotal,
		}
	}

	b, err := baseline.NewBaseline(projectID, items)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindActiveByProject(ctx, projectID)
	if err != nil && err != shared.ErrNotFound {
		return nil, err
	}
	if current != nil {
		if !current.IsAccepted() {
			return nil, shared.NewDomainError("ACTIVE_BASELINE_EXISTS",
				"The project already has a baseline in progress; hand it off or reject it first")
		}
		if err := current.MarkSuperseded(b.ID); err != nil {
			return nil, err
		}
		if err := s.repo.SaveWithLock(ctx, current); err != nil {
			return nil, err
		}
	}

	entry, err := baseline.NewAuditEntry(projectID, b.ID, baseline.AuditActionCreated, actor, "")
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b, entry); err != nil {
		return nil, err
	}

	s.logger.Info("baseline created",
		zap.String("baseline_id", b.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("actor", actor),
	)
	return toBaselineResponse(b), nil
}

// GetBaseline returns one baseline of a project
func (s *LifecycleService) GetBaseline(ctx context.Context, projectID, id uuid.UUID) (*BaselineResponse, error) {
	b, err := s.findOwned(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	return toBaselineResponse(b), nil
}

// ListBaselines returns one page of a project's baselines, newest first
func (s *LifecycleService) ListBaselines(ctx context.Context, projectID uuid.UUID, filter shared.Filter) (*shared.Paginated[BaselineResponse], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	list, total, err := s.repo.FindByProject(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]BaselineResponse, len(list))
	for i := range list {
		out[i] = *toBaselineResponse(&list[i])
	}
	page := shared.NewPaginated(out, total, filter.Page, filter.PageSize)
	return &page, nil
}

// AuditEntryResponse represents one lifecycle audit entry in API responses
type AuditEntryResponse struct {
	ID         uuid.UUID `json:"id"`
	BaselineID uuid.UUID `json:"baseline_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GetAuditTrail returns the lifecycle audit entries of one baseline
func (s *LifecycleService) GetAuditTrail(ctx context.Context, projectID, id uuid.UUID) ([]AuditEntryResponse, error) {
	if _, err := s.findOwned(ctx, projectID, id); err != nil {
		return nil, err
	}
	entries, err := s.auditRepo.FindByBaseline(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntryResponse, len(entries))
	for i := range entries {
		out[i] = AuditEntryResponse{
			ID:         entries[i].ID,
			BaselineID: entries[i].BaselineID,
			Action:     entries[i].Action.String(),
			Actor:      entries[i].Actor,
			Detail:     entries[i].Detail,
			CreatedAt:  entries[i].CreatedAt,
		}
	}
	return out, nil
}

// HandOff submits a draft (or rejected) baseline for review. The
// idempotency key is mandatory here: concurrent retries of the same
// hand-off converge on the first stored response, and key reuse with a
// different payload is a conflict.
func (s *LifecycleService) HandOff(ctx context.Context, projectID, id uuid.UUID, req TransitionRequest, actor, idempotencyKey string) (*BaselineResponse, error) {
	if idempotencyKey == "" {
		return nil, shared.ErrMissingIdempotency
	}
	return s.transition(ctx, projectID, id, req, actor, idempotencyKey,
		baseline.AuditActionHandedOff, func(b *baseline.Baseline) error {
			return b.HandOff(actor)
		})
}

// Accept moves a handed-off baseline to accepted. The status change and
// the BASELINE_ACCEPTED audit entry commit in one transaction; an
// accepted baseline without audit proof can only come from a writer
// bypassing this path, which the consistency auditor repairs.
func (s *LifecycleService) Accept(ctx context.Context, projectID, id uuid.UUID, req TransitionRequest, actor, idempotencyKey string) (*BaselineResponse, error) {
	resp, err := s.transition(ctx, projectID, id, req, actor, idempotencyKey,
		baseline.AuditActionAccepted, func(b *baseline.Baseline) error {
			return b.Accept(actor)
		})
	if err != nil {
		return nil, err
	}

	if s.archiver != nil && !resp.Replayed {
		if b, ferr := s.repo.FindByID(ctx, id); ferr == nil {
			if aerr := s.archiver.ArchiveBaseline(ctx, b); aerr != nil {
				s.logger.Warn("baseline snapshot archive failed",
					zap.String("baseline_id", id.String()),
					zap.Error(aerr),
				)
			}
		}
	}
	return resp, nil
}

// Reject sends a handed-off baseline back with a comment
func (s *LifecycleService) Reject(ctx context.Context, projectID, id uuid.UUID, req TransitionRequest, actor, idempotencyKey string) (*BaselineResponse, error) {
	if req.Comment == "" {
		return nil, shared.NewDomainError("INVALID_COMMENT", "A rejection comment is required")
	}
	return s.transition(ctx, projectID, id, req, actor, idempotencyKey,
		baseline.AuditActionRejected, func(b *baseline.Baseline) error {
			return b.Reject(actor, req.Comment)
		})
}

// transition runs the shared protocol around a single aggregate mutation.
// On any failure the persisted record is unchanged; the idempotency record
// is only committed after the write succeeded.
func (s *LifecycleService) transition(
	ctx context.Context,
	projectID, id uuid.UUID,
	req TransitionRequest,
	actor, idempotencyKey string,
	action baseline.AuditAction,
	mutate func(*baseline.Baseline) error,
) (*BaselineResponse, error) {
	fingerprint := shared.PayloadFingerprint(struct {
		BaselineID uuid.UUID `json:"baseline_id"`
		Action     string    `json:"action"`
		Version    int       `json:"version"`
		Comment    string    `json:"comment,omitempty"`
	}{id, action.String(), req.Version, req.Comment})

	decision, stored, err := s.guard.Admit(ctx, idempotencyKey, fingerprint)
	if err != nil {
		// A broken dedup store must not block writes; the version guard
		// still protects against double application.
		s.logger.Warn("idempotency store read failed, admitting request",
			zap.String("key", idempotencyKey), zap.Error(err))
		decision = shared.DecisionRun
	}
	switch decision {
	case shared.DecisionReplay:
		var resp BaselineResponse
		if uerr := json.Unmarshal(stored, &resp); uerr != nil {
			return nil, shared.NewDomainError("IDEMPOTENCY_REPLAY_CORRUPT", "Stored idempotent response could not be decoded")
		}
		resp.Replayed = true
		return &resp, nil
	case shared.DecisionConflict:
		return nil, shared.ErrIdempotencyConflict
	}

	b, err := s.findOwned(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if b.Version != req.Version {
		return nil, shared.ErrStaleVersion
	}

	if err := mutate(b); err != nil {
		return nil, err
	}

	entry, err := baseline.NewAuditEntry(projectID, id, action, actor, req.Comment)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveTransition(ctx, b, entry); err != nil {
		return nil, err
	}

	resp := toBaselineResponse(b)
	payload, merr := json.Marshal(resp)
	if merr == nil {
		if cerr := s.guard.Commit(ctx, idempotencyKey, fingerprint, payload); cerr != nil {
			s.logger.Warn("idempotency record commit failed",
				zap.String("key", idempotencyKey), zap.Error(cerr))
		}
	}

	s.logger.Info("baseline transition applied",
		zap.String("baseline_id", id.String()),
		zap.String("action", action.String()),
		zap.String("actor", actor),
		zap.Int("version", b.Version),
	)
	return resp, nil
}

func (s *LifecycleService) findOwned(ctx context.Context, projectID, id uuid.UUID) (*baseline.Baseline, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil || b.ProjectID != projectID {
		return nil, shared.ErrNotFound
	}
	return b, nil
}
