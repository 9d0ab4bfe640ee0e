package baseline

import (
	"context"

	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository persists baselines. Save is for fresh drafts; SaveWithLock and
// SaveTransition carry the optimistic-concurrency contract: the UPDATE is
// conditioned on the version the aggregate held before its mutation bumped
// it, and zero affected rows surfaces shared.ErrStaleVersion.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Baseline, error)
	FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*Baseline, error)

	// FindByProject returns one page of a project's baselines, newest
	// first, together with the total count.
	FindByProject(ctx context.Context, projectID uuid.UUID, filter shared.Filter) ([]Baseline, int64, error)

	FindByStatus(ctx context.Context, status Status) ([]Baseline, error)
	Save(ctx context.Context, b *Baseline) error
	SaveWithLock(ctx context.Context, b *Baseline) error

	// Create inserts a fresh baseline and its creation audit entry in one
	// transaction.
	Create(ctx context.Context, b *Baseline, entry *AuditEntry) error

	// SaveTransition persists a mutated baseline and appends the audit
	// entry for the transition in one transaction: neither survives
	// without the other.
	SaveTransition(ctx context.Context, b *Baseline, entry *AuditEntry) error
}

// AuditLogRepository is the append-only store of lifecycle audit entries
type AuditLogRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	FindByProjectAndAction(ctx context.Context, projectID uuid.UUID, action AuditAction) ([]AuditEntry, error)
	FindByBaseline(ctx context.Context, baselineID uuid.UUID) ([]AuditEntry, error)
}
