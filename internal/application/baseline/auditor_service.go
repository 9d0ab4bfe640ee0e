package baseline

import (
	"context"
	"time"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditorActor is the actor recorded on audit entries written by the repair job
const AuditorActor = "consistency-auditor"

// FindingReason classifies why an accepted baseline was flagged
type FindingReason string

const (
	// ReasonMissingEntry means the audit log holds no BASELINE_ACCEPTED
	// entry for the project.
	ReasonMissingEntry FindingReason = "MISSING_AUDIT_ENTRY"
	// ReasonAuditReadError means the audit log could not be read; absence
	// of proof is treated as absence of acceptance (fail safe), but the
	// finding is marked so a transient outage is distinguishable.
	ReasonAuditReadError FindingReason = "AUDIT_READ_ERROR"
)

// Finding is one accepted baseline without audit proof, a candidate for
// having been accepted in error. Findings are always reported, never
// silently discarded.
type Finding struct {
	BaselineID uuid.UUID     `json:"baseline_id"`
	ProjectID  uuid.UUID     `json:"project_id"`
	AcceptedBy string        `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time    `json:"accepted_at,omitempty"`
	Reason     FindingReason `json:"reason"`
	ReadError  string        `json:"read_error,omitempty"`
	Reverted   bool          `json:"reverted"`
}

// AuditorReport summarizes one auditor run
type AuditorReport struct {
	Scanned  int       `json:"scanned"`
	Findings []Finding `json:"findings"`
	Executed bool      `json:"executed"`
}

// AuditorOptions controls a run. Execute reverts findings instead of only
// reporting them; Force extends the revert to findings that stem from a
// failed audit read rather than a confirmed missing entry.
type AuditorOptions struct {
	Execute bool
	Force   bool
}

// ConsistencyAuditor is the offline repair job for the accepted-iff-audited
// invariant. It assumes no concurrent writers to the baselines it touches
// and belongs in a maintenance window, never on the request path.
type ConsistencyAuditor struct {
	repo      baseline.Repository
	auditRepo baseline.AuditLogRepository
	logger    *zap.Logger
}

// NewConsistencyAuditor creates a new ConsistencyAuditor
func NewConsistencyAuditor(repo baseline.Repository, auditRepo baseline.AuditLogRepository, logger *zap.Logger) *ConsistencyAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyAuditor{repo: repo, auditRepo: auditRepo, logger: logger}
}

// Run scans every accepted baseline and verifies its audit proof. In
// dry-run mode findings are reported and nothing is mutated. In execute
// mode flagged baselines revert to HANDED_OFF with acceptance stamps
// cleared and hand-off stamps untouched, and a BASELINE_REVERTED entry is
// appended with the status change.
func (a *ConsistencyAuditor) Run(ctx context.Context, opts AuditorOptions) (*AuditorReport, error) {
	accepted, err := a.repo.FindByStatus(ctx, baseline.StatusAccepted)
	if err != nil {
		return nil, err
	}

	report := &AuditorReport{
		Scanned:  len(accepted),
		Findings: make([]Finding, 0),
		Executed: opts.Execute,
	}

	for i := range accepted {
		b := &accepted[i]

		entries, qerr := a.auditRepo.FindByProjectAndAction(ctx, b.ProjectID, baseline.AuditActionAccepted)
		if qerr == nil && len(entries) > 0 {
			continue
		}

		finding := Finding{
			BaselineID: b.ID,
			ProjectID:  b.ProjectID,
			AcceptedBy: b.AcceptedBy,
			AcceptedAt: b.AcceptedAt,
			Reason:     ReasonMissingEntry,
		}
		if qerr != nil {
			finding.Reason = ReasonAuditReadError
			finding.ReadError = qerr.Error()
		}

		a.logger.Warn("accepted baseline without audit proof",
			zap.String("baseline_id", b.ID.String()),
			zap.String("project_id", b.ProjectID.String()),
			zap.String("reason", string(finding.Reason)),
		)

		if opts.Execute && (finding.Reason == ReasonMissingEntry || opts.Force) {
			if rerr := a.revert(ctx, b); rerr != nil {
				a.logger.Error("failed to revert baseline",
					zap.String("baseline_id", b.ID.String()),
					zap.Error(rerr),
				)
			} else {
				finding.Reverted = true
			}
		}

		report.Findings = append(report.Findings, finding)
	}

	a.logger.Info("consistency audit finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("findings", len(report.Findings)),
		zap.Bool("executed", report.Executed),
	)
	return report, nil
}

func (a *ConsistencyAuditor) revert(ctx context.Context, b *baseline.Baseline) error {
	if err := b.RevertAcceptance(); err != nil {
		return err
	}
	entry, err := baseline.NewAuditEntry(b.ProjectID, b.ID, baseline.AuditActionReverted, AuditorActor,
		"accepted without BASELINE_ACCEPTED audit entry")
	if err != nil {
		return err
	}
	return a.repo.SaveTransition(ctx, b, entry)
}
