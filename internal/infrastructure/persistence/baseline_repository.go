package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/finz/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBaselineRepository implements baseline.Repository using GORM
type GormBaselineRepository struct {
	db *gorm.DB
}

// NewGormBaselineRepository creates a new GormBaselineRepository
func NewGormBaselineRepository(db *gorm.DB) *GormBaselineRepository {
	return &GormBaselineRepository{db: db}
}

// FindByID finds a baseline by its ID
func (r *GormBaselineRepository) FindByID(ctx context.Context, id uuid.UUID) (*baseline.Baseline, error) {
	var model models.BaselineModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindActiveByProject finds the project's current baseline: the newest one
// that has not been superseded.
func (r *GormBaselineRepository) FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*baseline.Baseline, error) {
	var model models.BaselineModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND superseded_by IS NULL", projectID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByProject returns one page of a project's baselines, newest first,
// plus the total count.
func (r *GormBaselineRepository) FindByProject(ctx context.Context, projectID uuid.UUID, filter shared.Filter) ([]baseline.Baseline, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.BaselineModel{}).
		Where("project_id = ?", projectID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC")
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var baselineModels []models.BaselineModel
	if err := query.Find(&baselineModels).Error; err != nil {
		return nil, 0, err
	}
	baselines, err := toBaselines(baselineModels)
	if err != nil {
		return nil, 0, err
	}
	return baselines, total, nil
}

// FindByStatus finds all baselines in the given status
func (r *GormBaselineRepository) FindByStatus(ctx context.Context, status baseline.Status) ([]baseline.Baseline, error) {
	var baselineModels []models.BaselineModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status.String()).
		Order("created_at ASC").
		Find(&baselineModels).Error; err != nil {
		return nil, err
	}
	return toBaselines(baselineModels)
}

// Save persists a baseline without a version precondition
func (r *GormBaselineRepository) Save(ctx context.Context, b *baseline.Baseline) error {
	model, err := models.BaselineModelFromDomain(b)
	if err != nil {
		return err
	}
	model.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock persists a mutated baseline conditioned on the version the
// aggregate held before its mutation bumped it. Zero affected rows means a
// concurrent writer got there first.
func (r *GormBaselineRepository) SaveWithLock(ctx context.Context, b *baseline.Baseline) error {
	return r.saveWithLock(r.db.WithContext(ctx), b)
}

// Create inserts a fresh baseline together with its creation audit entry
// in one transaction.
func (r *GormBaselineRepository) Create(ctx context.Context, b *baseline.Baseline, entry *baseline.AuditEntry) error {
	model, err := models.BaselineModelFromDomain(b)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(models.AuditEntryModelFromDomain(entry)).Error
	})
}

// SaveTransition persists a mutated baseline and appends the transition's
// audit entry in one transaction: neither write survives without the
// other.
func (r *GormBaselineRepository) SaveTransition(ctx context.Context, b *baseline.Baseline, entry *baseline.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.saveWithLock(tx, b); err != nil {
			return err
		}
		return tx.Create(models.AuditEntryModelFromDomain(entry)).Error
	})
}

func (r *GormBaselineRepository) saveWithLock(tx *gorm.DB, b *baseline.Baseline) error {
	model, err := models.BaselineModelFromDomain(b)
	if err != nil {
		return err
	}
	model.UpdatedAt = time.Now()

	result := tx.Model(&models.BaselineModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]any{
			"status":            model.Status,
			"line_items":        model.LineItems,
			"signature_hash":    model.SignatureHash,
			"handed_off_by":     model.HandedOffBy,
			"handed_off_at":     model.HandedOffAt,
			"accepted_by":       model.AcceptedBy,
			"accepted_at":       model.AcceptedAt,
			"rejected_by":       model.RejectedBy,
			"rejected_at":       model.RejectedAt,
			"rejection_comment": model.RejectionComment,
			"superseded_by":     model.SupersededBy,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrStaleVersion
	}
	return nil
}

func toBaselines(baselineModels []models.BaselineModel) ([]baseline.Baseline, error) {
	baselines := make([]baseline.Baseline, len(baselineModels))
	for i := range baselineModels {
		b, err := baselineModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		baselines[i] = *b
	}
	return baselines, nil
}
