package persistence

import (
	"context"

	"github.com/finz/backend/internal/domain/baseline"
	"github.com/finz/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditLogRepository implements baseline.AuditLogRepository using GORM.
// The underlying table is append-only: entries are never updated or
// deleted.
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Append inserts a new audit entry
func (r *GormAuditLogRepository) Append(ctx context.Context, entry *baseline.AuditEntry) error {
	return r.db.WithContext(ctx).Create(models.AuditEntryModelFromDomain(entry)).Error
}

// FindByProjectAndAction finds all entries of a project with the given action
func (r *GormAuditLogRepository) FindByProjectAndAction(ctx context.Context, projectID uuid.UUID, action baseline.AuditAction) ([]baseline.AuditEntry, error) {
	var entryModels []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND action = ?", projectID, action.String()).
		Order("created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toAuditEntries(entryModels), nil
}

// FindByBaseline finds all entries of a baseline in insertion order
func (r *GormAuditLogRepository) FindByBaseline(ctx context.Context, baselineID uuid.UUID) ([]baseline.AuditEntry, error) {
	var entryModels []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("baseline_id = ?", baselineID).
		Order("created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toAuditEntries(entryModels), nil
}

func toAuditEntries(entryModels []models.AuditEntryModel) []baseline.AuditEntry {
	entries := make([]baseline.AuditEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = *entryModels[i].ToDomain()
	}
	return entries
}
