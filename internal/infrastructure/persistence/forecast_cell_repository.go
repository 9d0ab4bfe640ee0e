package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/finz/backend/internal/domain/forecast"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/finz/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormForecastCellRepository implements forecast.CellRepository using GORM
type GormForecastCellRepository struct {
	db *gorm.DB
}

// NewGormForecastCellRepository creates a new GormForecastCellRepository
func NewGormForecastCellRepository(db *gorm.DB) *GormForecastCellRepository {
	return &GormForecastCellRepository{db: db}
}

// FindByProject finds all cells of a project in matcher scan order
func (r *GormForecastCellRepository) FindByProject(ctx context.Context, projectID uuid.UUID) ([]forecast.ForecastCell, error) {
	var cellModels []models.ForecastCellModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("line_item_id ASC, month ASC").
		Find(&cellModels).Error; err != nil {
		return nil, err
	}
	return toForecastCells(cellModels), nil
}

// FindPageByProject returns one page of a project's cells in
// (line_item_id, month) order plus the total count.
func (r *GormForecastCellRepository) FindPageByProject(ctx context.Context, projectID uuid.UUID, filter shared.Filter) ([]forecast.ForecastCell, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.ForecastCellModel{}).
		Where("project_id = ?", projectID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("line_item_id ASC, month ASC")
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var cellModels []models.ForecastCellModel
	if err := query.Find(&cellModels).Error; err != nil {
		return nil, 0, err
	}
	return toForecastCells(cellModels), total, nil
}

// FindByProjectAndMonth finds a project's cells for one month in matcher
// scan order.
func (r *GormForecastCellRepository) FindByProjectAndMonth(ctx context.Context, projectID uuid.UUID, month int) ([]forecast.ForecastCell, error) {
	var cellModels []models.ForecastCellModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND month = ?", projectID, month).
		Order("line_item_id ASC, month ASC").
		Find(&cellModels).Error; err != nil {
		return nil, err
	}
	return toForecastCells(cellModels), nil
}

// FindByLineItemAndMonth finds the unique cell of a line item and month
func (r *GormForecastCellRepository) FindByLineItemAndMonth(ctx context.Context, lineItemID uuid.UUID, month int) (*forecast.ForecastCell, error) {
	var model models.ForecastCellModel
	if err := r.db.WithContext(ctx).
		Where("line_item_id = ? AND month = ?", lineItemID, month).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save persists a forecast cell
func (r *GormForecastCellRepository) Save(ctx context.Context, c *forecast.ForecastCell) error {
	model := models.ForecastCellModelFromDomain(c)
	model.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(model).Error
}

func toForecastCells(cellModels []models.ForecastCellModel) []forecast.ForecastCell {
	cells := make([]forecast.ForecastCell, len(cellModels))
	for i := range cellModels {
		cells[i] = *cellModels[i].ToDomain()
	}
	return cells
}
