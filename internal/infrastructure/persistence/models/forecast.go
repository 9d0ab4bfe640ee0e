package models

import (
	"github.com/finz/backend/internal/domain/forecast"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForecastCellModel is the persistence model for forecast cells. A null
// actual means no invoice has landed on the cell, which is distinct from
// an actual of zero.
type ForecastCellModel struct {
	BaseModel
	ProjectID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_cell_project_month"`
	LineItemID     uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_cell_line_item_month"`
	RubroID        string           `gorm:"type:varchar(100);index"`
	Description    string           `gorm:"type:text"`
	Month          int              `gorm:"not null;index:idx_cell_project_month;uniqueIndex:idx_cell_line_item_month"`
	Planned        decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	Forecast       decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	Actual         *decimal.Decimal `gorm:"type:numeric(18,2)"`
	Variance       decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	VarianceReason string           `gorm:"type:text"`
}

// TableName returns the table name for ForecastCellModel
func (ForecastCellModel) TableName() string {
	return "forecast_cells"
}

// ToDomain converts ForecastCellModel to the domain entity
func (m *ForecastCellModel) ToDomain() *forecast.ForecastCell {
	c := &forecast.ForecastCell{
		ProjectID:      m.ProjectID,
		LineItemID:     m.LineItemID,
		RubroID:        m.RubroID,
		Description:    m.Description,
		Month:          m.Month,
		Planned:        m.Planned,
		Forecast:       m.Forecast,
		Actual:         m.Actual,
		Variance:       m.Variance,
		VarianceReason: m.VarianceReason,
	}
	c.ID = m.ID
	c.CreatedAt = m.CreatedAt
	c.UpdatedAt = m.UpdatedAt
	return c
}

// ForecastCellModelFromDomain converts the domain entity to its model
func ForecastCellModelFromDomain(c *forecast.ForecastCell) *ForecastCellModel {
	m := &ForecastCellModel{
		ProjectID:      c.ProjectID,
		LineItemID:     c.LineItemID,
		RubroID:        c.RubroID,
		Description:    c.Description,
		Month:          c.Month,
		Planned:        c.Planned,
		Forecast:       c.Forecast,
		Actual:         c.Actual,
		Variance:       c.Variance,
		VarianceReason: c.VarianceReason,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}
