package forecast

import (
	"context"

	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForecastCell is the (line item, month) unit of planned/forecast/actual
// tracking. Variance is derived: actual minus planned once an actual
// exists, forecast minus planned before that. A cell whose Actual is nil
// has seen no matched invoice; that is not the same as a matched invoice
// for zero.
type ForecastCell struct {
	shared.BaseEntity
	ProjectID      uuid.UUID        `json:"project_id"`
	LineItemID     uuid.UUID        `json:"line_item_id"`
	RubroID        string           `json:"rubro_id"`
	Description    string           `json:"description"`
	Month          int              `json:"month"` // canonical index 1..60
	Planned        decimal.Decimal  `json:"planned"`
	Forecast       decimal.Decimal  `json:"forecast"`
	Actual         *decimal.Decimal `json:"actual,omitempty"`
	Variance       decimal.Decimal  `json:"variance"`
	VarianceReason string           `json:"variance_reason,omitempty"`
}

// NewForecastCell creates a cell for a line item and canonical month
func NewForecastCell(projectID, lineItemID uuid.UUID, rubroID, description string, month int, planned, forecast decimal.Decimal) (*ForecastCell, error) {
	if projectID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROJECT", "Project ID cannot be empty")
	}
	if lineItemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LINE_ITEM", "Line item ID cannot be empty")
	}
	if month < 1 || month > MonthMax {
		return nil, shared.NewDomainError("INVALID_MONTH", "Month index must be within 1..60")
	}

	cell := &ForecastCell{
		BaseEntity:  shared.NewBaseEntity(),
		ProjectID:   projectID,
		LineItemID:  lineItemID,
		RubroID:     rubroID,
		Description: description,
		Month:       month,
		Planned:     planned,
		Forecast:    forecast,
	}
	cell.RecomputeVariance()
	return cell, nil
}

// ApplyActual records a matched invoice amount against the cell.
// Amounts accumulate: a second invoice for the same cell adds to the
// existing actual. A zero amount still materializes Actual.
func (c *ForecastCell) ApplyActual(amount decimal.Decimal) {
	if c.Actual == nil {
		c.Actual = &amount
	} else {
		sum := c.Actual.Add(amount)
		c.Actual = &sum
	}
	c.RecomputeVariance()
}

// ReviseForecast updates the forecast value and the variance derived from it
func (c *ForecastCell) ReviseForecast(forecast decimal.Decimal, reason string) {
	c.Forecast = forecast
	if reason != "" {
		c.VarianceReason = reason
	}
	c.RecomputeVariance()
}

// RecomputeVariance refreshes the derived variance field
func (c *ForecastCell) RecomputeVariance() {
	if c.Actual != nil {
		c.Variance = c.Actual.Sub(c.Planned)
	} else {
		c.Variance = c.Forecast.Sub(c.Planned)
	}
}

// HasActual returns true once at least one invoice has matched this cell
func (c *ForecastCell) HasActual() bool {
	return c.Actual != nil
}

// CellRepository persists forecast cells
type CellRepository interface {
	FindByProject(ctx context.Context, projectID uuid.UUID) ([]ForecastCell, error)

	// FindPageByProject returns one page of a project's cells in
	// (line_item_id, month) order together with the total count.
	FindPageByProject(ctx context.Context, projectID uuid.UUID, filter shared.Filter) ([]ForecastCell, int64, error)

	FindByProjectAndMonth(ctx context.Context, projectID uuid.UUID, month int) ([]ForecastCell, error)
	FindByLineItemAndMonth(ctx context.Context, lineItemID uuid.UUID, month int) (*ForecastCell, error)
	Save(ctx context.Context, cell *ForecastCell) error
}
