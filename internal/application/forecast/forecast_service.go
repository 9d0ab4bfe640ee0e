package forecast

import (
	"context"
	"time"

	"github.com/finz/backend/internal/domain/forecast"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service reconciles incoming invoices against the forecast cell set and
// serves the metrics/simulation views.
type Service struct {
	cells  forecast.CellRepository
	logger *zap.Logger
}

// NewService creates a new forecast Service
func NewService(cells forecast.CellRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cells: cells, logger: logger}
}

// UpsertCellRequest creates or revises one forecast cell
type UpsertCellRequest struct {
	LineItemID     uuid.UUID       `json:"line_item_id" binding:"required"`
	RubroID        string          `json:"rubro_id"`
	Description    string          `json:"description"`
	Month          any             `json:"month" binding:"required"`
	Planned        decimal.Decimal `json:"planned"`
	Forecast       decimal.Decimal `json:"forecast"`
	VarianceReason string          `json:"variance_reason"`
}

// IngestInvoiceRequest is an invoice in any supported month encoding
type IngestInvoiceRequest struct {
	LineItemID  string          `json:"line_item_id"`
	RubroID     string          `json:"rubro_id"`
	Description string          `json:"description"`
	Month       any             `json:"month" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// CellResponse represents a forecast cell in API responses
type CellResponse struct {
	ID             uuid.UUID        `json:"id"`
	ProjectID      uuid.UUID        `json:"project_id"`
	LineItemID     uuid.UUID        `json:"line_item_id"`
	RubroID        string           `json:"rubro_id,omitempty"`
	Description    string           `json:"description,omitempty"`
	Month          int              `json:"month"`
	Planned        decimal.Decimal  `json:"planned"`
	Forecast       decimal.Decimal  `json:"forecast"`
	Actual         *decimal.Decimal `json:"actual,omitempty"`
	Variance       decimal.Decimal  `json:"variance"`
	VarianceReason string           `json:"variance_reason,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IngestResult reports what an invoice did. An unmatched invoice
// contributes no actual anywhere; that is not a zero-actual match.
type IngestResult struct {
	Matched         bool            `json:"matched"`
	NormalizedMonth int             `json:"normalized_month"`
	Amount          decimal.Decimal `json:"amount"`
	Cell            *CellResponse   `json:"cell,omitempty"`
}

func toCellResponse(c *forecast.ForecastCell) *CellResponse {
	return &CellResponse{
		ID:             c.ID,
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
		UpdatedAt:      c.UpdatedAt,
	}
}

// UpsertCell creates a cell or revises the forecast of an existing one
func (s *Service) UpsertCell(ctx context.Context, projectID uuid.UUID, req UpsertCellRequest) (*CellResponse, error) {
	month := forecast.NormalizeMonth(req.Month)
	if month == 0 {
		return nil, shared.NewDomainError("INVALID_MONTH", "Month could not be normalized to the 1..60 axis")
	}

	cell, err := s.cells.FindByLineItemAndMonth(ctx, req.LineItemID, month)
	if err != nil && err != shared.ErrNotFound {
		return nil, err
	}
	if cell != nil {
		if cell.ProjectID != projectID {
			return nil, shared.ErrNotFound
		}
		cell.RubroID = req.RubroID
		cell.Description = req.Description
		cell.Planned = req.Planned
		cell.ReviseForecast(req.Forecast, req.VarianceReason)
	} else {
		cell, err = forecast.NewForecastCell(projectID, req.LineItemID, req.RubroID, req.Description, month, req.Planned, req.Forecast)
		if err != nil {
			return nil, err
		}
		if req.VarianceReason != "" {
			cell.VarianceReason = req.VarianceReason
		}
	}

	if err := s.cells.Save(ctx, cell); err != nil {
		return nil, err
	}
	return toCellResponse(cell), nil
}

// ListCells returns one page of a project's forecast cells in
// (line_item_id, month) order
func (s *Service) ListCells(ctx context.Context, projectID uuid.UUID, filter shared.Filter) (*shared.Paginated[CellResponse], error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	cells, total, err := s.cells.FindPageByProject(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]CellResponse, len(cells))
	for i := range cells {
		out[i] = *toCellResponse(&cells[i])
	}
	page := shared.NewPaginated(out, total, filter.Page, filter.PageSize)
	return &page, nil
}

// IngestInvoice normalizes the invoice month, matches the invoice to a
// cell of that month via the tiered cascade, and applies the amount as
// actual. An unrecognized month is a validation error; an unmatched
// invoice is a successful ingestion with Matched=false.
func (s *Service) IngestInvoice(ctx context.Context, projectID uuid.UUID, req IngestInvoiceRequest) (*IngestResult, error) {
	month := forecast.NormalizeMonth(req.Month)
	if month == 0 {
		return nil, shared.NewDomainError("INVALID_MONTH", "Invoice month could not be normalized to the 1..60 axis")
	}

	cells, err := s.cells.FindByProjectAndMonth(ctx, projectID, month)
	if err != nil {
		return nil, err
	}

	inv := &forecast.Invoice{
		LineItemID:  req.LineItemID,
		RubroID:     req.RubroID,
		Description: req.Description,
		Month:       req.Month,
		Amount:      req.Amount,
	}

	result := &IngestResult{NormalizedMonth: month, Amount: req.Amount}

	idx := forecast.MatchInvoice(inv, cells)
	if idx < 0 {
		s.logger.Info("invoice did not match any forecast cell",
			zap.String("project_id", projectID.String()),
			zap.Int("month", month),
		)
		return result, nil
	}

	cell := &cells[idx]
	cell.ApplyActual(req.Amount)
	if err := s.cells.Save(ctx, cell); err != nil {
		return nil, err
	}

	result.Matched = true
	result.Cell = toCellResponse(cell)
	return result, nil
}

// Metrics aggregates a project's cells and applies an optional budget
// simulation. TotalActual only counts cells that have seen an invoice.
func (s *Service) Metrics(ctx context.Context, projectID uuid.UUID, sim forecast.SimulationState) (*forecast.Metrics, error) {
	if !forecast.IsValidSimulationState(sim) {
		return nil, shared.NewDomainError("INVALID_SIMULATION", "An enabled simulation requires a positive budget total")
	}

	cells, err := s.cells.FindByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	base := forecast.Metrics{
		TotalPlanned:  decimal.Zero,
		TotalForecast: decimal.Zero,
		TotalActual:   decimal.Zero,
	}
	for i := range cells {
		base.TotalPlanned = base.TotalPlanned.Add(cells[i].Planned)
		base.TotalForecast = base.TotalForecast.Add(cells[i].Forecast)
		if cells[i].Actual != nil {
			base.TotalActual = base.TotalActual.Add(*cells[i].Actual)
		}
	}

	out := forecast.ApplySimulation(base, sim)
	return &out, nil
}
