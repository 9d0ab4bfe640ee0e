package handler

import (
	appforecast "github.com/finz/backend/internal/application/forecast"
	"github.com/finz/backend/internal/domain/forecast"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForecastHandler serves the forecast grid and invoice reconciliation
// endpoints.
type ForecastHandler struct {
	BaseHandler
	service *appforecast.Service
}

// NewForecastHandler creates a new ForecastHandler
func NewForecastHandler(service *appforecast.Service) *ForecastHandler {
	return &ForecastHandler{service: service}
}

// RegisterRoutes registers the forecast routes
func (h *ForecastHandler) RegisterRoutes(rg *gin.RouterGroup) {
	cells := rg.Group("/projects/:projectId/forecast")
	{
		cells.PUT("/cells", h.UpsertCell)
		cells.GET("/cells", h.ListCells)
		cells.POST("/invoices", h.IngestInvoice)
		cells.GET("/metrics", h.Metrics)
	}
}

func (h *ForecastHandler) projectID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		h.BadRequest(c, "Invalid project ID")
		return uuid.Nil, false
	}
	return id, true
}

// UpsertCell handles PUT /projects/:projectId/forecast/cells
func (h *ForecastHandler) UpsertCell(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var req appforecast.UpsertCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.UpsertCell(c.Request.Context(), projectID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListCells handles GET /projects/:projectId/forecast/cells
func (h *ForecastHandler) ListCells(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.ListCells(c.Request.Context(), projectID, shared.Filter{
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// IngestInvoice handles POST /projects/:projectId/forecast/invoices
func (h *ForecastHandler) IngestInvoice(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var req appforecast.IngestInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.IngestInvoice(c.Request.Context(), projectID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// metricsQuery is the what-if simulation state as query parameters.
// Decimal values arrive as strings so they survive exact.
type metricsQuery struct {
	SimEnabled        bool   `form:"sim_enabled"`
	BudgetTotal       string `form:"budget_total"`
	Factor            string `form:"factor"`
	EstimatedOverride string `form:"estimated_override"`
}

// Metrics handles GET /projects/:projectId/forecast/metrics
func (h *ForecastHandler) Metrics(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var query metricsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	sim := forecast.SimulationState{
		Enabled: query.SimEnabled,
		Factor:  decimal.NewFromInt(1),
	}
	if query.BudgetTotal != "" {
		total, err := decimal.NewFromString(query.BudgetTotal)
		if err != nil {
			h.BadRequest(c, "Invalid budget_total")
			return
		}
		sim.BudgetTotal = total
	}
	if query.Factor != "" {
		factor, err := decimal.NewFromString(query.Factor)
		if err != nil {
			h.BadRequest(c, "Invalid factor")
			return
		}
		sim.Factor = factor
	}
	if query.EstimatedOverride != "" {
		override, err := decimal.NewFromString(query.EstimatedOverride)
		if err != nil {
			h.BadRequest(c, "Invalid estimated_override")
			return
		}
		sim.EstimatedOverride = &override
	}

	resp, err := h.service.Metrics(c.Request.Context(), projectID, sim)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
