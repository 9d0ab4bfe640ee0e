package handler

import (
	"context"

	appbaseline "github.com/finz/backend/internal/application/baseline"
	"github.com/finz/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader carries the client-chosen dedup key on mutating
// requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// transitionFunc is the shared signature of the lifecycle transitions
type transitionFunc func(ctx context.Context, projectID, id uuid.UUID, req appbaseline.TransitionRequest, actor, idempotencyKey string) (*appbaseline.BaselineResponse, error)

// BaselineHandler serves the baseline lifecycle endpoints
type BaselineHandler struct {
	BaseHandler
	service *appbaseline.LifecycleService
}

// NewBaselineHandler creates a new BaselineHandler
func NewBaselineHandler(service *appbaseline.LifecycleService) *BaselineHandler {
	return &BaselineHandler{service: service}
}

// RegisterRoutes registers the baseline lifecycle routes
func (h *BaselineHandler) RegisterRoutes(rg *gin.RouterGroup) {
	baselines := rg.Group("/projects/:projectId/baselines")
	{
		baselines.POST("", h.Create)
		baselines.GET("", h.List)
		baselines.GET("/:id", h.Get)
		baselines.GET("/:id/audit", h.AuditTrail)
		baselines.POST("/:id/handoff", h.HandOff)
		baselines.POST("/:id/accept", h.Accept)
		baselines.POST("/:id/reject", h.Reject)
	}
}

func (h *BaselineHandler) projectID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		h.BadRequest(c, "Invalid project ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaselineHandler) baselineID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid baseline ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaselineHandler) actor(c *gin.Context) (string, bool) {
	actor := c.GetString("actor")
	if actor == "" {
		h.Unauthorized(c, "Authenticated actor required")
		return "", false
	}
	return actor, true
}

// Create handles POST /projects/:projectId/baselines
func (h *BaselineHandler) Create(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req appbaseline.CreateBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.CreateBaseline(c.Request.Context(), projectID, req, actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get handles GET /projects/:projectId/baselines/:id
func (h *BaselineHandler) Get(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	id, ok := h.baselineID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetBaseline(c.Request.Context(), projectID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// listQuery is the pagination window as query parameters
type listQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// List handles GET /projects/:projectId/baselines
func (h *BaselineHandler) List(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}

	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.ListBaselines(c.Request.Context(), projectID, shared.Filter{
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// AuditTrail handles GET /projects/:projectId/baselines/:id/audit
func (h *BaselineHandler) AuditTrail(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	id, ok := h.baselineID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetAuditTrail(c.Request.Context(), projectID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// HandOff handles POST /projects/:projectId/baselines/:id/handoff
func (h *BaselineHandler) HandOff(c *gin.Context) {
	h.transition(c, h.service.HandOff)
}

// Accept handles POST /projects/:projectId/baselines/:id/accept
func (h *BaselineHandler) Accept(c *gin.Context) {
	h.transition(c, h.service.Accept)
}

// Reject handles POST /projects/:projectId/baselines/:id/reject
func (h *BaselineHandler) Reject(c *gin.Context) {
	h.transition(c, h.service.Reject)
}

func (h *BaselineHandler) transition(c *gin.Context, apply transitionFunc) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	id, ok := h.baselineID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req appbaseline.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := apply(c.Request.Context(), projectID, id, req, actor, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
