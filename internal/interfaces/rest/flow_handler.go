package rest

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/errors"
)

// FlowService is the flow engine as seen by the HTTP adapter.
type FlowService interface {
	SaveFlow(ctx context.Context, flow *models.Flow) error
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	ListFlows(ctx context.Context) ([]*models.Flow, error)
	GetFlowInstance(ctx context.Context, id string) (*models.FlowInstance, error)
}

// FlowHandler handles flow management API endpoints
type FlowHandler struct {
	svc FlowService
}

// NewFlowHandler creates a new FlowHandler
func NewFlowHandler(svc FlowService) *FlowHandler {
	return &FlowHandler{svc: svc}
}

// GetAllFlows handles GET /api/metadata/flows
func (h *FlowHandler) GetAllFlows(c *gin.Context) {
	HandleGetEnvelope(c, "flows", func() (interface{}, error) {
		flows, err := h.svc.ListFlows(c.Request.Context())
		if flows == nil && err == nil {
			flows = []*models.Flow{}
		}
		return flows, err
	})
}

// GetFlow handles GET /api/metadata/flows/:id
func (h *FlowHandler) GetFlow(c *gin.Context) {
	flowID := c.Param("id")
	HandleGetEnvelope(c, "flow", func() (interface{}, error) {
		return h.svc.GetFlow(c.Request.Context(), flowID)
	})
}

// CreateFlow handles POST /api/metadata/flows
func (h *FlowHandler) CreateFlow(c *gin.Context) {
	var flow models.Flow
	HandleCreateEnvelope(c, "flow", "Flow created successfully", &flow, func() (interface{}, error) {
		if flow.Name == "" {
			return nil, errors.NewValidationError("name", "Flow name is required")
		}
		if flow.TriggerObject == "" {
			return nil, errors.NewValidationError("trigger_object", "Trigger object is required")
		}
		return nil, h.svc.SaveFlow(c.Request.Context(), &flow)
	})
}

// UpdateFlow handles PUT /api/metadata/flows/:id
func (h *FlowHandler) UpdateFlow(c *gin.Context) {
	flowID := c.Param("id")
	var flow models.Flow
	HandleUpdateEnvelope(c, "flow", "Flow updated successfully", &flow, func() (interface{}, error) {
		if _, err := h.svc.GetFlow(c.Request.Context(), flowID); err != nil {
			return nil, err
		}
		flow.ID = flowID
		return nil, h.svc.SaveFlow(c.Request.Context(), &flow)
	})
}

// GetFlowInstance handles GET /api/flows/instances/:id
func (h *FlowHandler) GetFlowInstance(c *gin.Context) {
	instanceID := c.Param("id")
	HandleGetEnvelope(c, "instance", func() (interface{}, error) {
		return h.svc.GetFlowInstance(c.Request.Context(), instanceID)
	})
}
