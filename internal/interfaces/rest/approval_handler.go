package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ApprovalService defines the interface for approval operations
type ApprovalService interface {
	SaveProcess(ctx context.Context, process *models.ApprovalProcess) error
	Submit(ctx context.Context, caller *models.UserSession, objectAPIName, recordID, comments string) (*models.ApprovalWorkItem, error)
	Approve(ctx context.Context, caller *models.UserSession, workItemID, comments string) (*models.ApprovalWorkItem, error)
	Reject(ctx context.Context, caller *models.UserSession, workItemID, comments string) (*models.ApprovalWorkItem, error)
	GetPending(ctx context.Context, caller *models.UserSession) ([]*models.ApprovalWorkItem, error)
}

// ApprovalHandler handles approval process API endpoints
type ApprovalHandler struct {
	svc ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(svc ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// SubmitRequest represents a request to submit a record for approval
type SubmitRequest struct {
	ObjectAPIName string `json:"object_api_name" binding:"required"`
	RecordID      string `json:"record_id" binding:"required"`
	Comments      string `json:"comments"`
}

// ApprovalActionRequest represents an approve/reject request
type ApprovalActionRequest struct {
	Comments string `json:"comments"`
}

// Submit handles POST /api/approvals/submit
func (h *ApprovalHandler) Submit(c *gin.Context) {
	user := CallerFromContext(c)

	var req SubmitRequest
	if !BindJSON(c, &req) {
		return
	}

	item, err := h.svc.Submit(c.Request.Context(), user, req.ObjectAPIName, req.RecordID, req.Comments)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{
			constants.ResponseMessage: "Record submitted for approval",
			"work_item":               item,
		},
	})
}

// Approve handles POST /api/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.resolve(c, h.svc.Approve, "Approval granted")
}

// Reject handles POST /api/approvals/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.resolve(c, h.svc.Reject, "Approval rejected")
}

type resolveFunc func(ctx context.Context, caller *models.UserSession, workItemID, comments string) (*models.ApprovalWorkItem, error)

func (h *ApprovalHandler) resolve(c *gin.Context, action resolveFunc, successMsg string) {
	workItemID := c.Param("id")
	user := CallerFromContext(c)

	var req ApprovalActionRequest
	_ = c.ShouldBindJSON(&req) // Optional comments

	item, err := action(c.Request.Context(), user, workItemID, req.Comments)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{
			constants.ResponseMessage: successMsg,
			"work_item":               item,
		},
	})
}

// GetPending handles GET /api/approvals/pending
func (h *ApprovalHandler) GetPending(c *gin.Context) {
	user := CallerFromContext(c)
	HandleGetEnvelope(c, constants.ResponseData, func() (interface{}, error) {
		items, err := h.svc.GetPending(c.Request.Context(), user)
		if items == nil && err == nil {
			items = []*models.ApprovalWorkItem{}
		}
		return items, err
	})
}

// SaveProcess handles POST /api/approvals/processes
func (h *ApprovalHandler) SaveProcess(c *gin.Context) {
	var process models.ApprovalProcess
	HandleCreateEnvelope(c, "process", "Approval process saved successfully", &process, func() (interface{}, error) {
		return nil, h.svc.SaveProcess(c.Request.Context(), &process)
	})
}
