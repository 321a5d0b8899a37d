package ports

import (
	"context"
	"time"

	"github.com/nexuscrm/kernel/pkg/models"
)

// WorkItemResolution is the terminal transition applied to a pending request.
type WorkItemResolution struct {
	Status       string
	ApprovedByID string
	// Comments are the approver's; the submitter's comments are kept.
	Comments     *string
	ResolvedAt   time.Time
}

// ApprovalStore persists approval processes and work items.
type ApprovalStore interface {
	SaveProcess(ctx context.Context, process *models.ApprovalProcess) error
	GetProcess(ctx context.Context, id string) (*models.ApprovalProcess, error)
	ListProcesses(ctx context.Context, objectAPIName string) ([]*models.ApprovalProcess, error)

	// CreateWorkItem inserts a pending item. A second pending item for the same
	// (process, record) yields a ConflictError.
	CreateWorkItem(ctx context.Context, item *models.ApprovalWorkItem) error
	GetWorkItem(ctx context.Context, id string) (*models.ApprovalWorkItem, error)

	// ResolveWorkItem locks the item and applies the resolution. Resolving an
	// item that is no longer pending yields a ConflictError.
	ResolveWorkItem(ctx context.Context, id string, res WorkItemResolution) (*models.ApprovalWorkItem, error)

	ListPendingForApprover(ctx context.Context, approverID string) ([]*models.ApprovalWorkItem, error)
}
