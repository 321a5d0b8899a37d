package ports

import (
	"context"

	"github.com/nexuscrm/kernel/internal/domain/models"
)

// FlowStore persists flow definitions and flow instances.
type FlowStore interface {
	// ListFlows returns every flow regardless of status.
	ListFlows(ctx context.Context) ([]*models.Flow, error)
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error

	SaveFlowInstance(ctx context.Context, instance *models.FlowInstance) error
	GetFlowInstance(ctx context.Context, id string) (*models.FlowInstance, error)
}
