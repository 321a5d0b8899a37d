package rest

import (
	"context"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/models"
)

// MetadataService is the schema registry as seen by the HTTP adapter.
type MetadataService interface {
	CreateObject(ctx context.Context, def *models.ObjectMetadata) (*models.ObjectMetadata, error)
	BatchCreateObjects(ctx context.Context, defs []*models.ObjectMetadata) []services.ObjectResult
	GetSchema(ctx context.Context, apiName string) (*models.ObjectMetadata, error)
	GetSchemas(ctx context.Context) ([]*models.ObjectMetadata, error)
	DeleteObject(ctx context.Context, apiName string) error
	CreateField(ctx context.Context, objectAPIName string, def *models.FieldMetadata) (*models.FieldMetadata, error)
	DeleteField(ctx context.Context, objectAPIName, fieldAPIName string) error
	GetValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error)
	SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error
}

type MetadataHandler struct {
	svc MetadataService
}

func NewMetadataHandler(svc MetadataService) *MetadataHandler {
	return &MetadataHandler{svc: svc}
}
