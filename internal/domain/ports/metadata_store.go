package ports

import (
	"context"

	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ObjectRegistration pairs an object with its physical table definition.
type ObjectRegistration struct {
	Table  schema.TableDefinition
	Object *models.ObjectMetadata
}

// MetadataStore persists the _System_Table, _System_Object, _System_Field and
// _System_Validation rows.
type MetadataStore interface {
	// LoadSchemas returns every live object with its live fields.
	LoadSchemas(ctx context.Context) ([]*models.ObjectMetadata, error)

	// ObjectExists also reports soft-deleted objects; api names are never reused.
	ObjectExists(ctx context.Context, apiName string) (bool, error)

	// RegisterObject inserts the table, object and field rows in one
	// transaction. A duplicate api_name yields a ConflictError.
	RegisterObject(ctx context.Context, reg ObjectRegistration) error

	// RegisterObjects upserts many registrations in one transaction.
	RegisterObjects(ctx context.Context, regs []ObjectRegistration) error

	// RegisterField inserts one field row. A duplicate yields a ConflictError.
	RegisterField(ctx context.Context, field *models.FieldMetadata) error

	SoftDeleteObject(ctx context.Context, apiName string) error
	SoftDeleteField(ctx context.Context, objectID, fieldAPIName string) error

	ListValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error)
	SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error
}
