package ports

import (
	"context"

	"github.com/nexuscrm/kernel/pkg/models"
)

// RecordStore reads and writes business object rows. Column names handed to
// it are already whitelisted against the schema registry.
type RecordStore interface {
	Insert(ctx context.Context, table string, values map[string]interface{}) error

	// Update returns the number of rows matched by id and predicate.
	Update(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error)
	SoftDelete(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error)

	// FindByID returns NotFoundError when no live row matches id and predicate.
	FindByID(ctx context.Context, table string, columns []string, id string, pred models.Predicate) (models.SObject, error)
}
