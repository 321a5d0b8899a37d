package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
)

// AddColumn adds a column to the table. An existing column of a compatible
// type is adopted and added is false.
func (r *SchemaRepository) AddColumn(ctx context.Context, table string, col schema.ColumnDefinition) (bool, error) {
	existing, err := r.columnType(ctx, table, col.Name)
	if err != nil {
		return false, err
	}

	if existing != "" {
		if col.LogicalType != "" && !fieldtypes.IsCompatible(constants.FieldType(col.LogicalType), existing) {
			return false, appErrors.NewSchemaIntegrityError(table,
				fmt.Sprintf("column '%s' exists with incompatible type '%s'", col.Name, existing))
		}
		r.logger.Info("⚠️ Orphan column detected, adopting", zap.String("table", table), zap.String("column", col.Name))
		return false, nil
	}

	ddl := schema.BuildAddColumnDDL(table, col)
	r.logger.Debug("🏁 Executing DDL", zap.String("ddl", ddl))
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		if isMySQLError(err, ErrDuplicateColumn) {
			return false, nil
		}
		return false, fmt.Errorf("failed to add column to table %s: %w", table, err)
	}

	r.logger.Info("➕ Column added", zap.String("table", table), zap.String("column", col.Name))
	return true, nil
}

// DropColumn drops a column. A missing column is not an error.
func (r *SchemaRepository) DropColumn(ctx context.Context, table, column string) error {
	if _, err := r.db.ExecContext(ctx, schema.BuildDropColumnDDL(table, column)); err != nil {
		if isMySQLError(err, ErrCantDropField) {
			return nil
		}
		return fmt.Errorf("failed to drop column from table %s: %w", table, err)
	}
	r.logger.Info("➖ Column dropped", zap.String("table", table), zap.String("column", column))
	return nil
}

// CreateIndex creates an index. An index that already exists is tolerated.
func (r *SchemaRepository) CreateIndex(ctx context.Context, table string, idx schema.IndexDefinition) error {
	if _, err := r.db.ExecContext(ctx, schema.BuildCreateIndexDDL(table, idx)); err != nil {
		if isMySQLError(err, ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("failed to create index on %s: %w", table, err)
	}
	return nil
}
