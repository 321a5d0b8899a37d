package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/models"
)

// SchemaManager synthesizes physical table definitions from object metadata
// and executes the resulting DDL.
type SchemaManager struct {
	store     ports.SchemaStore
	validator *DDLValidator
	logger    *zap.Logger
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(store ports.SchemaStore, validator *DDLValidator, logger *zap.Logger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewDDLValidator()
	}
	return &SchemaManager{store: store, validator: validator, logger: logger}
}

// FieldColumns returns the physical columns and indexes backing one field.
// Virtual fields have none.
func FieldColumns(field *models.FieldMetadata) ([]schema.ColumnDefinition, []schema.IndexDefinition, error) {
	if fieldtypes.IsVirtual(field.Type) {
		return nil, nil, nil
	}
	sqlType, err := fieldtypes.ColumnType(field.Type, field.MaxLen())
	if err != nil {
		return nil, nil, errors.NewValidationError(field.APIName, err.Error())
	}

	cols := []schema.ColumnDefinition{{
		Name:        field.APIName,
		Type:        sqlType,
		LogicalType: string(field.Type),
		Nullable:    !field.Required,
		Unique:      field.Unique,
		ReferenceTo: append([]string(nil), field.ReferenceTo...),
		IsNameField: field.IsNameField,
		Options:     append([]string(nil), field.Options...),
	}}

	var idxs []schema.IndexDefinition
	if fieldtypes.IsFK(field.Type) {
		idxs = append(idxs, schema.IndexDefinition{Columns: []string{field.APIName}})
		if field.IsPolymorphic() {
			cols = append(cols, schema.ColumnDefinition{
				Name:        field.APIName + constants.PolymorphicTypeSuffix,
				Type:        "VARCHAR(255)",
				LogicalType: string(constants.FieldTypeText),
				Nullable:    true,
			})
		}
	}
	return cols, idxs, nil
}

// BuildTableDefinition returns the table for an object: system columns first,
// then one column per stored field in declaration order.
func (sm *SchemaManager) BuildTableDefinition(obj *models.ObjectMetadata) (schema.TableDefinition, error) {
	def := schema.TableDefinition{
		TableName: obj.APIName,
		TableType: string(obj.TableType),
		Label:     obj.Label,
		Columns:   SystemColumns(),
		Indices:   systemIndexes(),
	}
	if obj.Description != nil {
		def.Description = *obj.Description
	}

	for i := range obj.Fields {
		field := &obj.Fields[i]
		if field.IsSystem {
			continue
		}
		cols, idxs, err := FieldColumns(field)
		if err != nil {
			return schema.TableDefinition{}, err
		}
		def.Columns = append(def.Columns, cols...)
		def.Indices = append(def.Indices, idxs...)
	}
	return def, nil
}

// CreateTable validates and executes the DDL for def. created is false when
// the table already existed.
func (sm *SchemaManager) CreateTable(ctx context.Context, def schema.TableDefinition) (bool, error) {
	if err := sm.validator.ValidateCreateTable(def); err != nil {
		return false, err
	}
	sm.logger.Info("📐 Creating table", zap.String("table", def.TableName))
	return sm.store.CreateTable(ctx, def)
}

// BatchCreateTables validates every definition before running any DDL, then
// creates the tables concurrently.
func (sm *SchemaManager) BatchCreateTables(ctx context.Context, defs []schema.TableDefinition) ([]string, error) {
	for _, def := range defs {
		if err := sm.validator.ValidateCreateTable(def); err != nil {
			return nil, err
		}
	}
	sm.logger.Info("📐 Creating tables", zap.Int("count", len(defs)))
	return sm.store.BatchCreateTables(ctx, defs)
}

// DropTable drops a table created by a failed registration.
func (sm *SchemaManager) DropTable(ctx context.Context, table string) error {
	sm.logger.Warn("⚠️ Dropping table after failed registration", zap.String("table", table))
	return sm.store.DropTable(ctx, table)
}

// ReconcileTable brings a table that already existed up to def before it is
// registered: missing columns and indexes are added and existing columns must
// have a compatible type. It returns the columns this call added.
func (sm *SchemaManager) ReconcileTable(ctx context.Context, def schema.TableDefinition) ([]string, error) {
	sm.logger.Warn("⚠️ Table already exists, reconciling columns", zap.String("table", def.TableName))

	var added []string
	for _, col := range def.Columns {
		ok, err := sm.store.AddColumn(ctx, def.TableName, col)
		if err != nil {
			sm.DropColumns(ctx, def.TableName, added)
			return nil, err
		}
		if ok {
			added = append(added, col.Name)
		}
	}
	for _, idx := range def.Indices {
		if err := sm.store.CreateIndex(ctx, def.TableName, idx); err != nil {
			sm.DropColumns(ctx, def.TableName, added)
			return nil, fmt.Errorf("failed to index %s: %w", def.TableName, err)
		}
	}
	return added, nil
}

// AddFieldColumns adds the columns and indexes of a stored field. It returns
// the columns that this call actually added.
func (sm *SchemaManager) AddFieldColumns(ctx context.Context, table string, field *models.FieldMetadata) ([]string, error) {
	cols, idxs, err := FieldColumns(field)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, col := range cols {
		ok, err := sm.store.AddColumn(ctx, table, col)
		if err != nil {
			sm.DropColumns(ctx, table, added)
			return nil, err
		}
		if ok {
			added = append(added, col.Name)
		}
	}
	for _, idx := range idxs {
		if err := sm.store.CreateIndex(ctx, table, idx); err != nil {
			sm.DropColumns(ctx, table, added)
			return nil, fmt.Errorf("failed to index %s.%s: %w", table, field.APIName, err)
		}
	}
	return added, nil
}

// DropColumns removes columns added by a failed registration. Failures are
// logged; the consistency check reports anything left behind.
func (sm *SchemaManager) DropColumns(ctx context.Context, table string, columns []string) {
	for _, col := range columns {
		if err := sm.store.DropColumn(context.WithoutCancel(ctx), table, col); err != nil {
			sm.logger.Warn("⚠️ Failed to drop column", zap.String("table", table), zap.String("column", col), zap.Error(err))
		}
	}
}
