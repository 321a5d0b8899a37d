package services

import (
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== System Column Definitions ====================

// SystemColumns returns the columns every business table carries. This is
// the single source of truth for system field definitions.
func SystemColumns() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{
			Name:        constants.FieldID,
			Type:        "VARCHAR(36)",
			LogicalType: string(constants.FieldTypeText),
			PrimaryKey:  true,
		},
		{
			Name:        constants.FieldOwnerID,
			Type:        "VARCHAR(36)",
			LogicalType: string(constants.FieldTypeLookup),
			Nullable:    true,
			ReferenceTo: []string{constants.TableUser},
		},
		{
			Name:        constants.FieldCreatedByID,
			Type:        "VARCHAR(36)",
			LogicalType: string(constants.FieldTypeLookup),
			Nullable:    true,
			ReferenceTo: []string{constants.TableUser},
		},
		{
			Name:        constants.FieldLastModifiedByID,
			Type:        "VARCHAR(36)",
			LogicalType: string(constants.FieldTypeLookup),
			Nullable:    true,
			ReferenceTo: []string{constants.TableUser},
		},
		{
			Name:        constants.FieldCreatedDate,
			Type:        "DATETIME",
			LogicalType: string(constants.FieldTypeDateTime),
			Default:     "CURRENT_TIMESTAMP",
		},
		{
			Name:        constants.FieldLastModifiedDate,
			Type:        "DATETIME",
			LogicalType: string(constants.FieldTypeDateTime),
			Default:     "CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP",
		},
		{
			Name:        constants.FieldIsDeleted,
			Type:        "TINYINT(1)",
			LogicalType: string(constants.FieldTypeBoolean),
			Default:     "0",
		},
	}
}

// systemIndexes backs the owner predicate of row-level security.
func systemIndexes() []schema.IndexDefinition {
	return []schema.IndexDefinition{
		{Columns: []string{constants.FieldOwnerID}},
	}
}

var systemFieldLabels = map[string]string{
	constants.FieldID:               "ID",
	constants.FieldOwnerID:          "Owner",
	constants.FieldCreatedByID:      "Created By",
	constants.FieldLastModifiedByID: "Last Modified By",
	constants.FieldCreatedDate:      "Created Date",
	constants.FieldLastModifiedDate: "Last Modified Date",
	constants.FieldIsDeleted:        "Deleted",
}

// SystemFieldMetadata derives the field rows registered for the system
// columns, so column definitions are never duplicated.
func SystemFieldMetadata() []models.FieldMetadata {
	columns := SystemColumns()
	fields := make([]models.FieldMetadata, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, models.FieldMetadata{
			APIName:     col.Name,
			Label:       systemFieldLabels[col.Name],
			Type:        constants.FieldType(col.LogicalType),
			Required:    !col.Nullable,
			IsSystem:    true,
			ReferenceTo: append([]string(nil), col.ReferenceTo...),
		})
	}
	return fields
}
