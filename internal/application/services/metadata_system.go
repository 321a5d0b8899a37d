package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

var varcharLength = regexp.MustCompile(`(?i)^varchar\((\d+)\)$`)

// logicalTypeOf maps a physical column to the field type registered for it.
// An explicit logical type wins.
func logicalTypeOf(col schema.ColumnDefinition) (constants.FieldType, error) {
	if col.LogicalType != "" {
		t := constants.FieldType(col.LogicalType)
		if !fieldtypes.IsKnown(t) {
			return "", fmt.Errorf("column %s: unknown logical type '%s'", col.Name, col.LogicalType)
		}
		return t, nil
	}
	sqlType := strings.ToUpper(strings.TrimSpace(col.Type))
	switch {
	case strings.HasPrefix(sqlType, "VARCHAR"), strings.HasPrefix(sqlType, "CHAR"):
		return constants.FieldTypeText, nil
	case sqlType == "TEXT":
		return constants.FieldTypeTextArea, nil
	case strings.HasSuffix(sqlType, "TEXT"):
		return constants.FieldTypeLongTextArea, nil
	case strings.HasPrefix(sqlType, "TINYINT(1)"), sqlType == "BOOLEAN", sqlType == "BOOL":
		return constants.FieldTypeBoolean, nil
	case strings.HasPrefix(sqlType, "INT"), strings.HasPrefix(sqlType, "BIGINT"),
		strings.HasPrefix(sqlType, "DOUBLE"), strings.HasPrefix(sqlType, "DECIMAL"):
		return constants.FieldTypeNumber, nil
	case strings.HasPrefix(sqlType, "DATETIME"), strings.HasPrefix(sqlType, "TIMESTAMP"):
		return constants.FieldTypeDateTime, nil
	case sqlType == "DATE":
		return constants.FieldTypeDate, nil
	case sqlType == "JSON":
		return constants.FieldTypeJSON, nil
	}
	return "", fmt.Errorf("column %s: no field type for SQL type '%s'", col.Name, col.Type)
}

// SystemObject derives the registry entry of a system table. Ids are stable
// so that every bootstrap run upserts the same rows.
func SystemObject(def schema.TableDefinition) (*models.ObjectMetadata, error) {
	if !constants.IsSystemTable(def.TableName) {
		return nil, errors.NewValidationError("table_name", fmt.Sprintf("'%s' is not a system table", def.TableName))
	}
	label := def.Label
	if label == "" {
		label = LabelFromAPIName(strings.TrimPrefix(def.TableName, constants.SystemTablePrefix))
	}
	tableType := constants.TableType(def.TableType)
	if tableType == "" {
		tableType = constants.TableTypeSystemMetadata
	}

	obj := &models.ObjectMetadata{
		ID:           constants.PrefixObject + utils.StableID(def.TableName),
		APIName:      def.TableName,
		Label:        label,
		PluralLabel:  label + "s",
		TableType:    tableType,
		SharingModel: constants.SharingModelPublicReadWrite,
	}
	if def.Description != "" {
		desc := def.Description
		obj.Description = &desc
	}

	system := map[string]bool{constants.FieldID: true}
	for _, name := range constants.GetSystemFieldNames() {
		system[name] = true
	}
	for _, col := range def.Columns {
		t, err := logicalTypeOf(col)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.TableName, err)
		}
		field := models.FieldMetadata{
			ID:          constants.PrefixField + utils.StableID(def.TableName, col.Name),
			ObjectID:    obj.ID,
			APIName:     col.Name,
			Label:       LabelFromAPIName(col.Name),
			Type:        t,
			Required:    !col.Nullable && !col.PrimaryKey && col.Default == "",
			Unique:      col.Unique,
			IsNameField: col.IsNameField,
			IsSystem:    system[col.Name],
			Options:     append([]string(nil), col.Options...),
			ReferenceTo: append([]string(nil), col.ReferenceTo...),
		}
		if l, ok := systemFieldLabels[col.Name]; ok {
			field.Label = l
		}
		if m := varcharLength.FindStringSubmatch(col.Type); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				field.MaxLength = &n
			}
		}
		obj.Fields = append(obj.Fields, field)
	}
	return obj, nil
}

// RegisterSystemTables creates the system tables and upserts their registry
// rows. The registry tables are created first and one at a time; the rest
// are created concurrently. Every step is idempotent.
func (ms *MetadataService) RegisterSystemTables(ctx context.Context, defs []schema.TableDefinition) error {
	regs := make([]ports.ObjectRegistration, 0, len(defs))
	byName := make(map[string]schema.TableDefinition, len(defs))
	for _, def := range defs {
		obj, err := SystemObject(def)
		if err != nil {
			return err
		}
		regs = append(regs, ports.ObjectRegistration{Table: def, Object: obj})
		byName[def.TableName] = def
	}

	core := make(map[string]bool)
	for _, name := range constants.BootstrapTables() {
		def, ok := byName[name]
		if !ok {
			return errors.NewSchemaIntegrityError(name, "registry table is missing from the system table set")
		}
		if _, err := ms.schemaMgr.CreateTable(ctx, def); err != nil {
			return fmt.Errorf("failed to create registry table %s: %w", name, err)
		}
		core[name] = true
	}

	var rest []schema.TableDefinition
	for _, def := range defs {
		if !core[def.TableName] {
			rest = append(rest, def)
		}
	}
	if len(rest) > 0 {
		if _, err := ms.schemaMgr.BatchCreateTables(ctx, rest); err != nil {
			return fmt.Errorf("failed to create system tables: %w", err)
		}
	}

	if err := ms.store.RegisterObjects(ctx, regs); err != nil {
		return fmt.Errorf("failed to register system tables: %w", err)
	}
	ms.logger.Info("✅ System tables registered", zap.Int("tables", len(regs)))
	return ms.RefreshSnapshot(ctx)
}
