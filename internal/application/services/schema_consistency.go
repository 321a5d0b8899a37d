package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
)

// CheckConsistency compares the registry with the physical catalog. It reports
// every mismatch and never repairs anything.
func (ms *MetadataService) CheckConsistency(ctx context.Context) ([]*errors.SchemaIntegrityError, error) {
	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := ms.schemaMgr.store.ListTables(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list tables", err)
	}
	columns, err := ms.schemaMgr.store.ListColumns(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list columns", err)
	}

	// INFORMATION_SCHEMA may fold case depending on the server configuration.
	tablesLower := make(map[string]bool, len(tables))
	for t := range tables {
		tablesLower[strings.ToLower(t)] = true
	}
	columnsLower := make(map[string]map[string]string, len(columns))
	for t, cols := range columns {
		m := make(map[string]string, len(cols))
		for c, dt := range cols {
			m[strings.ToLower(c)] = dt
		}
		columnsLower[strings.ToLower(t)] = m
	}

	var violations []*errors.SchemaIntegrityError
	for _, obj := range snap.sorted() {
		key := strings.ToLower(obj.APIName)
		if !tablesLower[key] {
			violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName, "object has no physical table"))
			continue
		}
		cols := columnsLower[key]

		if !constants.IsSystemTable(obj.APIName) {
			for _, sys := range constants.StandardSystemFields() {
				if _, ok := cols[sys]; !ok {
					violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName,
						fmt.Sprintf("missing system column '%s'", sys)))
				}
			}
		}

		for i := range obj.Fields {
			field := &obj.Fields[i]
			if fieldtypes.IsVirtual(field.Type) {
				continue
			}
			dataType, ok := cols[strings.ToLower(field.APIName)]
			if !ok {
				violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName,
					fmt.Sprintf("field '%s' has no physical column", field.APIName)))
				continue
			}
			if !fieldtypes.IsCompatible(field.Type, dataType) {
				violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName,
					fmt.Sprintf("field '%s' of type %s is stored in an incompatible %s column", field.APIName, field.Type, dataType)))
			}
			if field.IsPolymorphic() {
				if _, ok := cols[strings.ToLower(field.APIName+constants.PolymorphicTypeSuffix)]; !ok {
					violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName,
						fmt.Sprintf("polymorphic field '%s' has no discriminator column", field.APIName)))
				}
			}
			for _, target := range field.ReferenceTo {
				if snap.get(target) == nil {
					violations = append(violations, errors.NewSchemaIntegrityError(obj.APIName,
						fmt.Sprintf("field '%s' references unknown object '%s'", field.APIName, target)))
				}
			}
		}
	}

	if len(violations) > 0 {
		ms.logger.Warn("⚠️ Schema consistency check found violations", zap.Int("count", len(violations)))
	} else {
		ms.logger.Debug("✅ Schema consistency check passed")
	}
	return violations, nil
}
