package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

var tableColumns = []string{"id", "table_name", "table_type", "description", "created_date", "last_modified_date"}

// RegisterObject inserts the _System_Table, _System_Object and _System_Field
// rows in one transaction. The object insert is strict so that concurrent
// creators of the same api_name race on its unique key.
func (r *MetadataRepository) RegisterObject(ctx context.Context, reg ports.ObjectRegistration) error {
	return r.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := r.now()
		if err := r.upsertTables(ctx, tx, []ports.ObjectRegistration{reg}, now); err != nil {
			return fmt.Errorf("failed to register table %s: %w", reg.Table.TableName, err)
		}

		if err := r.insertObjects(ctx, tx, []*models.ObjectMetadata{reg.Object}, now, false); err != nil {
			return translateDuplicate(err, "object", constants.FieldAPIName, reg.Object.APIName)
		}

		if err := r.insertFields(ctx, tx, []*models.ObjectMetadata{reg.Object}, now, false); err != nil {
			return fmt.Errorf("failed to register fields for %s: %w", reg.Object.APIName, err)
		}

		r.logger.Info("✅ Object registered", zap.String("object", reg.Object.APIName), zap.Int("fields", len(reg.Object.Fields)))
		return nil
	})
}

// RegisterObjects upserts many registrations in one transaction so that a
// retried batch converges on the same rows.
func (r *MetadataRepository) RegisterObjects(ctx context.Context, regs []ports.ObjectRegistration) error {
	if len(regs) == 0 {
		return nil
	}
	return r.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := r.now()
		objects := make([]*models.ObjectMetadata, len(regs))
		for i := range regs {
			objects[i] = regs[i].Object
		}

		// Re-use ids of rows left by an earlier attempt so field rows keep pointing at them.
		if err := r.adoptObjectIDs(ctx, tx, objects); err != nil {
			return err
		}
		if err := r.upsertTables(ctx, tx, regs, now); err != nil {
			return fmt.Errorf("failed to register tables: %w", err)
		}
		if err := r.insertObjects(ctx, tx, objects, now, true); err != nil {
			return fmt.Errorf("failed to register objects: %w", err)
		}
		if err := r.insertFields(ctx, tx, objects, now, true); err != nil {
			return fmt.Errorf("failed to register fields: %w", err)
		}

		r.logger.Info("✅ Objects registered", zap.Int("objects", len(objects)))
		return nil
	})
}

// RegisterField inserts a single field row after the object's existing fields.
func (r *MetadataRepository) RegisterField(ctx context.Context, field *models.FieldMetadata) error {
	exec := r.tm.Executor(ctx)

	var position int
	posQuery := fmt.Sprintf("SELECT COALESCE(MAX(position), -1) + 1 FROM %s WHERE object_id = ?", constants.TableField)
	if err := exec.QueryRowContext(ctx, posQuery, field.ObjectID).Scan(&position); err != nil {
		return fmt.Errorf("failed to read field position: %w", err)
	}

	args, err := fieldArgs(field, position, r.now())
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		constants.TableField, strings.Join(fieldColumns, ", "), placeholders(len(fieldColumns)))
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return translateDuplicate(err, "field", constants.FieldAPIName, field.APIName)
	}
	return nil
}

func (r *MetadataRepository) adoptObjectIDs(ctx context.Context, tx *sql.Tx, objects []*models.ObjectMetadata) error {
	names := make([]interface{}, len(objects))
	for i, obj := range objects {
		names[i] = obj.APIName
	}
	query := fmt.Sprintf("SELECT id, api_name FROM %s WHERE api_name IN (%s)", constants.TableObject, placeholders(len(names)))
	rows, err := tx.QueryContext(ctx, query, names...)
	if err != nil {
		return fmt.Errorf("failed to look up existing objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]string)
	for rows.Next() {
		var id, apiName string
		if err := rows.Scan(&id, &apiName); err != nil {
			return err
		}
		existing[apiName] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, obj := range objects {
		if id, ok := existing[obj.APIName]; ok {
			obj.ID = id
		}
		for i := range obj.Fields {
			obj.Fields[i].ObjectID = obj.ID
		}
	}
	return nil
}

func (r *MetadataRepository) upsertTables(ctx context.Context, tx *sql.Tx, regs []ports.ObjectRegistration, now time.Time) error {
	rows := make([]string, 0, len(regs))
	args := make([]interface{}, 0, len(regs)*len(tableColumns))
	for _, reg := range regs {
		rows = append(rows, "("+placeholders(len(tableColumns))+")")
		args = append(args, constants.PrefixTable+utils.GenerateID(), reg.Table.TableName, reg.Table.TableType, reg.Table.Description, now, now)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s %s",
		constants.TableTable, strings.Join(tableColumns, ", "), strings.Join(rows, ", "),
		KeywordOnDuplicate, valuesUpdateClause([]string{"table_type", "description", "last_modified_date"}))
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *MetadataRepository) insertObjects(ctx context.Context, tx *sql.Tx, objects []*models.ObjectMetadata, now time.Time, upsert bool) error {
	rows := make([]string, 0, len(objects))
	args := make([]interface{}, 0, len(objects)*len(objectColumns))
	for _, obj := range objects {
		rows = append(rows, "("+placeholders(len(objectColumns))+")")
		args = append(args, obj.ID, obj.APIName, obj.Label, obj.PluralLabel, obj.Description, obj.IsCustom,
			string(obj.TableType), string(obj.SharingModel), false, now, now)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		constants.TableObject, strings.Join(objectColumns, ", "), strings.Join(rows, ", "))
	if upsert {
		query += " " + KeywordOnDuplicate + " " + valuesUpdateClause([]string{
			"label", "plural_label", "description", "is_custom", "table_type", "sharing_model", "last_modified_date",
		})
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *MetadataRepository) insertFields(ctx context.Context, tx *sql.Tx, objects []*models.ObjectMetadata, now time.Time, upsert bool) error {
	var rows []string
	var args []interface{}
	for _, obj := range objects {
		for i := range obj.Fields {
			f := &obj.Fields[i]
			f.ObjectID = obj.ID
			fa, err := fieldArgs(f, i, now)
			if err != nil {
				return err
			}
			rows = append(rows, "("+placeholders(len(fieldColumns))+")")
			args = append(args, fa...)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		constants.TableField, strings.Join(fieldColumns, ", "), strings.Join(rows, ", "))
	if upsert {
		query += " " + KeywordOnDuplicate + " " + valuesUpdateClause([]string{
			"label", "type", "required", "is_unique", "is_name_field", "is_system", "options",
			"reference_to", "delete_rule", "formula", "return_type", "default_value", "max_length",
			"position", "last_modified_date",
		})
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// fieldArgs returns the values for fieldColumns in order.
func fieldArgs(f *models.FieldMetadata, position int, now time.Time) ([]interface{}, error) {
	options, err := marshalJSON(f.Options)
	if err != nil {
		return nil, err
	}
	refs, err := marshalJSON(f.ReferenceTo)
	if err != nil {
		return nil, err
	}
	var deleteRule, returnType interface{}
	if f.DeleteRule != nil {
		deleteRule = string(*f.DeleteRule)
	}
	if f.ReturnType != nil {
		returnType = string(*f.ReturnType)
	}
	var maxLength interface{}
	if f.MaxLength != nil {
		maxLength = *f.MaxLength
	}
	return []interface{}{
		f.ID, f.ObjectID, f.APIName, f.Label, string(f.Type), f.Required, f.Unique,
		f.IsNameField, f.IsSystem, options, refs, deleteRule,
		f.Formula, returnType, f.DefaultValue, maxLength, position,
		false, now, now,
	}, nil
}
