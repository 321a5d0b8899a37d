package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

var objectColumns = []string{
	"id", "api_name", "label", "plural_label", "description", "is_custom",
	"table_type", "sharing_model", "is_deleted", "created_date", "last_modified_date",
}

var fieldColumns = []string{
	"id", "object_id", "api_name", "label", "type", "required", "is_unique",
	"is_name_field", "is_system", "options", "reference_to", "delete_rule",
	"formula", "return_type", "default_value", "max_length", "position",
	"is_deleted", "created_date", "last_modified_date",
}

var validationColumns = []string{
	"id", "object_api_name", "name", "active", "error_condition", "error_message",
	"created_date", "last_modified_date",
}

// MetadataRepository persists object, field and validation rule metadata.
type MetadataRepository struct {
	db     *database.TiDBConnection
	tm     *TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewMetadataRepository creates a new MetadataRepository
func NewMetadataRepository(db *database.TiDBConnection, logger *zap.Logger) *MetadataRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataRepository{
		db:     db,
		tm:     NewTransactionManager(db),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LoadSchemas returns every live object with its live fields in declaration order.
func (r *MetadataRepository) LoadSchemas(ctx context.Context) ([]*models.ObjectMetadata, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE is_deleted = 0 ORDER BY api_name",
		strings.Join(objectColumns, ", "), constants.TableObject)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	objects := make([]*models.ObjectMetadata, 0)
	byID := make(map[string]*models.ObjectMetadata)
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
		byID[obj.ID] = obj
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fieldQuery := fmt.Sprintf("SELECT %s FROM %s WHERE is_deleted = 0 ORDER BY object_id, position, api_name",
		strings.Join(fieldColumns, ", "), constants.TableField)
	fieldRows, err := r.db.QueryContext(ctx, fieldQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	defer func() { _ = fieldRows.Close() }()

	for fieldRows.Next() {
		field, err := scanField(fieldRows)
		if err != nil {
			return nil, err
		}
		// Orphaned field rows are reported by the startup assertions.
		if obj, ok := byID[field.ObjectID]; ok {
			obj.Fields = append(obj.Fields, *field)
		}
	}
	return objects, fieldRows.Err()
}

func scanObject(row Scannable) (*models.ObjectMetadata, error) {
	var obj models.ObjectMetadata
	var description sql.NullString
	var tableType, sharing string
	var created, modified sql.NullTime
	if err := row.Scan(&obj.ID, &obj.APIName, &obj.Label, &obj.PluralLabel, &description,
		&obj.IsCustom, &tableType, &sharing, &obj.IsDeleted, &created, &modified); err != nil {
		return nil, fmt.Errorf("failed to scan object: %w", err)
	}
	obj.Description = nullString(description)
	obj.TableType = constants.TableType(tableType)
	obj.SharingModel = models.SharingModel(sharing)
	obj.CreatedDate = timeOrZero(created)
	obj.LastModified = timeOrZero(modified)
	obj.Fields = make([]models.FieldMetadata, 0)
	return &obj, nil
}

func scanField(row Scannable) (*models.FieldMetadata, error) {
	var f models.FieldMetadata
	var fieldType string
	var options, referenceTo, deleteRule, formula, returnType, defaultValue sql.NullString
	var maxLength sql.NullInt64
	var position int
	var created, modified sql.NullTime
	if err := row.Scan(&f.ID, &f.ObjectID, &f.APIName, &f.Label, &fieldType, &f.Required, &f.Unique,
		&f.IsNameField, &f.IsSystem, &options, &referenceTo, &deleteRule,
		&formula, &returnType, &defaultValue, &maxLength, &position,
		&f.IsDeleted, &created, &modified); err != nil {
		return nil, fmt.Errorf("failed to scan field: %w", err)
	}
	f.Type = models.FieldType(fieldType)
	if err := unmarshalJSON(options, &f.Options); err != nil {
		return nil, fmt.Errorf("field %s options: %w", f.APIName, err)
	}
	if err := unmarshalJSON(referenceTo, &f.ReferenceTo); err != nil {
		return nil, fmt.Errorf("field %s reference_to: %w", f.APIName, err)
	}
	if deleteRule.Valid {
		rule := models.DeleteRule(deleteRule.String)
		f.DeleteRule = &rule
	}
	f.Formula = nullString(formula)
	if returnType.Valid {
		rt := models.FieldType(returnType.String)
		f.ReturnType = &rt
	}
	f.DefaultValue = nullString(defaultValue)
	if maxLength.Valid {
		ml := int(maxLength.Int64)
		f.MaxLength = &ml
	}
	f.CreatedDate = timeOrZero(created)
	f.LastModified = timeOrZero(modified)
	return &f, nil
}

// ObjectExists reports whether an object row exists, including soft-deleted ones.
func (r *MetadataRepository) ObjectExists(ctx context.Context, apiName string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE api_name = ?", constants.TableObject)
	var count int
	if err := r.db.QueryRowContext(ctx, query, apiName).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check object %s: %w", apiName, err)
	}
	return count > 0, nil
}

// SoftDeleteObject flags the object row as deleted. The physical table is untouched.
func (r *MetadataRepository) SoftDeleteObject(ctx context.Context, apiName string) error {
	query := fmt.Sprintf("UPDATE %s SET is_deleted = 1, last_modified_date = ? WHERE api_name = ? AND is_deleted = 0", constants.TableObject)
	res, err := r.db.ExecContext(ctx, query, r.now(), apiName)
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", apiName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundError("object", apiName)
	}
	return nil
}

// SoftDeleteField flags the field row as deleted. The physical column is untouched.
func (r *MetadataRepository) SoftDeleteField(ctx context.Context, objectID, fieldAPIName string) error {
	query := fmt.Sprintf("UPDATE %s SET is_deleted = 1, last_modified_date = ? WHERE object_id = ? AND api_name = ? AND is_deleted = 0", constants.TableField)
	res, err := r.db.ExecContext(ctx, query, r.now(), objectID, fieldAPIName)
	if err != nil {
		return fmt.Errorf("failed to delete field %s: %w", fieldAPIName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFoundError("field", fieldAPIName)
	}
	return nil
}

// ListValidationRules returns every rule for the object, active or not.
func (r *MetadataRepository) ListValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error) {
	query := fmt.Sprintf("SELECT id, object_api_name, name, active, error_condition, error_message FROM %s WHERE object_api_name = ? ORDER BY name",
		constants.TableValidation)
	rows, err := r.db.QueryContext(ctx, query, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := make([]*models.ValidationRule, 0)
	for rows.Next() {
		var rule models.ValidationRule
		if err := rows.Scan(&rule.ID, &rule.ObjectAPIName, &rule.Name, &rule.Active, &rule.Condition, &rule.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan validation rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// SaveValidationRule upserts a validation rule by id.
func (r *MetadataRepository) SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s %s",
		constants.TableValidation, strings.Join(validationColumns, ", "), placeholders(len(validationColumns)),
		KeywordOnDuplicate, valuesUpdateClause([]string{"name", "active", "error_condition", "error_message", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.ObjectAPIName, rule.Name, rule.Active, rule.Condition, rule.ErrorMessage, now, now)
	if err != nil {
		return translateDuplicate(err, "validation rule", constants.FieldName, rule.Name)
	}
	return nil
}
