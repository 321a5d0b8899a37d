package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// ValidationService handles record validation logic
type ValidationService struct {
	formula *formula.Engine
	logger  *zap.Logger
}

// NewValidationService creates a new ValidationService
func NewValidationService(engine *formula.Engine, logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{formula: engine, logger: logger}
}

// ValidateValues checks every present value against its field type. Keys are
// visited in sorted order so the first reported field is stable.
func (vs *ValidationService) ValidateValues(schema *models.ObjectMetadata, record models.SObject) error {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field := schema.GetField(key)
		if field == nil {
			continue
		}
		if err := fieldtypes.Validate(field.Type, record[key], fieldOptions(field)); err != nil {
			return errors.NewValidationError(field.APIName, err.Error())
		}
	}
	return nil
}

// EvaluateRules runs the active validation rules against the merged record.
// A rule whose condition is TRUE marks the record invalid. old is nil on
// insert.
func (vs *ValidationService) EvaluateRules(
	schema *models.ObjectMetadata,
	record models.SObject,
	old models.SObject,
	user *models.UserSession,
	rules []*models.ValidationRule,
) error {
	if len(rules) == 0 {
		return nil
	}
	fctx := &formula.Context{
		Record: record,
		Prior:  old,
		User:   user.ToMap(),
		IsNew:  old == nil,
		Known:  schema.HasField,
	}

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		invalid, err := vs.formula.EvaluateBool(rule.Condition, fctx)
		if err != nil {
			vs.logger.Warn("⚠️ Validation rule could not be evaluated",
				zap.String("object", schema.APIName),
				zap.String("rule", rule.Name),
				zap.Error(err))
			return err
		}
		if invalid {
			return errors.NewValidationError(rule.Name, rule.ErrorMessage)
		}
	}
	return nil
}

// Normalize converts values to their storage form and enforces required
// fields. On insert every required field must be present and non-blank; on
// update only fields present in the payload are checked.
func (vs *ValidationService) Normalize(schema *models.ObjectMetadata, record models.SObject, isNew bool) error {
	for i := range schema.Fields {
		field := &schema.Fields[i]
		if field.IsSystem || fieldtypes.IsVirtual(field.Type) {
			continue
		}
		val, present := record[field.APIName]
		if field.Required && (isNew || present) && isBlank(val) {
			return errors.NewValidationError(field.APIName, "is required")
		}
		if !present || val == nil {
			continue
		}
		out, err := fieldtypes.Transform(field.Type, val)
		if err != nil {
			return errors.NewValidationError(field.APIName, err.Error())
		}
		record[field.APIName] = out
	}
	return nil
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ApplyDefaults fills absent fields that declare a default value.
func (vs *ValidationService) ApplyDefaults(schema *models.ObjectMetadata, record models.SObject) {
	for i := range schema.Fields {
		field := &schema.Fields[i]
		if field.DefaultValue == nil || field.IsSystem {
			continue
		}
		if _, ok := record[field.APIName]; ok {
			continue
		}
		if field.Type == constants.FieldTypeBoolean {
			record[field.APIName] = utils.ToBool(*field.DefaultValue)
			continue
		}
		record[field.APIName] = *field.DefaultValue
	}
}

// GetValidationRules returns the rules of an object. System objects never
// carry custom rules.
func (ms *MetadataService) GetValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error) {
	if constants.IsSystemTable(objectAPIName) {
		return nil, nil
	}
	rules, err := ms.store.ListValidationRules(ctx, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation rules for %s: %w", objectAPIName, err)
	}
	return rules, nil
}

// SaveValidationRule validates the condition against the object's fields and
// persists the rule.
func (ms *MetadataService) SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	obj, err := ms.lookup(ctx, rule.ObjectAPIName)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rule.Name) == "" {
		return errors.NewValidationError(constants.FieldName, "validation rule name is required")
	}
	if strings.TrimSpace(rule.ErrorMessage) == "" {
		return errors.NewValidationError("error_message", "validation rule error message is required")
	}
	if err := ms.formula.Validate(rule.Condition, obj.FieldSample()); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = utils.GenerateID()
	}
	return ms.store.SaveValidationRule(ctx, rule)
}
