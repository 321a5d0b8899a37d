package services

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// apiNamePattern is the naming rule for business objects and fields.
var apiNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const maxAPINameLength = 64

var titleCaser = cases.Title(language.English)

// LabelFromAPIName turns "sales_order" into "Sales Order".
func LabelFromAPIName(apiName string) string {
	return titleCaser.String(strings.ReplaceAll(apiName, "_", " "))
}

func validateAPIName(kind, name string) error {
	if name == "" {
		return errors.NewValidationError(constants.FieldAPIName, fmt.Sprintf("%s api_name is required", kind))
	}
	if len(name) > maxAPINameLength {
		return errors.NewValidationError(constants.FieldAPIName, fmt.Sprintf("%s api_name '%s' is longer than %d characters", kind, name, maxAPINameLength))
	}
	if constants.IsSystemTable(name) {
		return errors.NewValidationError(constants.FieldAPIName, fmt.Sprintf("%s api_name '%s' uses the reserved system prefix", kind, name))
	}
	if !apiNamePattern.MatchString(name) {
		return errors.NewValidationError(constants.FieldAPIName,
			fmt.Sprintf("%s api_name '%s' must be snake_case (lowercase, alphanumeric, underscores)", kind, name))
	}
	return nil
}

// targetResolver reports whether a lookup target exists.
type targetResolver func(apiName string) bool

// prepareField validates a client-declared field and fills defaults. obj is
// the owning object as known so far; it is used for formula references and
// duplicate detection.
func (ms *MetadataService) prepareField(obj *models.ObjectMetadata, field *models.FieldMetadata, targets targetResolver) error {
	field.APIName = strings.TrimSpace(field.APIName)
	if err := validateAPIName("field", field.APIName); err != nil {
		return err
	}
	if constants.IsSystemField(field.APIName) {
		return errors.NewValidationError(field.APIName, "field name is reserved for a system field")
	}
	if strings.HasSuffix(field.APIName, constants.PolymorphicTypeSuffix) && obj.HasField(strings.TrimSuffix(field.APIName, constants.PolymorphicTypeSuffix)) {
		return errors.NewValidationError(field.APIName, "field name collides with a polymorphic lookup discriminator")
	}
	if obj.HasField(field.APIName) {
		return errors.NewValidationError(field.APIName, fmt.Sprintf("duplicate field '%s' on %s", field.APIName, obj.APIName))
	}
	if !fieldtypes.IsKnown(field.Type) {
		return errors.NewValidationError(constants.FieldMetaType, fmt.Sprintf("unknown field type '%s' for field '%s'", field.Type, field.APIName))
	}
	if field.Label == "" {
		field.Label = LabelFromAPIName(field.APIName)
	}
	field.IsSystem = false
	field.IsDeleted = false

	switch field.Type {
	case constants.FieldTypePicklist:
		if len(field.Options) == 0 {
			return errors.NewValidationError(constants.FieldOptions, fmt.Sprintf("picklist field '%s' needs at least one option", field.APIName))
		}
	case constants.FieldTypeLookup:
		if len(field.ReferenceTo) == 0 {
			return errors.NewValidationError(constants.FieldReferenceTo, fmt.Sprintf("lookup field '%s' needs a target object", field.APIName))
		}
		for _, target := range field.ReferenceTo {
			if !targets(target) {
				return errors.NewValidationError(constants.FieldReferenceTo,
					fmt.Sprintf("lookup field '%s' references unknown object '%s'", field.APIName, target))
			}
		}
		if field.DeleteRule == nil {
			rule := constants.DeleteRuleSetNull
			field.DeleteRule = &rule
		}
	case constants.FieldTypeFormula:
		if field.Formula == nil || strings.TrimSpace(*field.Formula) == "" {
			return errors.NewValidationError(constants.FieldFormula, fmt.Sprintf("formula field '%s' needs an expression", field.APIName))
		}
		if err := ms.formula.Validate(*field.Formula, obj.FieldSample()); err != nil {
			return err
		}
	}
	if field.Type != constants.FieldTypeLookup && len(field.ReferenceTo) > 0 {
		return errors.NewValidationError(constants.FieldReferenceTo, fmt.Sprintf("field '%s' is not a lookup", field.APIName))
	}
	if field.IsNameField && field.Type != constants.FieldTypeText {
		return errors.NewValidationError(field.APIName, "the name field must be a Text field")
	}
	if field.DefaultValue != nil {
		if err := fieldtypes.Validate(field.Type, *field.DefaultValue, fieldOptions(field)); err != nil {
			return errors.NewValidationError(field.APIName, fmt.Sprintf("invalid default value: %v", err))
		}
	}
	return nil
}

// fieldOptions returns the value validator settings of a field.
func fieldOptions(field *models.FieldMetadata) fieldtypes.Options {
	return fieldtypes.Options{MaxLength: field.MaxLen(), Picklist: field.Options}
}

// prepareObject validates a client-declared object and returns the complete
// definition to register: ids assigned, exactly one name field, system fields
// appended. def is not modified.
func (ms *MetadataService) prepareObject(def *models.ObjectMetadata, targets targetResolver) (*models.ObjectMetadata, error) {
	if def == nil {
		return nil, errors.NewValidationError("", "object definition is required")
	}
	obj := def.Clone()
	obj.APIName = strings.TrimSpace(obj.APIName)
	if err := validateAPIName("object", obj.APIName); err != nil {
		return nil, err
	}

	if obj.Label == "" {
		obj.Label = LabelFromAPIName(obj.APIName)
	}
	if obj.PluralLabel == "" {
		obj.PluralLabel = obj.Label + "s"
	}
	if obj.SharingModel == "" {
		obj.SharingModel = constants.SharingModelPrivate
	}
	if !constants.IsValidSharingModel(obj.SharingModel) {
		return nil, errors.NewValidationError("sharing_model", fmt.Sprintf("unknown sharing model '%s'", obj.SharingModel))
	}
	if obj.TableType == "" {
		obj.TableType = constants.TableTypeCustomObject
	}
	obj.IsCustom = true
	obj.IsDeleted = false
	obj.ID = constants.PrefixObject + utils.GenerateID()

	// Lookups may point at the object itself.
	self := func(name string) bool { return name == obj.APIName || targets(name) }

	declared := obj.Fields
	obj.Fields = make([]models.FieldMetadata, 0, len(declared)+8)
	nameFields := 0
	for i := range declared {
		field := declared[i]
		if err := ms.prepareField(obj, &field, self); err != nil {
			return nil, err
		}
		if field.IsNameField {
			nameFields++
		}
		obj.Fields = append(obj.Fields, field)
	}

	switch {
	case nameFields > 1:
		return nil, errors.NewValidationError(constants.FieldName, "an object has exactly one name field")
	case nameFields == 0:
		if existing := obj.GetField(constants.FieldName); existing != nil {
			if existing.Type != constants.FieldTypeText {
				return nil, errors.NewValidationError(constants.FieldName, "the name field must be a Text field")
			}
			existing.IsNameField = true
			existing.Required = true
		} else {
			obj.Fields = append([]models.FieldMetadata{{
				APIName:     constants.FieldName,
				Label:       "Name",
				Type:        constants.FieldTypeText,
				Required:    true,
				IsNameField: true,
			}}, obj.Fields...)
		}
	}

	obj.Fields = append(obj.Fields, SystemFieldMetadata()...)
	for i := range obj.Fields {
		obj.Fields[i].ID = constants.PrefixField + utils.GenerateID()
		obj.Fields[i].ObjectID = obj.ID
	}
	return obj, nil
}
