package bootstrap

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
)

var snakeCase = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// assertSchemaConsistency compares the registry with INFORMATION_SCHEMA:
// object to table, field to column, column types and lookup targets.
func assertSchemaConsistency(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	drift, err := sm.Metadata.CheckConsistency(ctx)
	if err != nil {
		return err
	}
	for _, v := range drift {
		result.add("SchemaDrift", constants.SeverityError, v.Object, v.Error())
	}
	return nil
}

// assertNamingConventions enforces snake_case for custom api names.
func assertNamingConventions(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	schemas, err := sm.Metadata.GetSchemas(ctx)
	if err != nil {
		return err
	}
	for _, obj := range schemas {
		if constants.IsSystemTable(obj.APIName) {
			continue
		}
		if !snakeCase.MatchString(obj.APIName) {
			result.add("NamingConvention", constants.SeverityWarning, obj.APIName,
				fmt.Sprintf("Object API name '%s' should be snake_case", obj.APIName))
		}
		for _, f := range obj.Fields {
			if !f.IsSystem && !snakeCase.MatchString(f.APIName) {
				result.add("NamingConvention", constants.SeverityWarning, obj.APIName,
					fmt.Sprintf("Custom field '%s' should be snake_case", f.APIName))
			}
		}
	}
	return nil
}

// assertFormulaValidity compiles every stored expression against the fields
// of its object: formula fields, validation rules and flow conditions.
func assertFormulaValidity(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	schemas, err := sm.Metadata.GetSchemas(ctx)
	if err != nil {
		return err
	}
	for _, obj := range schemas {
		sample := obj.FieldSample()
		for _, f := range obj.Fields {
			if f.Formula == nil || *f.Formula == "" {
				continue
			}
			if err := sm.Formula.Validate(*f.Formula, sample); err != nil {
				result.add("InvalidFormula", constants.SeverityError, obj.APIName,
					fmt.Sprintf("Field '%s' has invalid formula: %v", f.APIName, err))
			}
		}

		rules, err := sm.Metadata.GetValidationRules(ctx, obj.APIName)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			if err := sm.Formula.Validate(rule.Condition, sample); err != nil {
				result.add("InvalidFormula", constants.SeverityError, obj.APIName,
					fmt.Sprintf("Validation rule '%s' has invalid condition: %v", rule.Name, err))
			}
		}
	}

	flows, err := sm.Flows.ListFlows(ctx)
	if err != nil {
		return err
	}
	for _, flow := range flows {
		obj, err := sm.Metadata.GetSchema(ctx, flow.TriggerObject)
		if err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			result.add("OrphanedFlow", constants.SeverityWarning, flow.TriggerObject,
				fmt.Sprintf("Flow '%s' triggers on missing object '%s'", flow.Name, flow.TriggerObject))
			continue
		}
		sample := obj.FieldSample()
		conditions := [][2]string{{"trigger condition", flow.TriggerCondition}}
		for _, step := range flow.Steps {
			if step.EntryCondition != nil {
				conditions = append(conditions, [2]string{"step '" + step.ID + "' condition", *step.EntryCondition})
			}
		}
		for _, c := range conditions {
			if c[1] == "" {
				continue
			}
			if err := sm.Formula.Validate(c[1], sample); err != nil {
				result.add("InvalidFormula", constants.SeverityError, obj.APIName,
					fmt.Sprintf("Flow '%s' has invalid %s: %v", flow.Name, c[0], err))
			}
		}
	}
	return nil
}
