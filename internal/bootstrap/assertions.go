package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
)

// AssertionViolation represents a single design violation
type AssertionViolation struct {
	Category    string `json:"category"` // e.g. "SystemFields", "DuplicateFlow"
	Severity    string `json:"severity"` // "error" or "warning"
	Object      string `json:"object,omitempty"`
	Description string `json:"description"`
}

// AssertionResult contains all violations found during assertion checks
type AssertionResult struct {
	Violations []AssertionViolation `json:"violations"`
	Passed     bool                 `json:"passed"`
}

func (r *AssertionResult) add(category, severity, object, description string) {
	r.Violations = append(r.Violations, AssertionViolation{
		Category:    category,
		Severity:    severity,
		Object:      object,
		Description: description,
	})
}

// Errors counts the violations of error severity.
func (r *AssertionResult) Errors() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == constants.SeverityError {
			n++
		}
	}
	return n
}

// assertion inspects the loaded services and records what it finds. A
// returned error means the check itself could not run.
type assertion struct {
	name  string
	check func(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error
}

var assertions = []assertion{
	{"critical tables", assertCriticalTablesExist},
	{"system fields", assertSystemFieldsConsistency},
	{"schema consistency", assertSchemaConsistency},
	{"naming conventions", assertNamingConventions},
	{"formula validity", assertFormulaValidity},
	{"sharing rules", assertNoOrphanedSharingRules},
	{"duplicate flows", assertNoDuplicateFlows},
	{"role hierarchy", assertRoleHierarchy},
	{"system admin profile", assertSystemAdminProfileExists},
}

// RunAssertions executes all design assertions and returns violations.
// By default violations are only logged. In strict mode any violation fails
// the run.
func RunAssertions(ctx context.Context, sm *services.ServiceManager, strict bool, logger *zap.Logger) (*AssertionResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("🔍 Running startup assertions...")

	result := &AssertionResult{Violations: []AssertionViolation{}, Passed: true}
	for _, a := range assertions {
		logger.Debug("📋 Checking " + a.name)
		if err := a.check(ctx, sm, result); err != nil {
			return result, fmt.Errorf("assertion '%s' could not run: %w", a.name, err)
		}
	}

	if len(result.Violations) == 0 {
		logger.Info("✅ All assertions passed")
		return result, nil
	}

	result.Passed = false
	logger.Warn("⚠️  Assertion violations found", zap.Int("count", len(result.Violations)), zap.Int("errors", result.Errors()))
	for _, v := range result.Violations {
		logger.Warn("⚠️  "+v.Description,
			zap.String("category", v.Category), zap.String("severity", v.Severity), zap.String("object", v.Object))
	}

	if strict {
		return result, fmt.Errorf("assertion failures in strict mode: %d violation(s)", len(result.Violations))
	}
	return result, nil
}

// assertCriticalTablesExist checks that every system table is registered.
func assertCriticalTablesExist(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	defs, err := SystemTableDefinitions()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := sm.Metadata.GetSchema(ctx, def.TableName); err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			result.add("CriticalTable", constants.SeverityError, def.TableName,
				fmt.Sprintf("System table '%s' is not registered", def.TableName))
		}
	}
	return nil
}

// assertSystemFieldsConsistency checks that every object declares its system
// fields in metadata.
func assertSystemFieldsConsistency(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	schemas, err := sm.Metadata.GetSchemas(ctx)
	if err != nil {
		return err
	}
	for _, obj := range schemas {
		required := constants.StandardSystemFields()
		if constants.IsSystemTable(obj.APIName) {
			required = constants.GetSystemFieldNames()
		}
		var missing []string
		for _, name := range required {
			if !obj.HasField(name) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			result.add("SystemFields", constants.SeverityError, obj.APIName,
				fmt.Sprintf("Object '%s' missing system fields in metadata: %s", obj.APIName, strings.Join(missing, ", ")))
		}
	}
	return nil
}

// assertNoOrphanedSharingRules checks that sharing rules point at live objects.
func assertNoOrphanedSharingRules(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	rules, err := sm.Permissions.SharingRules(ctx)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if _, err := sm.Metadata.GetSchema(ctx, rule.ObjectAPIName); err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			result.add("OrphanedSharingRule", constants.SeverityWarning, rule.ObjectAPIName,
				fmt.Sprintf("Sharing rule '%s' targets missing object '%s'", rule.Name, rule.ObjectAPIName))
		}
	}
	return nil
}

// assertNoDuplicateFlows checks that no two active flows share a trigger.
func assertNoDuplicateFlows(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	groups, err := sm.Flows.DuplicateActiveFlows(ctx)
	if err != nil {
		return err
	}
	for _, names := range groups {
		result.add("DuplicateFlow", constants.SeverityError, "",
			fmt.Sprintf("Active flows share the same trigger and condition: %s", strings.Join(names, ", ")))
	}
	return nil
}

// assertRoleHierarchy checks that stored parent links form a forest.
func assertRoleHierarchy(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	cycles, err := sm.Permissions.RoleCycles(ctx)
	if err != nil {
		return err
	}
	if len(cycles) > 0 {
		result.add("RoleCycle", constants.SeverityError, constants.TableRole,
			fmt.Sprintf("Role hierarchy contains a cycle through: %s", strings.Join(cycles, ", ")))
	}
	return nil
}

// assertSystemAdminProfileExists checks the super user profile is seeded.
func assertSystemAdminProfileExists(ctx context.Context, sm *services.ServiceManager, result *AssertionResult) error {
	ok, err := sm.Permissions.HasProfile(ctx, constants.ProfileSystemAdmin)
	if err != nil {
		return err
	}
	if !ok {
		result.add("MissingProfile", constants.SeverityError, constants.TableProfile,
			fmt.Sprintf("Profile '%s' does not exist", constants.ProfileSystemAdmin))
	}
	return nil
}
