package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/expression"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== Sharing Rules ====================

// isUserInRoleOrBelow checks if the user's role matches the target role
// or is a child (subordinate) of the target role.
func (s *securitySnapshot) isUserInRoleOrBelow(userRoleID, targetRoleID string) bool {
	if userRoleID == "" || targetRoleID == "" {
		return false
	}
	return userRoleID == targetRoleID || s.roles.isAncestor(targetRoleID, userRoleID)
}

// ruleTargets reports whether the caller is a recipient of the rule.
func (s *securitySnapshot) ruleTargets(rule *models.SharingRule, caller *models.UserSession) bool {
	if rule.ShareWithRoleID != nil && s.isUserInRoleOrBelow(caller.Role(), *rule.ShareWithRoleID) {
		return true
	}
	return rule.ShareWithGroupID != nil && s.inGroup(*rule.ShareWithGroupID, caller.ID)
}

// accessLevelAllows reports whether a rule's access level covers the
// operation. Edit includes read; sharing never grants delete.
func accessLevelAllows(level constants.AccessLevel, operation string) bool {
	switch level {
	case constants.AccessLevelEdit:
		return operation == constants.PermRead || operation == constants.PermEdit
	case constants.AccessLevelRead:
		return operation == constants.PermRead
	}
	return false
}

// applicableRules returns the caller's rules on an object that cover operation.
func (s *securitySnapshot) applicableRules(caller *models.UserSession, objectAPIName, operation string) []*models.SharingRule {
	var out []*models.SharingRule
	for _, rule := range s.sharingRules[strings.ToLower(objectAPIName)] {
		if accessLevelAllows(rule.AccessLevel, operation) && s.ruleTargets(rule, caller) {
			out = append(out, rule)
		}
	}
	return out
}

// criteriaSQL compiles a rule's criteria to a parameterized condition over
// the object's stored columns. Empty criteria match every row.
func criteriaSQL(obj *models.ObjectMetadata, criteria string) (string, []interface{}, error) {
	if strings.TrimSpace(criteria) == "" {
		return models.PredicateOpenSQL, nil, nil
	}
	return expression.ToSQL(criteria, func(name string) bool {
		f := obj.GetField(name)
		return f != nil && f.Type != constants.FieldTypeFormula && f.Type != constants.FieldTypeRollupSummary
	})
}

// compiledRule is an applicable sharing rule with its criteria as SQL.
type compiledRule struct {
	rule *models.SharingRule
	sql  string
	args []interface{}
}

// compiledRules returns the caller's applicable rules whose criteria compile
// over the object's stored columns. A stored rule that no longer compiles,
// say after its field was deleted, grants nothing on the SQL and the
// in-memory path alike.
func (ps *PermissionService) compiledRules(s *securitySnapshot, caller *models.UserSession, obj *models.ObjectMetadata, operation string) []compiledRule {
	rules := s.applicableRules(caller, obj.APIName, operation)
	out := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		sql, args, err := criteriaSQL(obj, rule.Criteria)
		if err != nil {
			ps.logger.Warn("⚠️ Sharing rule criteria cannot be compiled to SQL, rule ignored",
				zap.String("rule", rule.Name), zap.String("object", obj.APIName), zap.Error(err))
			continue
		}
		out = append(out, compiledRule{rule: rule, sql: sql, args: args})
	}
	return out
}

// evaluateSharingCriteria evaluates a rule's criteria against an in-memory
// record. Unevaluable criteria never grant access.
func (ps *PermissionService) evaluateSharingCriteria(record models.SObject, criteria string) bool {
	if strings.TrimSpace(criteria) == "" {
		return true
	}
	ok, err := ps.formula.EvaluateBool(criteria, &formula.Context{Record: record})
	if err != nil {
		ps.logger.Warn("⚠️ Failed to evaluate sharing rule criteria", zap.String("criteria", criteria), zap.Error(err))
		return false
	}
	return ok
}

// danglingTarget describes a role or group reference that does not resolve,
// or returns "".
func danglingTarget(s *securitySnapshot, rule *models.SharingRule) string {
	switch {
	case rule.ShareWithRoleID != nil && !s.roles.has(*rule.ShareWithRoleID):
		return fmt.Sprintf("sharing rule '%s' references missing role '%s'", rule.Name, *rule.ShareWithRoleID)
	case rule.ShareWithGroupID != nil:
		if _, ok := s.groups[*rule.ShareWithGroupID]; !ok {
			return fmt.Sprintf("sharing rule '%s' references missing group '%s'", rule.Name, *rule.ShareWithGroupID)
		}
	}
	return ""
}
