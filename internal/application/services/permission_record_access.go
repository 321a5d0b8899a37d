package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== Record-Level Access Checks ====================

// rowBypass reports whether the object permission or sharing model opens
// every row for operation.
func rowBypass(perm *models.ObjectPermission, model constants.SharingModel, operation string) bool {
	switch operation {
	case constants.PermCreate:
		return true
	case constants.PermRead:
		return perm.Allows(constants.PermViewAll) ||
			model == constants.SharingModelPublicRead || model == constants.SharingModelPublicReadWrite
	case constants.PermEdit:
		return perm.Allows(constants.PermModifyAll) || model == constants.SharingModelPublicReadWrite
	case constants.PermDelete:
		return perm.Allows(constants.PermModifyAll)
	}
	return false
}

// RowPredicate returns the condition restricting the rows operation may
// touch. No access yields the closed predicate, never an error; errors are
// reserved for load failures and malformed synthesized SQL.
func (ps *PermissionService) RowPredicate(ctx context.Context, caller *models.UserSession, objectAPIName, operation string) (models.Predicate, error) {
	if caller == nil {
		return models.ClosedPredicate(), nil
	}
	if caller.IsSuperUser() {
		return models.OpenPredicate(), nil
	}
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return models.ClosedPredicate(), err
	}
	snap, err := ps.current(ctx)
	if err != nil {
		return models.ClosedPredicate(), err
	}

	perm := snap.objectPerm(caller.ProfileID, obj.APIName)
	if !perm.Allows(operation) {
		return models.ClosedPredicate(), nil
	}
	if rowBypass(perm, obj.SharingModel, operation) {
		return models.OpenPredicate(), nil
	}

	owner := schema.QuoteIdent(constants.FieldOwnerID)
	parts := []string{owner + " = ?"}
	args := []interface{}{caller.ID}

	if subs := snap.subordinateUsers(caller.Role()); len(subs) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", owner, strings.TrimSuffix(strings.Repeat("?, ", len(subs)), ", ")))
		for _, u := range subs {
			args = append(args, u)
		}
	}

	for _, cr := range ps.compiledRules(snap, caller, obj, operation) {
		if cr.sql == models.PredicateOpenSQL {
			return models.OpenPredicate(), nil
		}
		parts = append(parts, "("+cr.sql+")")
		args = append(args, cr.args...)
	}

	pred := models.Predicate{SQL: strings.Join(parts, " OR "), Args: args}
	if err := ps.validator.ValidatePredicate(obj.APIName, pred); err != nil {
		return models.ClosedPredicate(), err
	}
	return pred, nil
}

// CanAccessRecord is the in-memory counterpart of RowPredicate for a record
// already loaded.
func (ps *PermissionService) CanAccessRecord(ctx context.Context, caller *models.UserSession, objectAPIName string, record models.SObject, operation string) bool {
	if caller == nil {
		return false
	}
	if caller.IsSuperUser() {
		return true
	}
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return false
	}
	snap, err := ps.current(ctx)
	if err != nil {
		ps.logger.Error("❌ Record access check failed", zap.String("object", objectAPIName), zap.Error(err))
		return false
	}

	perm := snap.objectPerm(caller.ProfileID, obj.APIName)
	if !perm.Allows(operation) {
		return false
	}
	if rowBypass(perm, obj.SharingModel, operation) {
		return true
	}

	ownerID := record.GetString(constants.FieldOwnerID)
	if ownerID != "" {
		if ownerID == caller.ID {
			return true
		}
		if ownerRole, ok := snap.userRoles[ownerID]; ok && caller.Role() != "" && snap.roles.isAncestor(caller.Role(), ownerRole) {
			return true
		}
	}

	for _, cr := range ps.compiledRules(snap, caller, obj, operation) {
		if ps.evaluateSharingCriteria(record, cr.rule.Criteria) {
			return true
		}
	}
	return false
}
