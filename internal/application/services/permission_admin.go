package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// ==================== Security Administration ====================

// SaveProfile upserts a profile. Profile ids are chosen by the caller since
// sessions carry them verbatim.
func (ps *PermissionService) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return errors.NewValidationError(constants.FieldID, "profile id is required")
	}
	if strings.TrimSpace(profile.Name) == "" {
		return errors.NewValidationError(constants.FieldName, "profile name is required")
	}
	if err := ps.store.SaveProfile(ctx, profile); err != nil {
		return err
	}
	ps.logger.Info("🪪 Profile saved", zap.String("profile_id", profile.ID))
	return ps.Refresh(ctx)
}

// HasProfile reports whether a profile with the given id is loaded.
func (ps *PermissionService) HasProfile(ctx context.Context, id string) (bool, error) {
	snap, err := ps.current(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.profiles[id]
	return ok, nil
}

// HasObjectPermission reports whether a permission row exists for the
// profile on the object.
func (ps *PermissionService) HasObjectPermission(ctx context.Context, profileID, objectAPIName string) (bool, error) {
	snap, err := ps.current(ctx)
	if err != nil {
		return false, err
	}
	return snap.objectPerm(profileID, objectAPIName) != nil, nil
}

// SaveRole upserts a role. A parent that would close a loop in the hierarchy
// is rejected.
func (ps *PermissionService) SaveRole(ctx context.Context, role *models.Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return errors.NewValidationError(constants.FieldName, "role name is required")
	}

	// The hierarchy check and the save must see the same hierarchy.
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	snap := ps.snapshot.Load()
	if snap == nil {
		if err := ps.reload(ctx); err != nil {
			return err
		}
		snap = ps.snapshot.Load()
	}
	if role.ID == "" {
		role.ID = utils.GenerateID()
	}
	if role.ParentRoleID != nil {
		parent := *role.ParentRoleID
		if !snap.roles.has(parent) {
			return errors.NewValidationError(constants.FieldParentRoleID, "parent role '"+parent+"' does not exist")
		}
		if snap.roles.wouldCycle(role.ID, parent) {
			return errors.NewValidationError(constants.FieldParentRoleID, "role hierarchy would contain a cycle")
		}
	}

	if err := ps.store.SaveRole(ctx, role); err != nil {
		return err
	}
	ps.logger.Info("👥 Role saved", zap.String("role_id", role.ID), zap.String("name", role.Name))
	return ps.reload(ctx)
}

// SaveSharingRule validates and upserts a sharing rule.
func (ps *PermissionService) SaveSharingRule(ctx context.Context, rule *models.SharingRule) error {
	obj, err := ps.metadata.lookup(ctx, rule.ObjectAPIName)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rule.Name) == "" {
		return errors.NewValidationError(constants.FieldName, "sharing rule name is required")
	}
	if rule.AccessLevel != constants.AccessLevelRead && rule.AccessLevel != constants.AccessLevelEdit {
		return errors.NewValidationError("access_level", "access level must be Read or Edit")
	}
	if (rule.ShareWithRoleID == nil) == (rule.ShareWithGroupID == nil) {
		return errors.NewValidationError(constants.FieldShareWith, "a sharing rule targets exactly one role or group")
	}
	snap, err := ps.current(ctx)
	if err != nil {
		return err
	}
	if msg := danglingTarget(snap, rule); msg != "" {
		return errors.NewSchemaIntegrityError(obj.APIName, msg)
	}
	if strings.TrimSpace(rule.Criteria) != "" {
		if err := ps.formula.Validate(rule.Criteria, obj.FieldSample()); err != nil {
			return err
		}
		if _, _, err := criteriaSQL(obj, rule.Criteria); err != nil {
			return errors.NewValidationError(constants.FieldCriteria, err.Error())
		}
	}
	rule.ObjectAPIName = obj.APIName
	if rule.ID == "" {
		rule.ID = utils.GenerateID()
	}

	if err := ps.store.SaveSharingRule(ctx, rule); err != nil {
		return err
	}
	ps.logger.Info("🤝 Sharing rule saved", zap.String("object", obj.APIName), zap.String("rule", rule.Name))
	return ps.Refresh(ctx)
}

// SaveObjectPermission upserts a profile's permission on an object.
func (ps *PermissionService) SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error {
	obj, err := ps.metadata.lookup(ctx, perm.ObjectAPIName)
	if err != nil {
		return err
	}
	if perm.ProfileID == "" {
		return errors.NewValidationError(constants.FieldProfileID, "profile is required")
	}
	perm.ObjectAPIName = obj.APIName
	if err := ps.store.SaveObjectPermission(ctx, perm); err != nil {
		return err
	}
	return ps.Refresh(ctx)
}

// SaveFieldPermission upserts a profile's permission on a field.
func (ps *PermissionService) SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error {
	obj, err := ps.metadata.lookup(ctx, perm.ObjectAPIName)
	if err != nil {
		return err
	}
	if perm.ProfileID == "" {
		return errors.NewValidationError(constants.FieldProfileID, "profile is required")
	}
	if !obj.HasField(perm.FieldAPIName) {
		return errors.NewNotFoundError("field", obj.APIName+"."+perm.FieldAPIName)
	}
	perm.ObjectAPIName = obj.APIName
	if err := ps.store.SaveFieldPermission(ctx, perm); err != nil {
		return err
	}
	return ps.Refresh(ctx)
}
