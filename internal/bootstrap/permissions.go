package bootstrap

import (
	"context"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

// defaultPermission returns the seeded permission of a profile on an object.
// system_admin gets everything. standard_user reads system tables and gets
// create, read and edit on business objects.
func defaultPermission(profileID string, obj *models.ObjectMetadata) *models.ObjectPermission {
	perm := &models.ObjectPermission{ProfileID: profileID, ObjectAPIName: obj.APIName, AllowRead: true}
	switch {
	case profileID == constants.ProfileSystemAdmin:
		perm.AllowCreate, perm.AllowEdit, perm.AllowDelete = true, true, true
		perm.ViewAll, perm.ModifyAll = true, true
	case !constants.IsSystemTable(obj.APIName):
		perm.AllowCreate, perm.AllowEdit = true, true
	}
	return perm
}

// InitializePermissions makes sure both seeded profiles hold a permission row
// for every registered object. Rows already present are left alone so that
// administrator edits survive restarts.
func InitializePermissions(ctx context.Context, sm *services.ServiceManager, logger *zap.Logger) error {
	logger.Info("🔧 Initializing permissions...")

	schemas, err := sm.Metadata.GetSchemas(ctx)
	if err != nil {
		return err
	}

	seeded := 0
	for _, profileID := range []string{constants.ProfileSystemAdmin, constants.ProfileStandardUser} {
		for _, obj := range schemas {
			has, err := sm.Permissions.HasObjectPermission(ctx, profileID, obj.APIName)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if err := sm.Permissions.SaveObjectPermission(ctx, defaultPermission(profileID, obj)); err != nil {
				logger.Warn("⚠️  Failed to seed permission",
					zap.String("profile_id", profileID), zap.String("object", obj.APIName), zap.Error(err))
				continue
			}
			seeded++
		}
	}

	logger.Info("✅ Permissions initialized", zap.Int("objects", len(schemas)), zap.Int("seeded", seeded))
	return nil
}
