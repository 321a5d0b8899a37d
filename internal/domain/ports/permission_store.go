package ports

import (
	"context"

	"github.com/nexuscrm/kernel/pkg/models"
)

// PermissionStore persists profiles, roles, groups, permissions and sharing rules.
type PermissionStore interface {
	LoadSecurityData(ctx context.Context) (*models.SecurityData, error)

	SaveProfile(ctx context.Context, profile *models.Profile) error
	SaveRole(ctx context.Context, role *models.Role) error
	SaveSharingRule(ctx context.Context, rule *models.SharingRule) error
	SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error
	SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error
}
