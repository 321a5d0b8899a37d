package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// PermissionRepository handles database operations for permissions
type PermissionRepository struct {
	db     *database.TiDBConnection
	logger *zap.Logger
	now    func() time.Time
}

// NewPermissionRepository creates a new PermissionRepository
func NewPermissionRepository(db *database.TiDBConnection, logger *zap.Logger) *PermissionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionRepository{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// LoadSecurityData loads profiles, roles, user roles, permissions, sharing
// rules and groups in one pass.
func (r *PermissionRepository) LoadSecurityData(ctx context.Context) (*models.SecurityData, error) {
	data := &models.SecurityData{}

	loaders := []struct {
		name  string
		query string
		scan  func(Scannable) error
	}{
		{"profiles", fmt.Sprintf("SELECT id, name, description, is_active, is_system FROM %s", constants.TableProfile),
			func(row Scannable) error {
				var p models.Profile
				var desc sql.NullString
				if err := row.Scan(&p.ID, &p.Name, &desc, &p.IsActive, &p.IsSystem); err != nil {
					return err
				}
				p.Description = nullString(desc)
				data.Profiles = append(data.Profiles, p)
				return nil
			}},
		{"roles", fmt.Sprintf("SELECT id, name, parent_role_id FROM %s", constants.TableRole),
			func(row Scannable) error {
				var role models.Role
				var parent sql.NullString
				if err := row.Scan(&role.ID, &role.Name, &parent); err != nil {
					return err
				}
				role.ParentRoleID = nullString(parent)
				data.Roles = append(data.Roles, role)
				return nil
			}},
		{"user roles", fmt.Sprintf("SELECT id, role_id FROM %s", constants.TableUser),
			func(row Scannable) error {
				var ur models.UserRole
				var roleID sql.NullString
				if err := row.Scan(&ur.UserID, &roleID); err != nil {
					return err
				}
				ur.RoleID = nullString(roleID)
				data.UserRoles = append(data.UserRoles, ur)
				return nil
			}},
		{"object permissions", fmt.Sprintf("SELECT profile_id, object_api_name, allow_read, allow_create, allow_edit, allow_delete, view_all, modify_all FROM %s", constants.TableObjectPerms),
			func(row Scannable) error {
				var p models.ObjectPermission
				if err := row.Scan(&p.ProfileID, &p.ObjectAPIName, &p.AllowRead, &p.AllowCreate, &p.AllowEdit, &p.AllowDelete, &p.ViewAll, &p.ModifyAll); err != nil {
					return err
				}
				data.ObjectPerms = append(data.ObjectPerms, p)
				return nil
			}},
		{"field permissions", fmt.Sprintf("SELECT profile_id, object_api_name, field_api_name, readable, editable FROM %s", constants.TableFieldPerms),
			func(row Scannable) error {
				var p models.FieldPermission
				if err := row.Scan(&p.ProfileID, &p.ObjectAPIName, &p.FieldAPIName, &p.Readable, &p.Editable); err != nil {
					return err
				}
				data.FieldPerms = append(data.FieldPerms, p)
				return nil
			}},
		{"sharing rules", fmt.Sprintf("SELECT id, object_api_name, name, criteria, access_level, share_with_role_id, share_with_group_id FROM %s ORDER BY name", constants.TableSharingRule),
			func(row Scannable) error {
				var rule models.SharingRule
				var level string
				var roleID, groupID sql.NullString
				if err := row.Scan(&rule.ID, &rule.ObjectAPIName, &rule.Name, &rule.Criteria, &level, &roleID, &groupID); err != nil {
					return err
				}
				rule.AccessLevel = constants.AccessLevel(level)
				rule.ShareWithRoleID = nullString(roleID)
				rule.ShareWithGroupID = nullString(groupID)
				data.SharingRules = append(data.SharingRules, rule)
				return nil
			}},
		{"groups", fmt.Sprintf("SELECT id, name, label FROM %s", constants.TableGroup),
			func(row Scannable) error {
				var g models.Group
				if err := row.Scan(&g.ID, &g.Name, &g.Label); err != nil {
					return err
				}
				data.Groups = append(data.Groups, g)
				return nil
			}},
		{"group members", fmt.Sprintf("SELECT id, group_id, user_id FROM %s", constants.TableGroupMember),
			func(row Scannable) error {
				var m models.GroupMember
				if err := row.Scan(&m.ID, &m.GroupID, &m.UserID); err != nil {
					return err
				}
				data.GroupMembers = append(data.GroupMembers, m)
				return nil
			}},
	}

	for _, l := range loaders {
		if err := r.queryEach(ctx, l.query, l.scan); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.name, err)
		}
	}

	r.logger.Debug("🔐 Security data loaded",
		zap.Int("roles", len(data.Roles)),
		zap.Int("object_perms", len(data.ObjectPerms)),
		zap.Int("sharing_rules", len(data.SharingRules)))
	return data, nil
}

func (r *PermissionRepository) queryEach(ctx context.Context, query string, scan func(Scannable) error) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveProfile upserts a profile by id.
func (r *PermissionRepository) SaveProfile(ctx context.Context, profile *models.Profile) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (id, name, description, is_active, is_system, created_date, last_modified_date) VALUES (%s) %s %s",
		constants.TableProfile, placeholders(7), KeywordOnDuplicate,
		valuesUpdateClause([]string{"name", "description", "is_active", "is_system", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query, profile.ID, profile.Name, profile.Description, profile.IsActive, profile.IsSystem, now, now)
	if err != nil {
		return translateDuplicate(err, "profile", constants.FieldName, profile.Name)
	}
	return nil
}

// SaveRole upserts a role by id.
func (r *PermissionRepository) SaveRole(ctx context.Context, role *models.Role) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (id, name, parent_role_id, created_date, last_modified_date) VALUES (?, ?, ?, ?, ?) %s %s",
		constants.TableRole, KeywordOnDuplicate, valuesUpdateClause([]string{"name", "parent_role_id", "last_modified_date"}))
	if _, err := r.db.ExecContext(ctx, query, role.ID, role.Name, role.ParentRoleID, now, now); err != nil {
		return translateDuplicate(err, "role", constants.FieldName, role.Name)
	}
	return nil
}

// SaveSharingRule upserts a sharing rule by id.
func (r *PermissionRepository) SaveSharingRule(ctx context.Context, rule *models.SharingRule) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (id, object_api_name, name, criteria, access_level, share_with_role_id, share_with_group_id, created_date, last_modified_date) VALUES (%s) %s %s",
		constants.TableSharingRule, placeholders(9), KeywordOnDuplicate,
		valuesUpdateClause([]string{"name", "criteria", "access_level", "share_with_role_id", "share_with_group_id", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query, rule.ID, rule.ObjectAPIName, rule.Name, rule.Criteria, string(rule.AccessLevel),
		rule.ShareWithRoleID, rule.ShareWithGroupID, now, now)
	if err != nil {
		return translateDuplicate(err, "sharing rule", constants.FieldName, rule.Name)
	}
	return nil
}

// SaveObjectPermission upserts on (profile_id, object_api_name).
func (r *PermissionRepository) SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (id, profile_id, object_api_name, allow_read, allow_create, allow_edit, allow_delete, view_all, modify_all, created_date, last_modified_date) VALUES (%s) %s %s",
		constants.TableObjectPerms, placeholders(11), KeywordOnDuplicate,
		valuesUpdateClause([]string{"allow_read", "allow_create", "allow_edit", "allow_delete", "view_all", "modify_all", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query, utils.StableID(perm.ProfileID, perm.ObjectAPIName), perm.ProfileID, perm.ObjectAPIName,
		perm.AllowRead, perm.AllowCreate, perm.AllowEdit, perm.AllowDelete, perm.ViewAll, perm.ModifyAll, now, now)
	if err != nil {
		return fmt.Errorf("failed to save object permission: %w", err)
	}
	return nil
}

// SaveFieldPermission upserts on (profile_id, object_api_name, field_api_name).
func (r *PermissionRepository) SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (id, profile_id, object_api_name, field_api_name, readable, editable, created_date, last_modified_date) VALUES (%s) %s %s",
		constants.TableFieldPerms, placeholders(8), KeywordOnDuplicate,
		valuesUpdateClause([]string{"readable", "editable", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query, utils.StableID(perm.ProfileID, perm.ObjectAPIName, perm.FieldAPIName), perm.ProfileID,
		perm.ObjectAPIName, perm.FieldAPIName, perm.Readable, perm.Editable, now, now)
	if err != nil {
		return fmt.Errorf("failed to save field permission: %w", err)
	}
	return nil
}
