package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

// securitySnapshot is an immutable, indexed view of everything the permission
// engine reads. Object keys are lowercase api names.
type securitySnapshot struct {
	profiles     map[string]models.Profile
	objectPerms  map[string]map[string]*models.ObjectPermission
	fieldPerms   map[string]map[string]map[string]*models.FieldPermission
	roles        *roleArena
	userRoles    map[string]string
	roleUsers    map[string][]string
	groups       map[string]models.Group
	groupMembers map[string]mapset.Set[string]
	sharingRules map[string][]*models.SharingRule
}

func newSecuritySnapshot(data *models.SecurityData) *securitySnapshot {
	s := &securitySnapshot{
		profiles:     make(map[string]models.Profile, len(data.Profiles)),
		objectPerms:  make(map[string]map[string]*models.ObjectPermission),
		fieldPerms:   make(map[string]map[string]map[string]*models.FieldPermission),
		roles:        newRoleArena(data.Roles),
		userRoles:    make(map[string]string, len(data.UserRoles)),
		roleUsers:    make(map[string][]string),
		groups:       make(map[string]models.Group, len(data.Groups)),
		groupMembers: make(map[string]mapset.Set[string]),
		sharingRules: make(map[string][]*models.SharingRule),
	}
	for _, p := range data.Profiles {
		s.profiles[p.ID] = p
	}
	for i := range data.ObjectPerms {
		p := &data.ObjectPerms[i]
		byObject, ok := s.objectPerms[p.ProfileID]
		if !ok {
			byObject = make(map[string]*models.ObjectPermission)
			s.objectPerms[p.ProfileID] = byObject
		}
		byObject[strings.ToLower(p.ObjectAPIName)] = p
	}
	for i := range data.FieldPerms {
		p := &data.FieldPerms[i]
		byObject, ok := s.fieldPerms[p.ProfileID]
		if !ok {
			byObject = make(map[string]map[string]*models.FieldPermission)
			s.fieldPerms[p.ProfileID] = byObject
		}
		obj := strings.ToLower(p.ObjectAPIName)
		if byObject[obj] == nil {
			byObject[obj] = make(map[string]*models.FieldPermission)
		}
		byObject[obj][p.FieldAPIName] = p
	}
	for _, ur := range data.UserRoles {
		if ur.RoleID == nil || *ur.RoleID == "" {
			continue
		}
		s.userRoles[ur.UserID] = *ur.RoleID
		s.roleUsers[*ur.RoleID] = append(s.roleUsers[*ur.RoleID], ur.UserID)
	}
	for _, users := range s.roleUsers {
		sort.Strings(users)
	}
	for _, g := range data.Groups {
		s.groups[g.ID] = g
	}
	for _, m := range data.GroupMembers {
		members, ok := s.groupMembers[m.GroupID]
		if !ok {
			members = mapset.NewThreadUnsafeSet[string]()
			s.groupMembers[m.GroupID] = members
		}
		members.Add(m.UserID)
	}
	for i := range data.SharingRules {
		r := &data.SharingRules[i]
		key := strings.ToLower(r.ObjectAPIName)
		s.sharingRules[key] = append(s.sharingRules[key], r)
	}
	for _, rules := range s.sharingRules {
		sort.Slice(rules, func(i, j int) bool {
			if rules[i].Name != rules[j].Name {
				return rules[i].Name < rules[j].Name
			}
			return rules[i].ID < rules[j].ID
		})
	}
	return s
}

func (s *securitySnapshot) objectPerm(profileID, objectAPIName string) *models.ObjectPermission {
	return s.objectPerms[profileID][strings.ToLower(objectAPIName)]
}

func (s *securitySnapshot) fieldPerm(profileID, objectAPIName, fieldAPIName string) *models.FieldPermission {
	return s.fieldPerms[profileID][strings.ToLower(objectAPIName)][fieldAPIName]
}

// subordinateUsers returns the users whose role sits strictly below roleID.
func (s *securitySnapshot) subordinateUsers(roleID string) []string {
	if roleID == "" {
		return nil
	}
	var users []string
	for _, r := range s.roles.descendants(roleID) {
		users = append(users, s.roleUsers[r]...)
	}
	sort.Strings(users)
	return users
}

func (s *securitySnapshot) inGroup(groupID, userID string) bool {
	members, ok := s.groupMembers[groupID]
	return ok && members.Contains(userID)
}

// PermissionService evaluates object, field and row access.
//
// Permission evaluation order:
//  1. SuperUser check (system_admin profile bypasses all checks)
//  2. Object-level permissions from _System_ObjectPerms
//  3. view_all / modify_all and the public sharing models
//  4. Ownership and role hierarchy
//  5. Sharing rules
//  6. Field-level permissions from _System_FieldPerms
type PermissionService struct {
	store     ports.PermissionStore
	metadata  *MetadataService
	formula   *formula.Engine
	validator *DDLValidator
	logger    *zap.Logger

	snapshot atomic.Pointer[securitySnapshot]
	writeMu  sync.Mutex
}

// NewPermissionService creates a new PermissionService
func NewPermissionService(store ports.PermissionStore, metadata *MetadataService, engine *formula.Engine, validator *DDLValidator, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewDDLValidator()
	}
	if engine == nil {
		engine = formula.NewEngine(formula.WithLogger(logger))
	}
	return &PermissionService{
		store:     store,
		metadata:  metadata,
		formula:   engine,
		validator: validator,
		logger:    logger,
	}
}

// Refresh reloads security data and publishes a new snapshot.
func (ps *PermissionService) Refresh(ctx context.Context) error {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	return ps.reload(ctx)
}

// reload loads and publishes a new snapshot. The caller holds writeMu.
func (ps *PermissionService) reload(ctx context.Context) error {
	data, err := ps.store.LoadSecurityData(ctx)
	if err != nil {
		return errors.NewInternalError("failed to load security data", err)
	}
	ps.snapshot.Store(newSecuritySnapshot(data))
	ps.logger.Debug("🔐 Security snapshot refreshed",
		zap.Int("roles", len(data.Roles)),
		zap.Int("object_perms", len(data.ObjectPerms)),
		zap.Int("sharing_rules", len(data.SharingRules)))
	return nil
}

func (ps *PermissionService) current(ctx context.Context) (*securitySnapshot, error) {
	if snap := ps.snapshot.Load(); snap != nil {
		return snap, nil
	}
	if err := ps.Refresh(ctx); err != nil {
		return nil, err
	}
	return ps.snapshot.Load(), nil
}

// CanPerform reports whether the caller's profile grants operation on the
// object. Load failures deny.
func (ps *PermissionService) CanPerform(ctx context.Context, caller *models.UserSession, objectAPIName, operation string) bool {
	if caller == nil {
		return false
	}
	if caller.IsSuperUser() {
		return true
	}
	snap, err := ps.current(ctx)
	if err != nil {
		ps.logger.Error("❌ Permission check failed", zap.String("object", objectAPIName), zap.Error(err))
		return false
	}
	return snap.objectPerm(caller.ProfileID, objectAPIName).Allows(operation)
}

// VisibleFields returns the fields the caller may read. Without object read
// permission the set is empty.
func (ps *PermissionService) VisibleFields(ctx context.Context, caller *models.UserSession, objectAPIName string) mapset.Set[string] {
	visible := mapset.NewSet[string]()
	if !ps.CanPerform(ctx, caller, objectAPIName, constants.PermRead) {
		return visible
	}
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return visible
	}
	snap, err := ps.current(ctx)
	if err != nil {
		return visible
	}

	for i := range obj.Fields {
		field := &obj.Fields[i]
		if field.IsSystem || caller.IsSuperUser() {
			visible.Add(field.APIName)
			continue
		}
		if fp := snap.fieldPerm(caller.ProfileID, obj.APIName, field.APIName); fp != nil && !fp.Readable {
			continue
		}
		visible.Add(field.APIName)
	}
	return visible
}

// EditableFields returns the fields the caller may write. System and virtual
// fields are never editable.
func (ps *PermissionService) EditableFields(ctx context.Context, caller *models.UserSession, objectAPIName string) mapset.Set[string] {
	editable := mapset.NewSet[string]()
	if !ps.CanPerform(ctx, caller, objectAPIName, constants.PermCreate) &&
		!ps.CanPerform(ctx, caller, objectAPIName, constants.PermEdit) {
		return editable
	}
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return editable
	}
	snap, err := ps.current(ctx)
	if err != nil {
		return editable
	}

	for i := range obj.Fields {
		field := &obj.Fields[i]
		if field.IsSystem || fieldtypes.IsVirtual(field.Type) {
			continue
		}
		if !caller.IsSuperUser() {
			if fp := snap.fieldPerm(caller.ProfileID, obj.APIName, field.APIName); fp != nil && (!fp.Readable || !fp.Editable) {
				continue
			}
		}
		editable.Add(field.APIName)
	}
	return editable
}

// CheckWritePayload verifies every key of a write payload. Keys are checked
// in sorted order; the first failure is returned.
func (ps *PermissionService) CheckWritePayload(ctx context.Context, caller *models.UserSession, objectAPIName string, record models.SObject) error {
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return err
	}
	editable := ps.EditableFields(ctx, caller, objectAPIName)

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := key
		if obj.GetField(key) == nil {
			base := strings.TrimSuffix(key, constants.PolymorphicTypeSuffix)
			if bf := obj.GetField(base); base == key || bf == nil || !bf.IsPolymorphic() {
				return errors.NewValidationError(key, "unknown field on "+obj.APIName)
			}
			name = base
		}
		if !editable.Contains(name) {
			return errors.NewFieldPermissionError(constants.PermEdit, obj.APIName, key)
		}
	}
	return nil
}

// ManagerOf returns a user of the parent role of userID's role. Users of that
// role are tried in sorted order.
func (ps *PermissionService) ManagerOf(ctx context.Context, userID string) (string, error) {
	snap, err := ps.current(ctx)
	if err != nil {
		return "", err
	}
	role, ok := snap.userRoles[userID]
	if !ok {
		return "", errors.NewNotFoundError("role of user", userID)
	}
	parent := snap.roles.parentOf(role)
	if parent == "" {
		return "", errors.NewNotFoundError("manager role of", role)
	}
	users := snap.roleUsers[parent]
	if len(users) == 0 {
		return "", errors.NewNotFoundError("user in role", parent)
	}
	return users[0], nil
}

// RoleCycles returns the roles that sit on a parent loop in stored data.
func (ps *PermissionService) RoleCycles(ctx context.Context) ([]string, error) {
	snap, err := ps.current(ctx)
	if err != nil {
		return nil, err
	}
	return snap.roles.cycles(), nil
}

// SharingRules returns every sharing rule of every object.
func (ps *PermissionService) SharingRules(ctx context.Context) ([]*models.SharingRule, error) {
	snap, err := ps.current(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.SharingRule
	for _, rules := range snap.sharingRules {
		out = append(out, rules...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AccessSummary describes what the caller may do on one object.
type AccessSummary struct {
	Object   string   `json:"object"`
	Read     bool     `json:"read"`
	Create   bool     `json:"create"`
	Edit     bool     `json:"edit"`
	Delete   bool     `json:"delete"`
	Visible  []string `json:"visible_fields"`
	Editable []string `json:"editable_fields"`
}

// Describe summarizes the caller's access to an object.
func (ps *PermissionService) Describe(ctx context.Context, caller *models.UserSession, objectAPIName string) (*AccessSummary, error) {
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}
	visible := ps.VisibleFields(ctx, caller, obj.APIName).ToSlice()
	editable := ps.EditableFields(ctx, caller, obj.APIName).ToSlice()
	sort.Strings(visible)
	sort.Strings(editable)
	return &AccessSummary{
		Object:   obj.APIName,
		Read:     ps.CanPerform(ctx, caller, obj.APIName, constants.PermRead),
		Create:   ps.CanPerform(ctx, caller, obj.APIName, constants.PermCreate),
		Edit:     ps.CanPerform(ctx, caller, obj.APIName, constants.PermEdit),
		Delete:   ps.CanPerform(ctx, caller, obj.APIName, constants.PermDelete),
		Visible:  visible,
		Editable: editable,
	}, nil
}
