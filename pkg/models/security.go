package models

import "github.com/nexuscrm/kernel/pkg/constants"

// UserSession is the authenticated identity the kernel trusts.
type UserSession struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	ProfileID string  `json:"profile_id"`
	RoleID    *string `json:"role_id,omitempty"`
}

// IsSuperUser checks if the user has super user privileges
func (u *UserSession) IsSuperUser() bool {
	return u != nil && constants.IsSuperUser(u.ProfileID)
}

// Role returns the role id or an empty string.
func (u *UserSession) Role() string {
	if u == nil || u.RoleID == nil {
		return ""
	}
	return *u.RoleID
}

// ToMap converts UserSession to a map for formula context
func (u *UserSession) ToMap() map[string]interface{} {
	if u == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		constants.FieldID:        u.ID,
		constants.FieldName:      u.Name,
		constants.FieldEmail:     u.Email,
		constants.FieldProfileID: u.ProfileID,
		constants.FieldRoleID:    u.RoleID,
	}
}

// Profile represents a user profile
type Profile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
	IsSystem    bool    `json:"is_system,omitempty"`
}

// Role represents a role in the hierarchy
type Role struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ParentRoleID *string `json:"parent_role_id,omitempty"`
}

// Group represents a public group used as a sharing target
type Group struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// GroupMember represents membership in a group
type GroupMember struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

// UserRole links a user to their role for hierarchy lookups.
type UserRole struct {
	UserID string  `json:"user_id"`
	RoleID *string `json:"role_id,omitempty"`
}

// ObjectPermission represents object-level permissions
type ObjectPermission struct {
	ProfileID     string `json:"profile_id"`
	ObjectAPIName string `json:"object_api_name"`
	AllowRead     bool   `json:"allow_read"`
	AllowCreate   bool   `json:"allow_create"`
	AllowEdit     bool   `json:"allow_edit"`
	AllowDelete   bool   `json:"allow_delete"`
	ViewAll       bool   `json:"view_all"`
	ModifyAll     bool   `json:"modify_all"`
}

// Allows reports whether the permission grants the operation.
func (p *ObjectPermission) Allows(operation string) bool {
	if p == nil {
		return false
	}
	switch operation {
	case constants.PermRead:
		return p.AllowRead || p.ViewAll || p.ModifyAll
	case constants.PermCreate:
		return p.AllowCreate
	case constants.PermEdit:
		return p.AllowEdit || p.ModifyAll
	case constants.PermDelete:
		return p.AllowDelete || p.ModifyAll
	case constants.PermViewAll:
		return p.ViewAll || p.ModifyAll
	case constants.PermModifyAll:
		return p.ModifyAll
	}
	return false
}

// FieldPermission represents field-level permissions
type FieldPermission struct {
	ProfileID     string `json:"profile_id"`
	ObjectAPIName string `json:"object_api_name"`
	FieldAPIName  string `json:"field_api_name"`
	Readable      bool   `json:"readable"`
	Editable      bool   `json:"editable"`
}

// SharingRule represents a criteria-based sharing rule
type SharingRule struct {
	ID               string                `json:"id"`
	ObjectAPIName    string                `json:"object_api_name"`
	Name             string                `json:"name"`
	Criteria         string                `json:"criteria"`
	AccessLevel      constants.AccessLevel `json:"access_level"`
	ShareWithRoleID  *string               `json:"share_with_role_id,omitempty"`
	ShareWithGroupID *string               `json:"share_with_group_id,omitempty"`
}

// SecurityData is everything the permission engine loads in one pass.
type SecurityData struct {
	Profiles     []Profile
	Roles        []Role
	UserRoles    []UserRole
	ObjectPerms  []ObjectPermission
	FieldPerms   []FieldPermission
	SharingRules []SharingRule
	Groups       []Group
	GroupMembers []GroupMember
}

// Predicate is a parameterized SQL boolean expression restricting the rows an
// operation may touch.
type Predicate struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

// Predicates that bypass and close row access.
const (
	PredicateOpenSQL   = "1=1"
	PredicateClosedSQL = "1=0"
)

// OpenPredicate matches every row.
func OpenPredicate() Predicate { return Predicate{SQL: PredicateOpenSQL} }

// ClosedPredicate matches no row.
func ClosedPredicate() Predicate { return Predicate{SQL: PredicateClosedSQL} }

// IsClosed reports whether the predicate can never match.
func (p Predicate) IsClosed() bool { return p.SQL == PredicateClosedSQL }
