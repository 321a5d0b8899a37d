package constants

import "strings"

// System table names. Every metadata table carries the system prefix so it can
// never collide with a business object api_name.
const (
	SystemTablePrefix = "_System_"

	// Registry tables. These three form the bootstrap set: they must exist
	// physically before anything else can be registered.
	TableTable  = "_System_Table"
	TableObject = "_System_Object"
	TableField  = "_System_Field"

	// Security
	TableProfile     = "_System_Profile"
	TableUser        = "_System_User"
	TableRole        = "_System_Role"
	TableGroup       = "_System_Group"
	TableGroupMember = "_System_GroupMember"
	TableObjectPerms = "_System_ObjectPerms"
	TableFieldPerms  = "_System_FieldPerms"
	TableSharingRule = "_System_SharingRule"

	// Automation
	TableFlow             = "_System_Flow"
	TableFlowInstance     = "_System_FlowInstance"
	TableValidation       = "_System_Validation"
	TableApprovalProcess  = "_System_ApprovalProcess"
	TableApprovalWorkItem = "_System_ApprovalWorkItem"
)

// BootstrapTables returns the registry tables in the order they must be created.
func BootstrapTables() []string {
	return []string{TableTable, TableObject, TableField}
}

// IsSystemTable checks if a table name is a system table
func IsSystemTable(tableName string) bool {
	return strings.HasPrefix(tableName, SystemTablePrefix)
}

// GetSystemFieldNames returns the list of system fields that every table should have.
// Note: id is NOT required since some tables use composite keys.
func GetSystemFieldNames() []string {
	return []string{
		FieldCreatedDate,
		FieldLastModifiedDate,
	}
}
