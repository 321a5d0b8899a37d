package constants

// System field names present on every business object.
const (
	FieldID               = "id"
	FieldName             = "name"
	FieldOwnerID          = "owner_id"
	FieldCreatedDate      = "created_date"
	FieldCreatedByID      = "created_by_id"
	FieldLastModifiedDate = "last_modified_date"
	FieldLastModifiedByID = "last_modified_by_id"
	FieldIsDeleted        = "is_deleted"
)

// Metadata field names used by the registry and validation errors.
const (
	FieldAPIName        = "api_name"
	FieldLabel          = "label"
	FieldMetaType       = "type"
	FieldReferenceTo    = "reference_to"
	FieldFormula        = "formula"
	FieldOptions        = "options"
	FieldStatus         = "status"
	FieldTriggerType    = "trigger_type"
	FieldTriggerObject  = "trigger_object"
	FieldErrorCondition = "error_condition"
	FieldCriteria       = "criteria"
	FieldParentRoleID   = "parent_role_id"
	FieldShareWith      = "share_with"
	FieldSteps          = "steps"
	FieldProfileID      = "profile_id"
	FieldRoleID         = "role_id"
	FieldEmail          = "email"
)

// StandardSystemFields returns the system fields present on every business object.
func StandardSystemFields() []string {
	return []string{
		FieldID,
		FieldOwnerID,
		FieldCreatedDate,
		FieldCreatedByID,
		FieldLastModifiedDate,
		FieldLastModifiedByID,
		FieldIsDeleted,
	}
}

// IsSystemField checks if a field name is a standard system field
func IsSystemField(fieldName string) bool {
	for _, sf := range StandardSystemFields() {
		if sf == fieldName {
			return true
		}
	}
	return false
}

// AuditFields returns the audit field names
func AuditFields() []string {
	return []string{
		FieldCreatedDate,
		FieldCreatedByID,
		FieldLastModifiedDate,
		FieldLastModifiedByID,
	}
}
