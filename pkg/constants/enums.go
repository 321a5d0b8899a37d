package constants

// SharingModel represents object-level sharing model
type SharingModel string

const (
	SharingModelPrivate         SharingModel = "Private"
	SharingModelPublicRead      SharingModel = "PublicRead"
	SharingModelPublicReadWrite SharingModel = "PublicReadWrite"
)

// IsValidSharingModel reports whether m is one of the known sharing models.
func IsValidSharingModel(m SharingModel) bool {
	switch m {
	case SharingModelPrivate, SharingModelPublicRead, SharingModelPublicReadWrite:
		return true
	}
	return false
}

// DeleteRule represents referential integrity rules
type DeleteRule string

const (
	DeleteRuleRestrict DeleteRule = "Restrict"
	DeleteRuleCascade  DeleteRule = "Cascade"
	DeleteRuleSetNull  DeleteRule = "SetNull"
)

// TableType defines the type of table (system vs custom)
type TableType string

const (
	TableTypeCustomObject   TableType = "custom_object"
	TableTypeSystemMetadata TableType = "system_metadata"
	TableTypeSystemData     TableType = "system_data"
)

// AccessLevel is the grant carried by a sharing rule.
type AccessLevel string

const (
	AccessLevelRead AccessLevel = "Read"
	AccessLevelEdit AccessLevel = "Edit"
)

// ApproverType selects how the approver of a request is resolved.
type ApproverType string

const (
	ApproverTypeUser    ApproverType = "User"
	ApproverTypeManager ApproverType = "Manager"
	ApproverTypeSelf    ApproverType = "Self"
)

// Assertion severity constants
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// FieldType is the closed set of field types the registry understands.
// Physical mapping lives in the fieldtypes dispatch table.
type FieldType string

const (
	FieldTypeText          FieldType = "Text"
	FieldTypeTextArea      FieldType = "TextArea"
	FieldTypeLongTextArea  FieldType = "LongTextArea"
	FieldTypeEmail         FieldType = "Email"
	FieldTypePhone         FieldType = "Phone"
	FieldTypeURL           FieldType = "Url"
	FieldTypeNumber        FieldType = "Number"
	FieldTypeCurrency      FieldType = "Currency"
	FieldTypePercent       FieldType = "Percent"
	FieldTypeDate          FieldType = "Date"
	FieldTypeDateTime      FieldType = "DateTime"
	FieldTypeBoolean       FieldType = "Boolean"
	FieldTypePicklist      FieldType = "Picklist"
	FieldTypeLookup        FieldType = "Lookup"
	FieldTypeJSON          FieldType = "JSON"
	FieldTypePassword      FieldType = "Password"
	FieldTypeFormula       FieldType = "Formula"
	FieldTypeRollupSummary FieldType = "RollupSummary"
)
