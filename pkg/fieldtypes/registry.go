package fieldtypes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// Options carries the per-field settings a value validator needs.
type Options struct {
	MaxLength int
	Picklist  []string
}

// Definition is one row of the dispatch table.
type Definition struct {
	Type       constants.FieldType
	Label      string
	SQLType    string // empty for virtual types
	IsVirtual  bool
	IsFK       bool
	IsSummable bool
	// DataTypes lists the INFORMATION_SCHEMA DATA_TYPE values a physical
	// column may have and still be compatible with this field type.
	DataTypes []string
	Operators []string
	Validate  func(value interface{}, opts Options) error
	Transform func(value interface{}) (interface{}, error)
}

var (
	textOperators   = []string{"=", "!=", "LIKE", "IN", "IS NULL", "IS NOT NULL"}
	numberOperators = []string{"=", "!=", ">", ">=", "<", "<=", "IN", "IS NULL", "IS NOT NULL"}
	boolOperators   = []string{"=", "!="}
	textDataTypes   = []string{"varchar", "char", "text", "mediumtext", "longtext"}
)

// table is the fixed dispatch table. It is never mutated after init.
var table = map[constants.FieldType]Definition{
	constants.FieldTypeText: {
		Label: "Text", SQLType: "VARCHAR(255)", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validateText,
	},
	constants.FieldTypeTextArea: {
		Label: "Text Area", SQLType: "TEXT", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validateText,
	},
	constants.FieldTypeLongTextArea: {
		Label: "Long Text Area", SQLType: "LONGTEXT", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validateText,
	},
	constants.FieldTypeEmail: {
		Label: "Email", SQLType: "VARCHAR(255)", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validateEmail,
	},
	constants.FieldTypePhone: {
		Label: "Phone", SQLType: "VARCHAR(40)", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validatePhone,
	},
	constants.FieldTypeURL: {
		Label: "URL", SQLType: "VARCHAR(1024)", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validateURL,
	},
	constants.FieldTypeNumber: {
		Label: "Number", SQLType: "DOUBLE", DataTypes: []string{"double", "float", "decimal", "int", "bigint"},
		IsSummable: true, Operators: numberOperators, Validate: validateNumber, Transform: toNumber,
	},
	constants.FieldTypeCurrency: {
		Label: "Currency", SQLType: "DECIMAL(18,2)", DataTypes: []string{"decimal", "double"},
		IsSummable: true, Operators: numberOperators, Validate: validateNumber, Transform: toNumber,
	},
	constants.FieldTypePercent: {
		Label: "Percent", SQLType: "DECIMAL(7,4)", DataTypes: []string{"decimal", "double"},
		IsSummable: true, Operators: numberOperators, Validate: validateNumber, Transform: toNumber,
	},
	constants.FieldTypeDate: {
		Label: "Date", SQLType: "DATE", DataTypes: []string{"date", "datetime"},
		Operators: numberOperators, Validate: validateDate, Transform: toDate,
	},
	constants.FieldTypeDateTime: {
		Label: "Date/Time", SQLType: "DATETIME", DataTypes: []string{"datetime", "timestamp"},
		Operators: numberOperators, Validate: validateDateTime, Transform: toDateTime,
	},
	constants.FieldTypeBoolean: {
		Label: "Checkbox", SQLType: "TINYINT(1)", DataTypes: []string{"tinyint", "bool", "boolean"},
		Operators: boolOperators, Validate: validateBoolean, Transform: toBoolean,
	},
	constants.FieldTypePicklist: {
		Label: "Picklist", SQLType: "VARCHAR(255)", DataTypes: textDataTypes,
		Operators: textOperators, Validate: validatePicklist,
	},
	constants.FieldTypeLookup: {
		Label: "Lookup", SQLType: "VARCHAR(36)", DataTypes: []string{"varchar", "char"},
		IsFK: true, Operators: []string{"=", "!=", "IN", "IS NULL", "IS NOT NULL"}, Validate: validateText,
	},
	constants.FieldTypeJSON: {
		Label: "JSON", SQLType: "JSON", DataTypes: []string{"json", "longtext"},
		Operators: []string{"IS NULL", "IS NOT NULL"}, Transform: toJSON,
	},
	constants.FieldTypePassword: {
		Label: "Password", SQLType: "VARCHAR(255)", DataTypes: textDataTypes,
		Validate: validateText, Transform: hashPassword,
	},
	constants.FieldTypeFormula: {
		Label: "Formula", IsVirtual: true,
	},
	constants.FieldTypeRollupSummary: {
		Label: "Roll-Up Summary", IsVirtual: true, IsSummable: true,
	},
}

func init() {
	for t, def := range table {
		def.Type = t
		table[t] = def
	}
}

// Get returns the dispatch entry for a field type.
func Get(t constants.FieldType) (Definition, bool) {
	def, ok := table[t]
	return def, ok
}

// IsKnown reports whether t is a member of the closed field type set.
func IsKnown(t constants.FieldType) bool {
	_, ok := table[t]
	return ok
}

// All returns every field type sorted by name.
func All() []Definition {
	result := make([]Definition, 0, len(table))
	for _, def := range table {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsVirtual returns whether a field type is virtual (computed, not stored)
func IsVirtual(t constants.FieldType) bool {
	return table[t].IsVirtual
}

// IsFK returns whether a field type is a foreign key reference
func IsFK(t constants.FieldType) bool {
	return table[t].IsFK
}

// ColumnType returns the physical SQL type for a field, honouring a custom
// length on variable-width text types.
func ColumnType(t constants.FieldType, maxLength int) (string, error) {
	def, ok := table[t]
	if !ok {
		return "", fmt.Errorf("unknown field type '%s'", t)
	}
	if def.IsVirtual {
		return "", fmt.Errorf("field type '%s' has no physical column", t)
	}
	if maxLength > 0 && strings.HasPrefix(def.SQLType, "VARCHAR(") && maxLength <= 16383 {
		return fmt.Sprintf("VARCHAR(%d)", maxLength), nil
	}
	return def.SQLType, nil
}

// IsCompatible reports whether a physical column DATA_TYPE can hold values of t.
func IsCompatible(t constants.FieldType, dataType string) bool {
	def, ok := table[t]
	if !ok || def.IsVirtual {
		return false
	}
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	for _, dt := range def.DataTypes {
		if dt == dataType {
			return true
		}
	}
	return false
}

// Validate checks a value for a field of type t. Nil values are accepted;
// required checks belong to the caller.
func Validate(t constants.FieldType, value interface{}, opts Options) error {
	def, ok := table[t]
	if !ok {
		return fmt.Errorf("unknown field type '%s'", t)
	}
	if value == nil || def.Validate == nil {
		return nil
	}
	return def.Validate(value, opts)
}

// Transform normalizes a value before storage.
func Transform(t constants.FieldType, value interface{}) (interface{}, error) {
	def, ok := table[t]
	if !ok {
		return nil, fmt.Errorf("unknown field type '%s'", t)
	}
	if value == nil || def.Transform == nil {
		return value, nil
	}
	return def.Transform(value)
}
