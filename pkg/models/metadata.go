package models

import (
	"time"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// FieldType is defined in pkg/constants
type FieldType = constants.FieldType

// SharingModel is defined in pkg/constants
type SharingModel = constants.SharingModel

// DeleteRule is defined in pkg/constants
type DeleteRule = constants.DeleteRule

// FieldMetadata represents field-level metadata
type FieldMetadata struct {
	ID           string      `json:"id,omitempty"`
	ObjectID     string      `json:"object_id,omitempty"`
	APIName      string      `json:"api_name"`
	Label        string      `json:"label"`
	Type         FieldType   `json:"type"`
	Required     bool        `json:"required,omitempty"`
	Unique       bool        `json:"unique,omitempty"`
	IsNameField  bool        `json:"is_name_field,omitempty"`
	IsSystem     bool        `json:"is_system,omitempty"`
	Options      []string    `json:"options,omitempty"`
	ReferenceTo  []string    `json:"reference_to,omitempty"` // more than one target makes the lookup polymorphic
	DeleteRule   *DeleteRule `json:"delete_rule,omitempty"`
	Formula      *string     `json:"formula,omitempty"`
	ReturnType   *FieldType  `json:"return_type,omitempty"`
	DefaultValue *string     `json:"default_value,omitempty"`
	MaxLength    *int        `json:"max_length,omitempty"`
	IsDeleted    bool        `json:"is_deleted,omitempty"`
	CreatedDate  time.Time   `json:"created_date,omitempty"`
	LastModified time.Time   `json:"last_modified_date,omitempty"`
}

// IsPolymorphic reports whether the lookup references more than one object.
func (f *FieldMetadata) IsPolymorphic() bool {
	return len(f.ReferenceTo) > 1
}

// MaxLen returns the declared max length or 0.
func (f *FieldMetadata) MaxLen() int {
	if f.MaxLength == nil {
		return 0
	}
	return *f.MaxLength
}

// ObjectMetadata represents object-level metadata
type ObjectMetadata struct {
	ID           string              `json:"id,omitempty"`
	APIName      string              `json:"api_name"`
	Label        string              `json:"label"`
	PluralLabel  string              `json:"plural_label"`
	Description  *string             `json:"description,omitempty"`
	IsCustom     bool                `json:"is_custom"`
	TableType    constants.TableType `json:"table_type,omitempty"`
	SharingModel SharingModel        `json:"sharing_model"`
	IsDeleted    bool                `json:"is_deleted,omitempty"`
	Fields       []FieldMetadata     `json:"fields"`
	CreatedDate  time.Time           `json:"created_date,omitempty"`
	LastModified time.Time           `json:"last_modified_date,omitempty"`
}

// GetField returns the field with the given api_name, or nil.
func (o *ObjectMetadata) GetField(apiName string) *FieldMetadata {
	for i := range o.Fields {
		if o.Fields[i].APIName == apiName {
			return &o.Fields[i]
		}
	}
	return nil
}

// NameField returns the object's name field, or nil.
func (o *ObjectMetadata) NameField() *FieldMetadata {
	for i := range o.Fields {
		if o.Fields[i].IsNameField {
			return &o.Fields[i]
		}
	}
	return nil
}

// HasField reports whether the object declares the field.
func (o *ObjectMetadata) HasField(apiName string) bool {
	return o.GetField(apiName) != nil
}

// FieldSample maps every field to nil. Formulas are type-checked against it.
func (o *ObjectMetadata) FieldSample() map[string]interface{} {
	sample := make(map[string]interface{}, len(o.Fields))
	for _, f := range o.Fields {
		sample[f.APIName] = nil
	}
	return sample
}

// Clone returns a deep copy safe to hand to callers.
func (o *ObjectMetadata) Clone() *ObjectMetadata {
	if o == nil {
		return nil
	}
	c := *o
	c.Fields = make([]FieldMetadata, len(o.Fields))
	copy(c.Fields, o.Fields)
	for i := range c.Fields {
		c.Fields[i].Options = append([]string(nil), o.Fields[i].Options...)
		c.Fields[i].ReferenceTo = append([]string(nil), o.Fields[i].ReferenceTo...)
	}
	return &c
}

// ValidationRule is a formula that evaluates TRUE when a record is INVALID.
type ValidationRule struct {
	ID            string `json:"id"`
	ObjectAPIName string `json:"object_api_name"`
	Name          string `json:"name"`
	Active        bool   `json:"active"`
	Condition     string `json:"condition"`
	ErrorMessage  string `json:"error_message"`
}
