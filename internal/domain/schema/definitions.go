package schema

// ColumnDefinition represents a single column in a table
type ColumnDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	LogicalType string   `json:"logical_type,omitempty" yaml:"logical_type,omitempty"` // Optional: Override logical type (e.g. Password, Picklist)
	PrimaryKey  bool     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Unique      bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	Nullable    bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Default     string   `json:"default,omitempty" yaml:"default,omitempty"`
	ReferenceTo []string `json:"reference_to,omitempty" yaml:"reference_to,omitempty"`
	IsNameField bool     `json:"is_name_field,omitempty" yaml:"is_name_field,omitempty"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// IndexDefinition represents an index on a table
type IndexDefinition struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// TableDefinition represents a complete table schema
type TableDefinition struct {
	TableName   string             `json:"table_name" yaml:"table_name"`
	TableType   string             `json:"table_type" yaml:"table_type"` // system_metadata, system_data, custom_object
	Label       string             `json:"label,omitempty" yaml:"label,omitempty"`
	Description string             `json:"description" yaml:"description"`
	Columns     []ColumnDefinition `json:"columns" yaml:"columns"`
	Indices     []IndexDefinition  `json:"indices,omitempty" yaml:"indices,omitempty"`
}

// Column returns the column with the given name, or nil.
func (t *TableDefinition) Column(name string) *ColumnDefinition {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *TableDefinition) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
