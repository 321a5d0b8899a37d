package schema

import (
	"fmt"
	"strings"
)

// TableOptions is appended to every CREATE TABLE statement.
const TableOptions = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

// QuoteIdent backtick-quotes an identifier. Callers validate names first.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// BuildColumnDDL renders one column clause.
func BuildColumnDDL(col ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(QuoteIdent(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Type)

	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(col.Default)
	}
	if col.Unique && !col.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// IndexName returns the declared index name or derives one.
func IndexName(table string, idx IndexDefinition) string {
	if idx.Name != "" {
		return idx.Name
	}
	prefix := "idx"
	if idx.Unique {
		prefix = "uq"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, strings.ToLower(strings.TrimPrefix(table, "_")), strings.Join(idx.Columns, "_"))
}

func indexColumns(idx IndexDefinition) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = QuoteIdent(c)
	}
	return strings.Join(cols, ", ")
}

// BuildIndexDDL renders an inline KEY clause for CREATE TABLE.
func BuildIndexDDL(table string, idx IndexDefinition) string {
	kind := "KEY"
	if idx.Unique {
		kind = "UNIQUE KEY"
	}
	return fmt.Sprintf("%s %s (%s)", kind, QuoteIdent(IndexName(table, idx)), indexColumns(idx))
}

// BuildCreateTableDDL renders an idempotent CREATE TABLE statement.
func BuildCreateTableDDL(def TableDefinition) string {
	clauses := make([]string, 0, len(def.Columns)+len(def.Indices))
	for _, col := range def.Columns {
		clauses = append(clauses, BuildColumnDDL(col))
	}
	for _, idx := range def.Indices {
		clauses = append(clauses, BuildIndexDDL(def.TableName, idx))
	}

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdent(def.TableName)))
	for i, c := range clauses {
		ddl.WriteString("  ")
		ddl.WriteString(c)
		if i < len(clauses)-1 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}
	ddl.WriteString(") ")
	ddl.WriteString(TableOptions)
	return ddl.String()
}

// BuildAddColumnDDL renders ALTER TABLE ADD COLUMN.
func BuildAddColumnDDL(table string, col ColumnDefinition) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdent(table), BuildColumnDDL(col))
}

// BuildDropColumnDDL renders ALTER TABLE DROP COLUMN.
func BuildDropColumnDDL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", QuoteIdent(table), QuoteIdent(column))
}

// BuildCreateIndexDDL renders a standalone CREATE INDEX statement.
func BuildCreateIndexDDL(table string, idx IndexDefinition) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, QuoteIdent(IndexName(table, idx)), QuoteIdent(table), indexColumns(idx))
}

// BuildDropTableDDL renders DROP TABLE IF EXISTS.
func BuildDropTableDDL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdent(table))
}
