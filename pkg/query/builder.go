package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// QueryType represents the type of SQL query
type QueryType string

const (
	QueryTypeSelect QueryType = "SELECT"
	QueryTypeInsert QueryType = "INSERT"
	QueryTypeUpdate QueryType = "UPDATE"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QueryResult represents the built SQL query and parameters
type QueryResult struct {
	SQL    string
	Params []interface{}
}

// Builder is a fluent SQL query builder. Identifiers are validated and
// backtick-quoted; values are always bound as parameters.
type Builder struct {
	queryType    QueryType
	table        string
	fields       []string
	whereClauses []string
	params       []interface{}
	orderBy      string
	limit        *int
	values       map[string]interface{}
	err          error
}

// Quote validates an identifier and wraps it in backticks
func Quote(identifier string) (string, error) {
	if !identifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("invalid identifier '%s'", identifier)
	}
	return "`" + identifier + "`", nil
}

// From creates a new SELECT query builder
func From(table string) *Builder {
	return newBuilder(QueryTypeSelect, table)
}

// Insert creates a new INSERT query builder
func Insert(table string, data map[string]interface{}) *Builder {
	b := newBuilder(QueryTypeInsert, table)
	b.values = data
	return b
}

// Update creates a new UPDATE query builder
func Update(table string) *Builder {
	return newBuilder(QueryTypeUpdate, table)
}

func newBuilder(t QueryType, table string) *Builder {
	b := &Builder{
		queryType:    t,
		table:        table,
		whereClauses: make([]string, 0),
		params:       make([]interface{}, 0),
	}
	if _, err := Quote(table); err != nil {
		b.err = err
	}
	return b
}

func (b *Builder) quote(identifier string) string {
	q, err := Quote(identifier)
	if err != nil && b.err == nil {
		b.err = err
	}
	return q
}

// Select specifies which fields to select. The id column is always included.
func (b *Builder) Select(fields []string) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}

	hasID := false
	for _, field := range fields {
		if field == constants.FieldID {
			hasID = true
		}
		b.fields = append(b.fields, b.quote(field))
	}
	if !hasID {
		b.fields = append([]string{b.quote(constants.FieldID)}, b.fields...)
	}
	return b
}

// Where adds a WHERE condition
func (b *Builder) Where(condition string, value ...interface{}) *Builder {
	b.whereClauses = append(b.whereClauses, condition)
	if len(value) > 0 {
		b.params = append(b.params, value...)
	}
	return b
}

// WhereEquals adds `column` = ? for a validated column
func (b *Builder) WhereEquals(column string, value interface{}) *Builder {
	return b.Where(b.quote(column)+" = ?", value)
}

// ExcludeDeleted adds is_deleted = 0 condition
func (b *Builder) ExcludeDeleted() *Builder {
	return b.Where(b.quote(constants.FieldIsDeleted) + " = 0")
}

// ApplySecurity appends a row-level security predicate
func (b *Builder) ApplySecurity(securitySQL string, securityParams []interface{}) *Builder {
	if securitySQL != "" {
		b.whereClauses = append(b.whereClauses, "("+securitySQL+")")
		b.params = append(b.params, securityParams...)
	}
	return b
}

// Set sets values for UPDATE query
func (b *Builder) Set(data map[string]interface{}) *Builder {
	if b.queryType != QueryTypeUpdate {
		return b
	}
	b.values = data
	return b
}

// OrderBy adds ORDER BY clause
func (b *Builder) OrderBy(field string, direction string) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	dir := strings.ToUpper(direction)
	if dir != "DESC" {
		dir = "ASC"
	}
	b.orderBy = fmt.Sprintf("ORDER BY %s %s", b.quote(field), dir)
	return b
}

// Limit adds LIMIT clause
func (b *Builder) Limit(n int) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	b.limit = &n
	return b
}

// forUpdate is appended to SELECTs that lock rows inside a transaction.
const forUpdate = " FOR UPDATE"

// Build constructs the final SQL query
func (b *Builder) Build() (QueryResult, error) {
	var sql string
	var params []interface{}

	switch b.queryType {
	case QueryTypeSelect:
		sql = b.buildSelect()
		params = b.params
	case QueryTypeInsert:
		sql, params = b.buildInsert()
	case QueryTypeUpdate:
		sql, params = b.buildUpdate()
	}

	if b.err != nil {
		return QueryResult{}, b.err
	}
	return QueryResult{SQL: sql, Params: params}, nil
}

// BuildForUpdate builds a locking SELECT
func (b *Builder) BuildForUpdate() (QueryResult, error) {
	res, err := b.Build()
	if err != nil {
		return res, err
	}
	if b.queryType == QueryTypeSelect {
		res.SQL += forUpdate
	}
	return res, nil
}

func (b *Builder) buildSelect() string {
	var parts []string

	fields := "*"
	if len(b.fields) > 0 {
		fields = strings.Join(b.fields, ", ")
	}
	parts = append(parts, fmt.Sprintf("SELECT %s FROM %s", fields, b.quote(b.table)))

	if len(b.whereClauses) > 0 {
		parts = append(parts, fmt.Sprintf("WHERE %s", strings.Join(b.whereClauses, " AND ")))
	}
	if b.orderBy != "" {
		parts = append(parts, b.orderBy)
	}
	if b.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *b.limit))
	}
	return strings.Join(parts, " ")
}

// sortedKeys keeps generated SQL stable for tests and statement caches.
func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Builder) buildInsert() (string, []interface{}) {
	var cols []string
	var placeholders []string
	var params []interface{}

	for _, key := range sortedKeys(b.values) {
		cols = append(cols, b.quote(key))
		placeholders = append(placeholders, "?")
		params = append(params, b.values[key])
	}
	if len(cols) == 0 && b.err == nil {
		b.err = fmt.Errorf("insert into %s has no columns", b.table)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.quote(b.table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))
	return sql, params
}

func (b *Builder) buildUpdate() (string, []interface{}) {
	var setClauses []string
	var params []interface{}

	for _, key := range sortedKeys(b.values) {
		setClauses = append(setClauses, b.quote(key)+" = ?")
		params = append(params, b.values[key])
	}
	if len(setClauses) == 0 && b.err == nil {
		b.err = fmt.Errorf("update of %s has no columns", b.table)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", b.quote(b.table), strings.Join(setClauses, ", "))
	if len(b.whereClauses) > 0 {
		sql += fmt.Sprintf(" WHERE %s", strings.Join(b.whereClauses, " AND "))
		params = append(params, b.params...)
	}
	return sql, params
}
