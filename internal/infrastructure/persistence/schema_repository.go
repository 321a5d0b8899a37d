package persistence

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/infrastructure/database"
)

// SchemaRepository executes DDL and reads INFORMATION_SCHEMA.
type SchemaRepository struct {
	db     *database.TiDBConnection
	logger *zap.Logger
}

// NewSchemaRepository creates a new SchemaRepository
func NewSchemaRepository(db *database.TiDBConnection, logger *zap.Logger) *SchemaRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaRepository{db: db, logger: logger}
}

// TableExists checks INFORMATION_SCHEMA for the table.
func (r *SchemaRepository) TableExists(ctx context.Context, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

// columnType returns the DATA_TYPE of a column, or "" when it does not exist.
func (r *SchemaRepository) columnType(ctx context.Context, table, column string) (string, error) {
	query := `SELECT DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`
	rows, err := r.db.QueryContext(ctx, query, table, column)
	if err != nil {
		return "", fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return "", rows.Err()
	}
	var dataType string
	if err := rows.Scan(&dataType); err != nil {
		return "", err
	}
	return strings.ToLower(dataType), nil
}

// ListTables returns the set of physical tables in the current database.
func (r *SchemaRepository) ListTables(ctx context.Context) (map[string]bool, error) {
	query := `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE()`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

// ListColumns returns table -> column -> lowercase DATA_TYPE.
func (r *SchemaRepository) ListColumns(ctx context.Context) (map[string]map[string]string, error) {
	query := `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE()`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, err
		}
		if columns[table] == nil {
			columns[table] = make(map[string]string)
		}
		columns[table][column] = strings.ToLower(dataType)
	}
	return columns, rows.Err()
}
