package ports

import (
	"context"

	"github.com/nexuscrm/kernel/internal/domain/schema"
)

// SchemaStore executes DDL and reads the physical catalog.
type SchemaStore interface {
	TableExists(ctx context.Context, table string) (bool, error)

	// CreateTable runs CREATE TABLE IF NOT EXISTS. created is false when the
	// table was already there before the call.
	CreateTable(ctx context.Context, def schema.TableDefinition) (created bool, err error)

	// BatchCreateTables creates tables concurrently. On failure every table
	// created by this call is dropped again and the first error is returned.
	BatchCreateTables(ctx context.Context, defs []schema.TableDefinition) (created []string, err error)

	DropTable(ctx context.Context, table string) error

	// AddColumn is idempotent: added is false when the column already exists.
	AddColumn(ctx context.Context, table string, col schema.ColumnDefinition) (added bool, err error)
	DropColumn(ctx context.Context, table, column string) error
	CreateIndex(ctx context.Context, table string, idx schema.IndexDefinition) error

	// ListTables returns the set of physical tables in the current database.
	ListTables(ctx context.Context) (map[string]bool, error)

	// ListColumns returns table -> column -> DATA_TYPE.
	ListColumns(ctx context.Context) (map[string]map[string]string, error)
}
