package persistence

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/schema"
)

// CreateTable creates the table structure without registering metadata.
// created is false when the table already existed.
func (r *SchemaRepository) CreateTable(ctx context.Context, def schema.TableDefinition) (bool, error) {
	exists, err := r.TableExists(ctx, def.TableName)
	if err != nil {
		return false, err
	}
	if exists {
		r.logger.Info("⚠️ Table already exists, adopting", zap.String("table", def.TableName))
		return false, nil
	}

	ddl := schema.BuildCreateTableDDL(def)
	r.logger.Debug("📝 Executing DDL", zap.String("table", def.TableName), zap.String("ddl", ddl))
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		if isMySQLError(err, ErrTableExists) {
			return false, nil
		}
		r.logger.Error("❌ Failed to create table", zap.String("table", def.TableName), zap.Error(err))
		return false, fmt.Errorf("failed to create table %s: %w", def.TableName, err)
	}

	r.logger.Info("✅ Table created", zap.String("table", def.TableName))
	return true, nil
}

// BatchCreateTables performs parallel DDL creation. Tables created by this
// call are dropped again when any statement fails.
func (r *SchemaRepository) BatchCreateTables(ctx context.Context, defs []schema.TableDefinition) ([]string, error) {
	// TiDB handles concurrent DDL well. We limit concurrency to avoid overwhelming the connection pool.
	sem := make(chan struct{}, maxConcurrentDDL)
	var wg sync.WaitGroup
	errChan := make(chan error, len(defs))

	var createdMu sync.Mutex
	var created []string

	r.logger.Info("🚀 Starting parallel DDL", zap.Int("tables", len(defs)))

	for _, def := range defs {
		wg.Add(1)
		go func(d schema.TableDefinition) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire token
			defer func() { <-sem }() // Release token

			ok, err := r.CreateTable(ctx, d)
			if err != nil {
				errChan <- err
				return
			}
			if ok {
				createdMu.Lock()
				created = append(created, d.TableName)
				createdMu.Unlock()
			}
		}(def)
	}

	wg.Wait()
	close(errChan)

	if len(errChan) > 0 {
		firstErr := <-errChan
		r.logger.Error("❌ Batch DDL failed, rolling back created tables",
			zap.Error(firstErr), zap.Int("created", len(created)))

		// Compensation must run even when the caller's context was cancelled.
		cleanupCtx := context.WithoutCancel(ctx)
		for _, table := range created {
			if err := r.DropTable(cleanupCtx, table); err != nil {
				r.logger.Warn("⚠️ Failed to cleanup table during rollback", zap.String("table", table), zap.Error(err))
			}
		}
		return nil, firstErr
	}

	r.logger.Info("✅ Parallel DDL complete", zap.Int("created", len(created)))
	return created, nil
}

// DropTable drops a table if it exists.
func (r *SchemaRepository) DropTable(ctx context.Context, table string) error {
	if _, err := r.db.ExecContext(ctx, schema.BuildDropTableDDL(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	r.logger.Info("🗑️ Table dropped", zap.String("table", table))
	return nil
}
