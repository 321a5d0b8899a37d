package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/application/services"
)

// InitializeSchema creates the system tables and registers them as objects.
// The registry tables are created before anything is registered, which
// breaks the cycle of _System_Table describing itself.
func InitializeSchema(ctx context.Context, sm *services.ServiceManager, logger *zap.Logger) error {
	logger.Info("🔧 Initializing core system schema...")

	defs, err := SystemTableDefinitions()
	if err != nil {
		return err
	}
	if err := sm.Metadata.RegisterSystemTables(ctx, defs); err != nil {
		return fmt.Errorf("failed to register system tables: %w", err)
	}

	logger.Info("✅ Core system schema initialized", zap.Int("tables", len(defs)))
	return nil
}

// Run performs the full startup sequence: schema, system data, default
// permissions, cache refresh and assertions.
func Run(ctx context.Context, sm *services.ServiceManager, strict bool, logger *zap.Logger) (*AssertionResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := InitializeSchema(ctx, sm, logger); err != nil {
		return nil, err
	}
	if err := sm.RefreshMetadataCache(ctx); err != nil {
		return nil, err
	}
	if err := InitializeSystemData(ctx, sm, logger); err != nil {
		return nil, err
	}
	if err := InitializePermissions(ctx, sm, logger); err != nil {
		return nil, err
	}
	return RunAssertions(ctx, sm, strict, logger)
}
