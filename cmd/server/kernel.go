package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/internal/config"
	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/internal/infrastructure/logging"
	"github.com/nexuscrm/kernel/internal/infrastructure/notify"
	"github.com/nexuscrm/kernel/internal/infrastructure/persistence"
)

// kernel is a configured service graph bound to an open database.
type kernel struct {
	logger *zap.Logger
	db     *database.TiDBConnection
	svc    *services.ServiceManager
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func openKernel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*kernel, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("✅ Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name))

	stores := services.Stores{
		Metadata:    persistence.NewMetadataRepository(db, logger.Named("metadata-repo")),
		Schema:      persistence.NewSchemaRepository(db, logger.Named("schema-repo")),
		Permissions: persistence.NewPermissionRepository(db, logger.Named("permission-repo")),
		Flows:       persistence.NewFlowRepository(db),
		Approvals:   persistence.NewApprovalRepository(db, logger.Named("approval-repo")),
		Records:     persistence.NewRecordRepository(db),
		Tx:          persistence.NewTransactionManager(db),
	}
	notifiers := services.Notifiers{
		Mailer:   notify.NewMailer(cfg.SMTP, logger.Named("mailer")),
		Webhooks: notify.NewHTTPWebhookCaller(cfg.WebhookTimeout, logger.Named("webhooks")),
	}

	svc := services.NewServiceManager(stores, notifiers, logger)
	logger.Info("🔧 Service manager initialized")
	return &kernel{logger: logger, db: db, svc: svc}, nil
}

func (k *kernel) Close() {
	if err := k.db.Close(); err != nil {
		k.logger.Warn("⚠️ Failed to close database", zap.Error(err))
	}
}
