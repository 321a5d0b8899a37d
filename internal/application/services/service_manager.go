package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/formula"
)

// Stores bundles the persistence adapters the services run on.
type Stores struct {
	Metadata    ports.MetadataStore
	Schema      ports.SchemaStore
	Permissions ports.PermissionStore
	Flows       ports.FlowStore
	Approvals   ports.ApprovalStore
	Records     ports.RecordStore
	Tx          ports.Transactor
}

// Notifiers bundles the outbound channels of flow actions.
type Notifiers struct {
	Mailer   ports.Mailer
	Webhooks ports.WebhookCaller
}

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	Formula     *formula.Engine
	Schema      *SchemaManager
	Metadata    *MetadataService
	Permissions *PermissionService
	Validation  *ValidationService
	Persistence *PersistenceService
	Flows       *FlowExecutor
	Approval    *ApprovalService
	Scheduler   *SchedulerService

	logger *zap.Logger
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(stores Stores, notifiers Notifiers, logger *zap.Logger) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	sm := &ServiceManager{logger: logger}

	// Initialize services in dependency order
	sm.Formula = formula.NewEngine(formula.WithLogger(logger.Named("formula")))
	validator := NewDDLValidator()
	sm.Schema = NewSchemaManager(stores.Schema, validator, logger.Named("schema"))
	sm.Metadata = NewMetadataService(stores.Metadata, sm.Schema, sm.Formula, logger.Named("metadata"))
	sm.Permissions = NewPermissionService(stores.Permissions, sm.Metadata, sm.Formula, validator, logger.Named("permissions"))
	sm.Validation = NewValidationService(sm.Formula, logger.Named("validation"))
	sm.Persistence = NewPersistenceService(stores.Records, stores.Tx, sm.Metadata, sm.Permissions, sm.Validation, sm.Formula, logger.Named("records"))

	actions := NewActionHandlerRegistry()
	actions.Register(NewCreateRecordHandler(sm.Persistence, sm.Metadata, sm.Formula))
	actions.Register(NewUpdateRecordHandler(sm.Persistence, sm.Formula))
	if notifiers.Mailer != nil {
		actions.Register(NewSendEmailHandler(notifiers.Mailer))
	}
	if notifiers.Webhooks != nil {
		actions.Register(NewCallWebhookHandler(notifiers.Webhooks, sm.Formula, logger.Named("webhooks")))
	}
	sm.Flows = NewFlowExecutor(stores.Flows, sm.Metadata, sm.Formula, actions, logger.Named("flows"))
	sm.Approval = NewApprovalService(stores.Approvals, stores.Tx, sm.Persistence, sm.Metadata, sm.Permissions, sm.Formula, logger.Named("approvals"))

	// Break the construction cycles: records run flows, flows submit
	// approvals, resolved approvals resume flows.
	sm.Persistence.SetTriggerRunner(sm.Flows)
	sm.Flows.SetApprovalSubmitter(sm.Approval)
	sm.Approval.SetFlowResumer(sm.Flows)

	sm.Scheduler = NewSchedulerService(logger.Named("scheduler"))
	return sm
}

// RefreshMetadataCache reloads every snapshot from the stores
func (sm *ServiceManager) RefreshMetadataCache(ctx context.Context) error {
	if err := sm.Metadata.RefreshSnapshot(ctx); err != nil {
		return fmt.Errorf("failed to refresh schema snapshot: %w", err)
	}
	if err := sm.Permissions.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh permissions: %w", err)
	}
	if err := sm.Flows.RefreshFlows(ctx); err != nil {
		return fmt.Errorf("failed to refresh flows: %w", err)
	}
	sm.logger.Info("🔄 Metadata caches refreshed", zap.Uint64("schema_version", sm.Metadata.Version()))
	return nil
}

// ScheduleConsistencyChecks registers the periodic schema drift check.
func (sm *ServiceManager) ScheduleConsistencyChecks(spec string) error {
	return sm.Scheduler.AddJob("schema-consistency", spec, ConsistencyJob(sm.Metadata, sm.logger.Named("consistency")))
}
