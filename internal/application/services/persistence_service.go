package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

// TriggerRunner runs the flows bound to a record trigger.
type TriggerRunner interface {
	ExecuteTriggers(ctx context.Context, triggerType, objectAPIName string, record, old models.SObject, caller *models.UserSession) error
}

// PersistenceService handles CRUD operations with validation and triggers
type PersistenceService struct {
	records     ports.RecordStore
	tx          ports.Transactor
	metadata    *MetadataService
	permissions *PermissionService
	validator   *ValidationService
	formula     *formula.Engine
	triggers    TriggerRunner
	logger      *zap.Logger
	now         func() time.Time
}

// NewPersistenceService creates a new PersistenceService
func NewPersistenceService(
	records ports.RecordStore,
	tx ports.Transactor,
	metadata *MetadataService,
	permissions *PermissionService,
	validator *ValidationService,
	engine *formula.Engine,
	logger *zap.Logger,
) *PersistenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = formula.NewEngine(formula.WithLogger(logger))
	}
	if validator == nil {
		validator = NewValidationService(engine, logger)
	}
	return &PersistenceService{
		records:     records,
		tx:          tx,
		metadata:    metadata,
		permissions: permissions,
		validator:   validator,
		formula:     engine,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetTriggerRunner wires the flow executor. It is set after construction
// because flow actions write back through this service.
func (ps *PersistenceService) SetTriggerRunner(r TriggerRunner) {
	ps.triggers = r
}

func (ps *PersistenceService) runTriggers(ctx context.Context, triggerType, objectAPIName string, record, old models.SObject, caller *models.UserSession) error {
	if ps.triggers == nil {
		return nil
	}
	return ps.triggers.ExecuteTriggers(ctx, triggerType, objectAPIName, record, old, caller)
}

// queueAfterTriggers schedules the after-trigger flows of a write for when
// the write has committed. Their failures never fail the write.
func (ps *PersistenceService) queueAfterTriggers(ctx context.Context, triggerType, objectAPIName string, record, old models.SObject, caller *models.UserSession) {
	afterCommit(ctx, func(ctx context.Context) {
		if err := ps.runTriggers(ctx, triggerType, objectAPIName, record, old, caller); err != nil {
			ps.logger.Error("❌ After-trigger flows failed",
				zap.String("object", objectAPIName),
				zap.String("trigger", triggerType),
				zap.String("id", record.GetString(constants.FieldID)),
				zap.Error(err))
		}
	})
}

// prepareOperation checks the object permission and retrieves the schema
func (ps *PersistenceService) prepareOperation(ctx context.Context, objectAPIName, operation string, caller *models.UserSession) (*models.ObjectMetadata, error) {
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}
	if caller == nil || !ps.permissions.CanPerform(ctx, caller, obj.APIName, operation) {
		return nil, errors.NewPermissionError(operation, obj.APIName)
	}
	return obj, nil
}

// storedColumns lists every physical column of an object.
func storedColumns(obj *models.ObjectMetadata) []string {
	cols := make([]string, 0, len(obj.Fields))
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if fieldtypes.IsVirtual(f.Type) {
			continue
		}
		cols = append(cols, f.APIName)
		if f.IsPolymorphic() {
			cols = append(cols, f.APIName+constants.PolymorphicTypeSuffix)
		}
	}
	return cols
}

// ==================== Read Operations ====================

// Load returns every stored column of a live record, bypassing row
// security. It serves internal callers that already authorized the caller.
func (ps *PersistenceService) Load(ctx context.Context, objectAPIName, id string) (models.SObject, error) {
	obj, err := ps.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}
	return ps.records.FindByID(ctx, obj.APIName, storedColumns(obj), id, models.OpenPredicate())
}

// Get returns one record projected to the caller's visible fields, with
// formula fields computed. Rows hidden by sharing are NotFound.
func (ps *PersistenceService) Get(ctx context.Context, caller *models.UserSession, objectAPIName, id string) (models.SObject, error) {
	obj, err := ps.prepareOperation(ctx, objectAPIName, constants.PermRead, caller)
	if err != nil {
		return nil, err
	}
	pred, err := ps.permissions.RowPredicate(ctx, caller, obj.APIName, constants.PermRead)
	if err != nil {
		return nil, err
	}
	if pred.IsClosed() {
		return nil, errors.NewNotFoundError(obj.APIName, id)
	}

	visible := ps.permissions.VisibleFields(ctx, caller, obj.APIName)
	var cols []string
	var formulas []*models.FieldMetadata
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if !visible.Contains(f.APIName) || f.Type == constants.FieldTypePassword {
			continue
		}
		if f.Type == constants.FieldTypeFormula {
			formulas = append(formulas, f)
			continue
		}
		if fieldtypes.IsVirtual(f.Type) {
			continue
		}
		cols = append(cols, f.APIName)
		if f.IsPolymorphic() {
			cols = append(cols, f.APIName+constants.PolymorphicTypeSuffix)
		}
	}

	record, err := ps.records.FindByID(ctx, obj.APIName, cols, id, pred)
	if err != nil {
		return nil, err
	}
	if len(formulas) > 0 {
		fctx := &formula.Context{Record: record.Copy(), User: caller.ToMap(), Known: obj.HasField}
		for _, f := range formulas {
			record[f.APIName] = ps.formula.EvaluateCalculatedField(f, fctx)
		}
	}
	return record, nil
}
