package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// ==================== Insert Operations ====================

// Insert creates a new record. The order is fixed: permissions, values and
// validation rules, before-triggers, the write, after-triggers. The
// before-triggers and the write share one transaction; after-triggers run
// once it has committed.
func (ps *PersistenceService) Insert(
	ctx context.Context,
	caller *models.UserSession,
	objectAPIName string,
	data models.SObject,
) (models.SObject, error) {
	obj, err := ps.prepareOperation(ctx, objectAPIName, constants.PermCreate, caller)
	if err != nil {
		return nil, err
	}
	if err := ps.permissions.CheckWritePayload(ctx, caller, obj.APIName, data); err != nil {
		return nil, err
	}

	record := data.Copy()
	ps.validator.ApplyDefaults(obj, record)
	if err := ps.prepareValues(obj, record, true); err != nil {
		return nil, err
	}
	rules, err := ps.metadata.GetValidationRules(ctx, obj.APIName)
	if err != nil {
		return nil, err
	}
	if err := ps.validator.EvaluateRules(obj, record, nil, caller, rules); err != nil {
		return nil, err
	}

	stampInsert(record, utils.GenerateID(), caller, ps.now())

	ctx, flush := deferAfterCommit(ctx)
	err = ps.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before := record.Copy()
		if err := ps.runTriggers(ctx, constants.TriggerBeforeCreate, obj.APIName, record, nil, caller); err != nil {
			return err
		}
		if len(changedKeys(before, record)) > 0 {
			if err := ps.prepareValues(obj, record, true); err != nil {
				return err
			}
		}

		if err := ps.records.Insert(ctx, obj.APIName, storageValues(obj, record)); err != nil {
			return err
		}
		ps.queueAfterTriggers(ctx, constants.TriggerAfterCreate, obj.APIName, record.Copy(), nil, caller)
		return nil
	})
	flush(err == nil)
	if err != nil {
		return nil, err
	}

	ps.logger.Info("✨ Created record",
		zap.String("object", obj.APIName),
		zap.String("id", record.GetString(constants.FieldID)),
		zap.String("user", caller.ID))
	return record, nil
}
