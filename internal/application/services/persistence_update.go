package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== Update Operations ====================

// Update applies a partial change to a record the caller may edit and
// returns the merged record. Rules and triggers see the merged record with
// the stored one as prior.
func (ps *PersistenceService) Update(
	ctx context.Context,
	caller *models.UserSession,
	objectAPIName, id string,
	data models.SObject,
) (models.SObject, error) {
	obj, err := ps.prepareOperation(ctx, objectAPIName, constants.PermEdit, caller)
	if err != nil {
		return nil, err
	}
	if err := ps.permissions.CheckWritePayload(ctx, caller, obj.APIName, data); err != nil {
		return nil, err
	}
	pred, err := ps.permissions.RowPredicate(ctx, caller, obj.APIName, constants.PermEdit)
	if err != nil {
		return nil, err
	}
	if pred.IsClosed() {
		return nil, errors.NewNotFoundError(obj.APIName, id)
	}

	changes := data.Copy()
	if err := ps.prepareValues(obj, changes, false); err != nil {
		return nil, err
	}
	rules, err := ps.metadata.GetValidationRules(ctx, obj.APIName)
	if err != nil {
		return nil, err
	}

	var merged models.SObject
	ctx, flush := deferAfterCommit(ctx)
	err = ps.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := ps.records.FindByID(ctx, obj.APIName, storedColumns(obj), id, pred)
		if err != nil {
			return err
		}
		merged = old.Copy()
		for k, v := range changes {
			merged[k] = v
		}
		if err := ps.validator.EvaluateRules(obj, merged, old, caller, rules); err != nil {
			return err
		}

		before := merged.Copy()
		if err := ps.runTriggers(ctx, constants.TriggerBeforeUpdate, obj.APIName, merged, old, caller); err != nil {
			return err
		}
		for _, k := range changedKeys(before, merged) {
			changes[k] = merged[k]
		}
		if err := ps.prepareValues(obj, changes, false); err != nil {
			return err
		}
		for k, v := range changes {
			merged[k] = v
		}

		stampUpdate(changes, caller, ps.now())
		stampUpdate(merged, caller, ps.now())
		delete(changes, constants.FieldID)

		n, err := ps.records.Update(ctx, obj.APIName, id, storageValues(obj, changes), pred)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NewNotFoundError(obj.APIName, id)
		}
		ps.queueAfterTriggers(ctx, constants.TriggerAfterUpdate, obj.APIName, merged.Copy(), old, caller)
		return nil
	})
	flush(err == nil)
	if err != nil {
		return nil, err
	}

	ps.logger.Info("📝 Updated record",
		zap.String("object", obj.APIName), zap.String("id", id), zap.String("user", caller.ID))
	return merged, nil
}
