package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// Delete soft-deletes a record the caller may delete. Child lookups keep
// pointing at the row, which stays in the table with is_deleted set.
func (ps *PersistenceService) Delete(
	ctx context.Context,
	caller *models.UserSession,
	objectAPIName, id string,
) error {
	obj, err := ps.prepareOperation(ctx, objectAPIName, constants.PermDelete, caller)
	if err != nil {
		return err
	}
	pred, err := ps.permissions.RowPredicate(ctx, caller, obj.APIName, constants.PermDelete)
	if err != nil {
		return err
	}
	if pred.IsClosed() {
		return errors.NewNotFoundError(obj.APIName, id)
	}

	ctx, flush := deferAfterCommit(ctx)
	err = ps.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		old, err := ps.records.FindByID(ctx, obj.APIName, storedColumns(obj), id, pred)
		if err != nil {
			return err
		}
		if err := ps.runTriggers(ctx, constants.TriggerBeforeDelete, obj.APIName, old.Copy(), old, caller); err != nil {
			return err
		}

		audit := models.SObject{}
		stampUpdate(audit, caller, ps.now())
		n, err := ps.records.SoftDelete(ctx, obj.APIName, id, audit, pred)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NewNotFoundError(obj.APIName, id)
		}
		ps.queueAfterTriggers(ctx, constants.TriggerAfterDelete, obj.APIName, old.Copy(), old, caller)
		return nil
	})
	flush(err == nil)
	if err != nil {
		return err
	}

	ps.logger.Info("🗑️ Deleted record",
		zap.String("object", obj.APIName), zap.String("id", id), zap.String("user", caller.ID))
	return nil
}
