package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain"
	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	pkgmodels "github.com/nexuscrm/kernel/pkg/models"
)

// Keys of a suspended instance's context data.
const (
	flowCtxRecord      = "record"
	flowCtxOld         = "old"
	flowCtxTriggerType = "trigger_type"
	flowCtxIsNew       = "is_new"
	flowCtxCaller      = "caller"
)

// encodeFlowContext captures what a resumed run needs to rebuild its
// ActionContext.
func encodeFlowContext(actx *ActionContext) map[string]interface{} {
	data := map[string]interface{}{
		flowCtxRecord:      map[string]interface{}(actx.Record.Copy()),
		flowCtxTriggerType: actx.TriggerType,
		flowCtxIsNew:       actx.IsNew,
	}
	if actx.Old != nil {
		data[flowCtxOld] = map[string]interface{}(actx.Old.Copy())
	}
	if actx.Caller != nil {
		caller := map[string]interface{}{
			constants.FieldID:        actx.Caller.ID,
			constants.FieldName:      actx.Caller.Name,
			constants.FieldProfileID: actx.Caller.ProfileID,
		}
		if actx.Caller.RoleID != nil {
			caller[constants.FieldRoleID] = *actx.Caller.RoleID
		}
		data[flowCtxCaller] = caller
	}
	return data
}

func asSObject(v interface{}) pkgmodels.SObject {
	switch m := v.(type) {
	case pkgmodels.SObject:
		return m
	case map[string]interface{}:
		return pkgmodels.SObject(m)
	}
	return nil
}

// decodeFlowContext rebuilds the ActionContext stored by encodeFlowContext.
func decodeFlowContext(instance *models.FlowInstance, obj *pkgmodels.ObjectMetadata) *ActionContext {
	data := instance.ContextData
	actx := &ActionContext{
		ObjectAPIName: obj.APIName,
		FlowID:        instance.FlowID,
		Record:        asSObject(data[flowCtxRecord]),
		Old:           asSObject(data[flowCtxOld]),
		Known:         obj.HasField,
	}
	if actx.Record == nil {
		actx.Record = pkgmodels.SObject{constants.FieldID: instance.RecordID}
	}
	actx.TriggerType, _ = data[flowCtxTriggerType].(string)
	actx.IsNew, _ = data[flowCtxIsNew].(bool)

	if c := asSObject(data[flowCtxCaller]); c != nil {
		actx.Caller = &pkgmodels.UserSession{
			ID:        c.GetString(constants.FieldID),
			Name:      c.GetString(constants.FieldName),
			ProfileID: c.GetString(constants.FieldProfileID),
		}
		if role := c.GetString(constants.FieldRoleID); role != "" {
			actx.Caller.RoleID = &role
		}
	}
	return actx
}

// ResumeFromApproval continues the flow instance suspended on a resolved
// work item. Rejection fails the instance; approval continues after the
// approval step. Items not raised by a flow are ignored.
func (fe *FlowExecutor) ResumeFromApproval(ctx context.Context, item *pkgmodels.ApprovalWorkItem) error {
	if item == nil || item.FlowInstanceID == nil || *item.FlowInstanceID == "" {
		return nil
	}
	instance, err := fe.store.GetFlowInstance(ctx, *item.FlowInstanceID)
	if err != nil {
		return err
	}
	state := domain.StateFromInstanceStatus(instance.Status)
	if state != domain.FlowStateSuspended {
		return errors.NewConflictError("FlowInstance", constants.FieldStatus, instance.Status)
	}

	stepID := ""
	if item.FlowStepID != nil {
		stepID = *item.FlowStepID
	} else if instance.CurrentStepID != nil {
		stepID = *instance.CurrentStepID
	}

	if item.Status == constants.ApprovalStatusRejected {
		next, err := fe.states.Transition(state, domain.TransitionFail)
		if err != nil {
			return err
		}
		fe.finishInstance(ctx, instance, next, stepID, fmt.Errorf("approval request %s was rejected", item.ID))
		fe.logger.Info("⛔ Flow ended by rejection",
			zap.String("instance_id", instance.ID), zap.String("work_item_id", item.ID))
		return nil
	}
	if item.Status != constants.ApprovalStatusApproved {
		return errors.NewValidationError(constants.FieldStatus, fmt.Sprintf("work item %s is still %s", item.ID, item.Status))
	}

	flow, err := fe.store.GetFlow(ctx, instance.FlowID)
	if err != nil {
		next, _ := fe.states.Transition(state, domain.TransitionFail)
		fe.finishInstance(ctx, instance, next, stepID, err)
		return err
	}
	obj, err := fe.metadata.lookup(ctx, instance.ObjectAPIName)
	if err != nil {
		next, _ := fe.states.Transition(state, domain.TransitionFail)
		fe.finishInstance(ctx, instance, next, stepID, err)
		return err
	}

	if state, err = fe.states.Transition(state, domain.TransitionResume); err != nil {
		return err
	}
	instance.Status = domain.InstanceStatus(state)

	start := len(flow.Steps)
	if idx := flow.StepIndex(stepID); idx >= 0 {
		start = nextIndex(flow, flow.Steps[idx].OnSuccessStep, idx, idx+1)
	}

	actx := decodeFlowContext(instance, obj)
	ctx = context.WithValue(ctx, triggerDepthKey{}, triggerDepth(ctx)+1)
	fe.logger.Info("▶️ Flow resumed",
		zap.String("flow_id", flow.ID), zap.String("instance_id", instance.ID), zap.String("work_item_id", item.ID))

	_, failedStep, err := fe.executeSteps(ctx, flow, instance, start, actx, state)
	if err != nil {
		fe.logger.Error("❌ Resumed flow failed",
			zap.String("flow_id", flow.ID), zap.String("step_id", failedStep), zap.Error(err))
	}
	return err
}

// GetFlowInstance returns one flow instance.
func (fe *FlowExecutor) GetFlowInstance(ctx context.Context, id string) (*models.FlowInstance, error) {
	return fe.store.GetFlowInstance(ctx, id)
}
