package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/expression"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// ==================== Flow Definitions ====================

// GetFlow returns a flow by its ID
func (fe *FlowExecutor) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	return fe.store.GetFlow(ctx, id)
}

// SaveFlow validates and stores a flow definition, then refreshes the active
// set. Steps are stored sorted by order.
func (fe *FlowExecutor) SaveFlow(ctx context.Context, flow *models.Flow) error {
	if flow == nil {
		return errors.NewValidationError("flow", "flow is required")
	}
	flow.Name = strings.TrimSpace(flow.Name)
	if flow.Name == "" {
		return errors.NewValidationError(constants.FieldName, "flow name is required")
	}
	if flow.ID == "" {
		flow.ID = utils.GenerateID()
	}
	if flow.Status == "" {
		flow.Status = constants.FlowStatusDraft
	}
	switch flow.Status {
	case constants.FlowStatusActive, constants.FlowStatusDraft, constants.FlowStatusInactive:
	default:
		return errors.NewValidationError(constants.FieldStatus, fmt.Sprintf("unknown flow status '%s'", flow.Status))
	}
	if !constants.IsValidTrigger(flow.TriggerType) {
		return errors.NewValidationError(constants.FieldTriggerType, fmt.Sprintf("unknown trigger type '%s'", flow.TriggerType))
	}

	obj, err := fe.metadata.lookup(ctx, flow.TriggerObject)
	if err != nil {
		return err
	}
	flow.TriggerObject = obj.APIName
	sample := obj.FieldSample()
	if cond := strings.TrimSpace(flow.TriggerCondition); cond != "" {
		if err := fe.formula.Validate(cond, sample); err != nil {
			return err
		}
	}

	if err := fe.validateSteps(ctx, flow, sample); err != nil {
		return err
	}
	if err := fe.checkDuplicateActive(ctx, flow); err != nil {
		return err
	}

	flow.LastModified = fe.now()
	if err := fe.store.SaveFlow(ctx, flow); err != nil {
		return err
	}
	fe.logger.Info("✅ Flow saved",
		zap.String("flow_id", flow.ID), zap.String("name", flow.Name), zap.String("status", flow.Status))
	return fe.RefreshFlows(ctx)
}

func (fe *FlowExecutor) validateSteps(ctx context.Context, flow *models.Flow, sample map[string]interface{}) error {
	sort.SliceStable(flow.Steps, func(i, j int) bool { return flow.Steps[i].Order < flow.Steps[j].Order })

	seen := make(map[string]bool, len(flow.Steps))
	for i := range flow.Steps {
		step := &flow.Steps[i]
		if step.ID == "" {
			step.ID = utils.GenerateID()
		}
		if seen[step.ID] {
			return errors.NewValidationError("steps", fmt.Sprintf("duplicate step id '%s'", step.ID))
		}
		seen[step.ID] = true
	}

	before := constants.IsBeforeTrigger(flow.TriggerType)
	for i := range flow.Steps {
		step := &flow.Steps[i]
		if step.EntryCondition != nil && strings.TrimSpace(*step.EntryCondition) != "" {
			if err := fe.formula.Validate(*step.EntryCondition, sample); err != nil {
				return err
			}
		}

		switch step.Kind {
		case constants.FlowStepTypeAction:
			var action models.Action
			if step.Action != nil {
				action = step.Action.Action
			}
			if err := fe.actions.Validate(ctx, action, flow.TriggerType); err != nil {
				return errors.NewValidationError("steps", fmt.Sprintf("step '%s': %v", step.ID, err))
			}
		case constants.FlowStepTypeDecision:
			if step.EntryCondition == nil || strings.TrimSpace(*step.EntryCondition) == "" {
				return errors.NewValidationError("steps", fmt.Sprintf("decision step '%s' needs a condition", step.ID))
			}
		case constants.FlowStepTypeApproval:
			if before {
				return errors.NewValidationError("steps", fmt.Sprintf("approval step '%s' is only allowed on after-triggers", step.ID))
			}
		default:
			return errors.NewValidationError("steps", fmt.Sprintf("step '%s' has unknown kind '%s'", step.ID, step.Kind))
		}

		for _, ref := range []*string{step.OnSuccessStep, step.OnFailureStep} {
			if ref == nil || *ref == "" {
				continue
			}
			if idx := flow.StepIndex(*ref); idx <= i {
				return errors.NewValidationError("steps", fmt.Sprintf("step '%s' must jump to a later step, not '%s'", step.ID, *ref))
			}
		}
	}
	return nil
}

// checkDuplicateActive rejects a second active flow on the same object,
// trigger and condition.
func (fe *FlowExecutor) checkDuplicateActive(ctx context.Context, flow *models.Flow) error {
	if flow.Status != constants.FlowStatusActive {
		return nil
	}
	snap, err := fe.current(ctx)
	if err != nil {
		return err
	}
	cond := normalizeCondition(flow.TriggerCondition)
	for _, other := range snap.byTrigger[flowKey(flow.TriggerObject, flow.TriggerType)] {
		if other.ID != flow.ID && normalizeCondition(other.TriggerCondition) == cond {
			return errors.NewConflictError("Flow", constants.FieldTriggerType, other.Name)
		}
	}
	return nil
}

func normalizeCondition(cond string) string {
	return strings.Join(strings.Fields(expression.Normalize(cond)), "")
}

// DuplicateActiveFlows groups the names of active flows sharing an object,
// trigger and condition. Only groups with more than one flow are returned.
func (fe *FlowExecutor) DuplicateActiveFlows(ctx context.Context) ([][]string, error) {
	snap, err := fe.current(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]string)
	for key, flows := range snap.byTrigger {
		for _, f := range flows {
			k := key + "|" + normalizeCondition(f.TriggerCondition)
			groups[k] = append(groups[k], f.Name)
		}
	}

	keys := make([]string, 0, len(groups))
	for k, names := range groups {
		if len(names) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out, nil
}
