package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain"
	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/formula"
	pkgmodels "github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// MaxTriggerDepth bounds trigger recursion through record-writing actions.
const MaxTriggerDepth = 5

type triggerDepthKey struct{}

func triggerDepth(ctx context.Context) int {
	d, _ := ctx.Value(triggerDepthKey{}).(int)
	return d
}

// ApprovalSubmitter submits a record for approval on behalf of a flow step.
type ApprovalSubmitter interface {
	SubmitForFlow(ctx context.Context, caller *pkgmodels.UserSession, objectAPIName, recordID string, processID *string, instanceID, stepID string) (*pkgmodels.ApprovalWorkItem, error)
}

// flowSnapshot indexes active flows by object and trigger.
type flowSnapshot struct {
	all       []*models.Flow
	byTrigger map[string][]*models.Flow
}

func flowKey(objectAPIName, triggerType string) string {
	return strings.ToLower(objectAPIName) + "|" + triggerType
}

func newFlowSnapshot(flows []*models.Flow) *flowSnapshot {
	snap := &flowSnapshot{all: flows, byTrigger: make(map[string][]*models.Flow)}
	for _, f := range flows {
		if f.Status != constants.FlowStatusActive {
			continue
		}
		key := flowKey(f.TriggerObject, f.TriggerType)
		snap.byTrigger[key] = append(snap.byTrigger[key], f)
	}
	for _, list := range snap.byTrigger {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Name != list[j].Name {
				return list[i].Name < list[j].Name
			}
			return list[i].ID < list[j].ID
		})
	}
	return snap
}

// FlowExecutor runs trigger-bound flows around record mutations.
type FlowExecutor struct {
	store     ports.FlowStore
	metadata  *MetadataService
	formula   *formula.Engine
	actions   *ActionHandlerRegistry
	approvals ApprovalSubmitter
	states    *domain.FlowStateMachine
	logger    *zap.Logger
	now       func() time.Time

	snapshot atomic.Pointer[flowSnapshot]
	writeMu  sync.Mutex
}

// NewFlowExecutor creates a new FlowExecutor
func NewFlowExecutor(store ports.FlowStore, metadata *MetadataService, engine *formula.Engine, actions *ActionHandlerRegistry, logger *zap.Logger) *FlowExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = formula.NewEngine(formula.WithLogger(logger))
	}
	if actions == nil {
		actions = NewActionHandlerRegistry()
	}
	return &FlowExecutor{
		store:    store,
		metadata: metadata,
		formula:  engine,
		actions:  actions,
		states:   domain.NewFlowStateMachine(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetApprovalSubmitter wires the approval service once it exists.
func (fe *FlowExecutor) SetApprovalSubmitter(a ApprovalSubmitter) {
	fe.approvals = a
}

// Actions returns the handler registry.
func (fe *FlowExecutor) Actions() *ActionHandlerRegistry {
	return fe.actions
}

// RefreshFlows reloads flow definitions.
func (fe *FlowExecutor) RefreshFlows(ctx context.Context) error {
	fe.writeMu.Lock()
	defer fe.writeMu.Unlock()

	flows, err := fe.store.ListFlows(ctx)
	if err != nil {
		return errors.NewInternalError("failed to load flows", err)
	}
	fe.snapshot.Store(newFlowSnapshot(flows))
	fe.logger.Debug("🔄 Flows refreshed", zap.Int("flows", len(flows)))
	return nil
}

func (fe *FlowExecutor) current(ctx context.Context) (*flowSnapshot, error) {
	if snap := fe.snapshot.Load(); snap != nil {
		return snap, nil
	}
	if err := fe.RefreshFlows(ctx); err != nil {
		return nil, err
	}
	return fe.snapshot.Load(), nil
}

// ListFlows returns every flow definition.
func (fe *FlowExecutor) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	snap, err := fe.current(ctx)
	if err != nil {
		return nil, err
	}
	return snap.all, nil
}

// ExecuteTriggers runs every active flow bound to (object, trigger) in name
// order. Before-trigger flows may mutate record and their failure is
// returned; after-trigger failures are logged only.
func (fe *FlowExecutor) ExecuteTriggers(
	ctx context.Context,
	triggerType, objectAPIName string,
	record, old pkgmodels.SObject,
	caller *pkgmodels.UserSession,
) error {
	before := constants.IsBeforeTrigger(triggerType)
	snap, err := fe.current(ctx)
	if err != nil {
		if before {
			return err
		}
		fe.logger.Error("❌ Flows unavailable", zap.Error(err))
		return nil
	}
	flows := snap.byTrigger[flowKey(objectAPIName, triggerType)]
	if len(flows) == 0 {
		return nil
	}

	depth := triggerDepth(ctx)
	if depth >= MaxTriggerDepth {
		err := errors.NewValidationError("", fmt.Sprintf("flow recursion deeper than %d levels", MaxTriggerDepth))
		if before {
			return err
		}
		fe.logger.Warn("⚠️ Flow recursion limit reached",
			zap.String("object", objectAPIName), zap.String("trigger", triggerType))
		return nil
	}
	obj, err := fe.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, triggerDepthKey{}, depth+1)
	for _, flow := range flows {
		actx := &ActionContext{
			ObjectAPIName: obj.APIName,
			TriggerType:   triggerType,
			FlowID:        flow.ID,
			Record:        record,
			Old:           old,
			IsNew:         triggerType == constants.TriggerBeforeCreate || triggerType == constants.TriggerAfterCreate,
			Caller:        caller,
			Known:         obj.HasField,
		}
		state, stepID, err := fe.runFlow(ctx, flow, actx)
		if err == nil {
			fe.logger.Debug("🔁 Flow finished", zap.String("flow_id", flow.ID), zap.String("state", string(state)))
			continue
		}
		if before {
			return fmt.Errorf("flow %s failed: %w", flow.Name, err)
		}
		fe.logger.Error("❌ After-trigger flow failed",
			zap.String("flow_id", flow.ID),
			zap.String("step_id", stepID),
			zap.String("record_id", record.GetString(constants.FieldID)),
			zap.Error(err))
	}
	return nil
}

// hasApprovalStep reports whether a run of flow may suspend.
func hasApprovalStep(flow *models.Flow) bool {
	for i := range flow.Steps {
		if flow.Steps[i].Kind == constants.FlowStepTypeApproval {
			return true
		}
	}
	return false
}

// runFlow evaluates the trigger condition and executes the steps. It returns
// the final state and the step that failed, if any.
func (fe *FlowExecutor) runFlow(ctx context.Context, flow *models.Flow, actx *ActionContext) (domain.FlowState, string, error) {
	state, err := fe.states.Transition(domain.FlowStateNotTriggered, domain.TransitionTrigger)
	if err != nil {
		return state, "", err
	}

	if cond := strings.TrimSpace(flow.TriggerCondition); cond != "" {
		ok, err := fe.formula.EvaluateBool(cond, actx.FormulaContext())
		if err != nil {
			state, _ = fe.states.Transition(state, domain.TransitionFail)
			return state, "", err
		}
		if !ok {
			state, err = fe.states.Transition(state, domain.TransitionSkip)
			return state, "", err
		}
	}
	if state, err = fe.states.Transition(state, domain.TransitionStart); err != nil {
		return state, "", err
	}

	var instance *models.FlowInstance
	if hasApprovalStep(flow) {
		instance = &models.FlowInstance{
			ID:            utils.GenerateID(),
			FlowID:        flow.ID,
			ObjectAPIName: actx.ObjectAPIName,
			RecordID:      actx.Record.GetString(constants.FieldID),
			Status:        domain.InstanceStatus(state),
			ContextData:   encodeFlowContext(actx),
			StartedDate:   fe.now(),
		}
		if actx.Caller != nil {
			instance.StartedByID = actx.Caller.ID
		}
		if err := fe.store.SaveFlowInstance(ctx, instance); err != nil {
			state, _ = fe.states.Transition(state, domain.TransitionFail)
			return state, "", err
		}
	}
	return fe.executeSteps(ctx, flow, instance, 0, actx, state)
}

// nextIndex resolves a step reference, defaulting to fallback. A reference
// to a missing or earlier step ends the flow.
func nextIndex(flow *models.Flow, ref *string, current, fallback int) int {
	if ref == nil || *ref == "" {
		return fallback
	}
	if i := flow.StepIndex(*ref); i > current {
		return i
	}
	return len(flow.Steps)
}

// executeSteps runs steps from index start. Steps only jump forward, so the
// loop ends after at most len(flow.Steps) iterations.
func (fe *FlowExecutor) executeSteps(
	ctx context.Context,
	flow *models.Flow,
	instance *models.FlowInstance,
	start int,
	actx *ActionContext,
	state domain.FlowState,
) (domain.FlowState, string, error) {
	fail := func(stepID string, cause error) (domain.FlowState, string, error) {
		next, err := fe.states.Transition(state, domain.TransitionFail)
		if err != nil {
			return state, stepID, err
		}
		fe.finishInstance(ctx, instance, next, stepID, cause)
		return next, stepID, cause
	}

	for i := start; i < len(flow.Steps); {
		step := &flow.Steps[i]
		actx.StepID = step.ID

		cond := true
		if step.EntryCondition != nil && strings.TrimSpace(*step.EntryCondition) != "" {
			ok, err := fe.formula.EvaluateBool(*step.EntryCondition, actx.FormulaContext())
			if err != nil {
				return fail(step.ID, err)
			}
			cond = ok
		}

		switch step.Kind {
		case constants.FlowStepTypeDecision:
			if cond {
				i = nextIndex(flow, step.OnSuccessStep, i, i+1)
			} else {
				i = nextIndex(flow, step.OnFailureStep, i, len(flow.Steps))
			}
			continue

		case constants.FlowStepTypeAction:
			if !cond {
				i++
				continue
			}
			var action models.Action
			if step.Action != nil {
				action = step.Action.Action
			}
			if err := fe.actions.Execute(ctx, actx, action); err != nil {
				return fail(step.ID, err)
			}

		case constants.FlowStepTypeApproval:
			if !cond {
				i++
				continue
			}
			if err := fe.submitApproval(ctx, flow, instance, step, actx); err != nil {
				return fail(step.ID, err)
			}
			next, err := fe.states.Transition(state, domain.TransitionSuspend)
			if err != nil {
				return state, step.ID, err
			}
			instance.Status = domain.InstanceStatus(next)
			instance.CurrentStepID = &step.ID
			if err := fe.store.SaveFlowInstance(ctx, instance); err != nil {
				return next, step.ID, err
			}
			fe.logger.Info("⏸️ Flow suspended for approval",
				zap.String("flow_id", flow.ID), zap.String("step_id", step.ID), zap.String("instance_id", instance.ID))
			return next, step.ID, nil

		default:
			return fail(step.ID, fmt.Errorf("unknown step kind '%s'", step.Kind))
		}
		i = nextIndex(flow, step.OnSuccessStep, i, i+1)
	}

	next, err := fe.states.Transition(state, domain.TransitionComplete)
	if err != nil {
		return state, "", err
	}
	fe.finishInstance(ctx, instance, next, "", nil)
	return next, "", nil
}

func (fe *FlowExecutor) submitApproval(ctx context.Context, flow *models.Flow, instance *models.FlowInstance, step *models.FlowStep, actx *ActionContext) error {
	if fe.approvals == nil {
		return fmt.Errorf("approval steps are not available")
	}
	if instance == nil {
		return fmt.Errorf("flow %s has no instance to suspend", flow.ID)
	}
	recordID := actx.Record.GetString(constants.FieldID)
	_, err := fe.approvals.SubmitForFlow(ctx, actx.Caller, actx.ObjectAPIName, recordID, step.ProcessID, instance.ID, step.ID)
	return err
}

// finishInstance persists a terminal state. Persistence failures are logged;
// the run outcome stands.
func (fe *FlowExecutor) finishInstance(ctx context.Context, instance *models.FlowInstance, state domain.FlowState, stepID string, cause error) {
	if instance == nil {
		return
	}
	now := fe.now()
	instance.Status = domain.InstanceStatus(state)
	instance.CompletedDate = &now
	if stepID != "" {
		instance.CurrentStepID = &stepID
	}
	if cause != nil {
		msg := cause.Error()
		instance.ErrorMessage = &msg
	}
	if err := fe.store.SaveFlowInstance(context.WithoutCancel(ctx), instance); err != nil {
		fe.logger.Error("❌ Failed to save flow instance",
			zap.String("instance_id", instance.ID), zap.String("status", instance.Status), zap.Error(err))
	}
}
