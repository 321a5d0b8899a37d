package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// RecordLoader loads a live record without row security.
type RecordLoader interface {
	Load(ctx context.Context, objectAPIName, id string) (models.SObject, error)
}

// FlowResumer continues a flow parked on a resolved approval request.
type FlowResumer interface {
	ResumeFromApproval(ctx context.Context, item *models.ApprovalWorkItem) error
}

// ApprovalService handles business logic for approval processes
type ApprovalService struct {
	store       ports.ApprovalStore
	tx          ports.Transactor
	records     RecordLoader
	metadata    *MetadataService
	permissions *PermissionService
	formula     *formula.Engine
	flows       FlowResumer
	logger      *zap.Logger
	now         func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	store ports.ApprovalStore,
	tx ports.Transactor,
	records RecordLoader,
	metadata *MetadataService,
	permissions *PermissionService,
	engine *formula.Engine,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = formula.NewEngine(formula.WithLogger(logger))
	}
	return &ApprovalService{
		store:       store,
		tx:          tx,
		records:     records,
		metadata:    metadata,
		permissions: permissions,
		formula:     engine,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetFlowResumer wires the flow executor once it exists.
func (s *ApprovalService) SetFlowResumer(r FlowResumer) {
	s.flows = r
}

// SaveProcess validates and stores an approval process.
func (s *ApprovalService) SaveProcess(ctx context.Context, process *models.ApprovalProcess) error {
	if process == nil {
		return errors.NewValidationError("process", "approval process is required")
	}
	process.Name = strings.TrimSpace(process.Name)
	if process.Name == "" {
		return errors.NewValidationError(constants.FieldName, "approval process name is required")
	}
	obj, err := s.metadata.lookup(ctx, process.ObjectAPIName)
	if err != nil {
		return err
	}
	process.ObjectAPIName = obj.APIName

	switch process.ApproverType {
	case constants.ApproverTypeUser:
		if process.ApproverID == nil || *process.ApproverID == "" {
			return errors.NewValidationError("approver_id", "a User approval process needs an approver")
		}
	case constants.ApproverTypeManager, constants.ApproverTypeSelf:
	default:
		return errors.NewValidationError("approver_type", fmt.Sprintf("unknown approver type '%s'", process.ApproverType))
	}
	if process.EntryCondition != nil && strings.TrimSpace(*process.EntryCondition) != "" {
		if err := s.formula.Validate(*process.EntryCondition, obj.FieldSample()); err != nil {
			return err
		}
	}
	if process.ID == "" {
		process.ID = utils.GenerateID()
	}
	if err := s.store.SaveProcess(ctx, process); err != nil {
		return err
	}
	s.logger.Info("✅ Approval process saved", zap.String("process_id", process.ID), zap.String("object", obj.APIName))
	return nil
}

// findProcess returns the process to submit against: the given id, or the
// first active process of the object, by name, whose entry condition holds.
func (s *ApprovalService) findProcess(ctx context.Context, objectAPIName string, processID *string, record models.SObject, caller *models.UserSession) (*models.ApprovalProcess, error) {
	if processID != nil && *processID != "" {
		p, err := s.store.GetProcess(ctx, *processID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive || !strings.EqualFold(p.ObjectAPIName, objectAPIName) {
			return nil, errors.NewValidationError("process_id", fmt.Sprintf("approval process %s is not active for %s", p.ID, objectAPIName))
		}
		return p, nil
	}

	processes, err := s.store.ListProcesses(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}
	sort.Slice(processes, func(i, j int) bool {
		if processes[i].Name != processes[j].Name {
			return processes[i].Name < processes[j].Name
		}
		return processes[i].ID < processes[j].ID
	})
	fctx := &formula.Context{Record: record, User: caller.ToMap()}
	for _, p := range processes {
		if !p.IsActive {
			continue
		}
		if p.EntryCondition != nil && strings.TrimSpace(*p.EntryCondition) != "" {
			ok, err := s.formula.EvaluateBool(*p.EntryCondition, fctx)
			if err != nil {
				s.logger.Warn("⚠️ Approval entry condition failed",
					zap.String("process_id", p.ID), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		return p, nil
	}
	return nil, errors.NewValidationError("process_id", fmt.Sprintf("no active approval process for %s", objectAPIName))
}

// resolveApprover applies the process approver type to the submitter.
func (s *ApprovalService) resolveApprover(ctx context.Context, process *models.ApprovalProcess, submitter *models.UserSession) (string, error) {
	switch process.ApproverType {
	case constants.ApproverTypeSelf:
		return submitter.ID, nil
	case constants.ApproverTypeManager:
		id, err := s.permissions.ManagerOf(ctx, submitter.ID)
		if err != nil {
			return "", errors.NewValidationError("approver_type", fmt.Sprintf("submitter has no manager: %v", err))
		}
		return id, nil
	default:
		if process.ApproverID == nil || *process.ApproverID == "" {
			return "", errors.NewValidationError("approver_id", fmt.Sprintf("approval process %s has no approver", process.ID))
		}
		return *process.ApproverID, nil
	}
}

// submit creates the pending work item. The pending check and the insert
// share one transaction.
func (s *ApprovalService) submit(ctx context.Context, caller *models.UserSession, objectAPIName string, record models.SObject, processID *string, comments string) (*models.ApprovalWorkItem, error) {
	process, err := s.findProcess(ctx, objectAPIName, processID, record, caller)
	if err != nil {
		return nil, err
	}
	approver, err := s.resolveApprover(ctx, process, caller)
	if err != nil {
		return nil, err
	}

	item := &models.ApprovalWorkItem{
		ID:            utils.GenerateID(),
		ProcessID:     process.ID,
		ObjectAPIName: objectAPIName,
		RecordID:      record.GetString(constants.FieldID),
		Status:        constants.ApprovalStatusPending,
		SubmittedByID: caller.ID,
		SubmittedDate: s.now(),
		ApproverID:    &approver,
	}
	if c := strings.TrimSpace(comments); c != "" {
		item.Comments = &c
	}
	return item, nil
}

// Submit submits a record for approval
func (s *ApprovalService) Submit(ctx context.Context, caller *models.UserSession, objectAPIName, recordID, comments string) (*models.ApprovalWorkItem, error) {
	if caller == nil {
		return nil, errors.NewPermissionError("submit", objectAPIName)
	}
	obj, err := s.metadata.lookup(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}

	var item *models.ApprovalWorkItem
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		record, err := s.records.Load(ctx, obj.APIName, recordID)
		if err != nil {
			return err
		}
		if !s.permissions.CanAccessRecord(ctx, caller, obj.APIName, record, constants.PermRead) {
			return errors.NewPermissionError("submit", obj.APIName)
		}
		if item, err = s.submit(ctx, caller, obj.APIName, record, nil, comments); err != nil {
			return err
		}
		return s.store.CreateWorkItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("📨 Record submitted for approval",
		zap.String("work_item_id", item.ID), zap.String("object", obj.APIName), zap.String("record_id", recordID))
	return item, nil
}

// SubmitForFlow submits the triggering record of a flow approval step. The
// request remembers the instance and step to resume.
func (s *ApprovalService) SubmitForFlow(ctx context.Context, caller *models.UserSession, objectAPIName, recordID string, processID *string, instanceID, stepID string) (*models.ApprovalWorkItem, error) {
	if caller == nil {
		return nil, errors.NewPermissionError("submit", objectAPIName)
	}
	record, err := s.records.Load(ctx, objectAPIName, recordID)
	if err != nil {
		return nil, err
	}
	item, err := s.submit(ctx, caller, objectAPIName, record, processID, "")
	if err != nil {
		return nil, err
	}
	item.FlowInstanceID = &instanceID
	item.FlowStepID = &stepID
	if err := s.store.CreateWorkItem(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info("📨 Flow submitted record for approval",
		zap.String("work_item_id", item.ID), zap.String("instance_id", instanceID), zap.String("record_id", recordID))
	return item, nil
}

// Approve approves a pending request
func (s *ApprovalService) Approve(ctx context.Context, caller *models.UserSession, workItemID, comments string) (*models.ApprovalWorkItem, error) {
	return s.resolve(ctx, caller, workItemID, constants.ApprovalStatusApproved, comments)
}

// Reject rejects a pending request
func (s *ApprovalService) Reject(ctx context.Context, caller *models.UserSession, workItemID, comments string) (*models.ApprovalWorkItem, error) {
	return s.resolve(ctx, caller, workItemID, constants.ApprovalStatusRejected, comments)
}

func (s *ApprovalService) resolve(ctx context.Context, caller *models.UserSession, workItemID, status, comments string) (*models.ApprovalWorkItem, error) {
	if caller == nil {
		return nil, errors.NewPermissionError("resolve", "approval request")
	}
	item, err := s.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if !s.isAuthorizedApprover(item, caller) {
		return nil, errors.NewPermissionError("resolve", "approval request "+workItemID)
	}

	res := ports.WorkItemResolution{
		Status:       status,
		ApprovedByID: caller.ID,
		ResolvedAt:   s.now(),
	}
	if c := strings.TrimSpace(comments); c != "" {
		res.Comments = &c
	}
	resolved, err := s.store.ResolveWorkItem(ctx, workItemID, res)
	if err != nil {
		return nil, err
	}
	s.logger.Info("✅ Approval request resolved",
		zap.String("work_item_id", workItemID), zap.String("status", status), zap.String("by", caller.ID))

	if s.flows != nil {
		if err := s.flows.ResumeFromApproval(ctx, resolved); err != nil {
			s.logger.Error("❌ Failed to continue flow after approval",
				zap.String("work_item_id", workItemID), zap.Error(err))
		}
	}
	return resolved, nil
}

// isAuthorizedApprover checks the assigned approver; super users may act on
// any request.
func (s *ApprovalService) isAuthorizedApprover(item *models.ApprovalWorkItem, caller *models.UserSession) bool {
	if caller.IsSuperUser() {
		return true
	}
	return item.ApproverID != nil && *item.ApproverID == caller.ID
}

// GetPending returns the caller's pending requests.
func (s *ApprovalService) GetPending(ctx context.Context, caller *models.UserSession) ([]*models.ApprovalWorkItem, error) {
	if caller == nil {
		return nil, errors.NewPermissionError("read", "approval requests")
	}
	return s.store.ListPendingForApprover(ctx, caller.ID)
}
