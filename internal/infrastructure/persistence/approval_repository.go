package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

var processColumns = []string{
	"id", "name", "object_api_name", "approver_type", "approver_id", "entry_condition", "is_active",
	"created_date", "last_modified_date",
}

var workItemColumns = []string{
	"id", "process_id", "object_api_name", "record_id", "status", "submitted_by_id", "submitted_date",
	"approver_id", "approved_by_id", "approved_date", "comments", "approver_comments", "flow_instance_id",
	"flow_step_id",
}

// ApprovalRepository persists approval processes and work items.
type ApprovalRepository struct {
	db     *database.TiDBConnection
	tm     *TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *database.TiDBConnection, logger *zap.Logger) *ApprovalRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalRepository{db: db, tm: NewTransactionManager(db), logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// openKey identifies the single pending request allowed per (process, record).
func openKey(processID, recordID string) string {
	return processID + ":" + recordID
}

// SaveProcess upserts an approval process by id.
func (r *ApprovalRepository) SaveProcess(ctx context.Context, p *models.ApprovalProcess) error {
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s %s",
		constants.TableApprovalProcess, strings.Join(processColumns, ", "), placeholders(len(processColumns)), KeywordOnDuplicate,
		valuesUpdateClause([]string{"name", "object_api_name", "approver_type", "approver_id", "entry_condition", "is_active", "last_modified_date"}))
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.ObjectAPIName, string(p.ApproverType), p.ApproverID,
		p.EntryCondition, p.IsActive, now, now)
	if err != nil {
		return translateDuplicate(err, "approval process", constants.FieldName, p.Name)
	}
	return nil
}

// GetProcess returns the process or NotFoundError.
func (r *ApprovalRepository) GetProcess(ctx context.Context, id string) (*models.ApprovalProcess, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(processColumns[:7], ", "), constants.TableApprovalProcess)
	p, err := scanProcess(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("approval process", id)
	}
	return p, err
}

// ListProcesses returns the processes of an object ordered by name, id.
func (r *ApprovalRepository) ListProcesses(ctx context.Context, objectAPIName string) ([]*models.ApprovalProcess, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE object_api_name = ? ORDER BY name, id", strings.Join(processColumns[:7], ", "), constants.TableApprovalProcess)
	rows, err := r.db.QueryContext(ctx, query, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	processes := make([]*models.ApprovalProcess, 0)
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, p)
	}
	return processes, rows.Err()
}

func scanProcess(row Scannable) (*models.ApprovalProcess, error) {
	var p models.ApprovalProcess
	var approverType string
	var approverID, condition sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.ObjectAPIName, &approverType, &approverID, &condition, &p.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval process: %w", err)
	}
	p.ApproverType = constants.ApproverType(approverType)
	p.ApproverID = nullString(approverID)
	p.EntryCondition = nullString(condition)
	return &p, nil
}

// CreateWorkItem inserts a pending work item. The pending pre-check runs
// inside the transaction; the unique open_key closes the remaining race.
func (r *ApprovalRepository) CreateWorkItem(ctx context.Context, item *models.ApprovalWorkItem) error {
	return r.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var pending int
		check := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE process_id = ? AND record_id = ? AND status = ?", constants.TableApprovalWorkItem)
		if err := tx.QueryRowContext(ctx, check, item.ProcessID, item.RecordID, constants.ApprovalStatusPending).Scan(&pending); err != nil {
			return fmt.Errorf("failed to check pending approvals: %w", err)
		}
		if pending > 0 {
			return appErrors.NewConflictError("approval request", "record_id", item.RecordID)
		}

		cols := append(append([]string{}, workItemColumns...), "open_key")
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", constants.TableApprovalWorkItem, strings.Join(cols, ", "), placeholders(len(cols)))
		_, err := tx.ExecContext(ctx, query, item.ID, item.ProcessID, item.ObjectAPIName, item.RecordID, item.Status,
			item.SubmittedByID, item.SubmittedDate, item.ApproverID, item.ApprovedByID, item.ApprovedDate, item.Comments,
			item.ApproverComments, item.FlowInstanceID, item.FlowStepID, openKey(item.ProcessID, item.RecordID))
		if err != nil {
			return translateDuplicate(err, "approval request", "record_id", item.RecordID)
		}
		return nil
	})
}

// GetWorkItem returns the work item or NotFoundError.
func (r *ApprovalRepository) GetWorkItem(ctx context.Context, id string) (*models.ApprovalWorkItem, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(workItemColumns, ", "), constants.TableApprovalWorkItem)
	item, err := scanWorkItem(r.tm.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("approval request", id)
	}
	return item, err
}

// ResolveWorkItem locks the row, rejects terminal items and applies the resolution.
func (r *ApprovalRepository) ResolveWorkItem(ctx context.Context, id string, res ports.WorkItemResolution) (*models.ApprovalWorkItem, error) {
	var resolved *models.ApprovalWorkItem
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? FOR UPDATE", strings.Join(workItemColumns, ", "), constants.TableApprovalWorkItem)
		item, err := scanWorkItem(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewNotFoundError("approval request", id)
		}
		if err != nil {
			return err
		}
		if !item.IsPending() {
			return appErrors.NewConflictError("approval request", "", fmt.Sprintf("request %s is already %s", id, item.Status))
		}

		update := fmt.Sprintf("UPDATE %s SET status = ?, approved_by_id = ?, approved_date = ?, approver_comments = ?, open_key = NULL WHERE id = ? AND status = ?",
			constants.TableApprovalWorkItem)
		if _, err := tx.ExecContext(ctx, update, res.Status, res.ApprovedByID, res.ResolvedAt, res.Comments, id, constants.ApprovalStatusPending); err != nil {
			return fmt.Errorf("failed to resolve approval request %s: %w", id, err)
		}

		item.Status = res.Status
		approvedBy := res.ApprovedByID
		item.ApprovedByID = &approvedBy
		at := res.ResolvedAt
		item.ApprovedDate = &at
		item.ApproverComments = res.Comments
		resolved = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("✅ Approval request resolved", zap.String("work_item_id", id), zap.String("status", res.Status))
	return resolved, nil
}

// ListPendingForApprover returns the approver's inbox, oldest first.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*models.ApprovalWorkItem, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE approver_id = ? AND status = ? ORDER BY submitted_date, id",
		strings.Join(workItemColumns, ", "), constants.TableApprovalWorkItem)
	rows, err := r.db.QueryContext(ctx, query, approverID, constants.ApprovalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*models.ApprovalWorkItem, 0)
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanWorkItem(row Scannable) (*models.ApprovalWorkItem, error) {
	var w models.ApprovalWorkItem
	var approverID, approvedBy, comments, approverComments, instanceID, stepID sql.NullString
	var submitted, approved sql.NullTime
	if err := row.Scan(&w.ID, &w.ProcessID, &w.ObjectAPIName, &w.RecordID, &w.Status, &w.SubmittedByID, &submitted,
		&approverID, &approvedBy, &approved, &comments, &approverComments, &instanceID, &stepID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}
	w.SubmittedDate = timeOrZero(submitted)
	w.ApproverID = nullString(approverID)
	w.ApprovedByID = nullString(approvedBy)
	w.ApprovedDate = nullTime(approved)
	w.Comments = nullString(comments)
	w.ApproverComments = nullString(approverComments)
	w.FlowInstanceID = nullString(instanceID)
	w.FlowStepID = nullString(stepID)
	return &w, nil
}
