package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
)

var flowColumns = []string{
	"id", "name", "description", "status", "trigger_object", "trigger_type",
	"trigger_condition", "steps", "created_date", "last_modified_date",
}

var flowInstanceColumns = []string{
	"id", "flow_id", "object_api_name", "record_id", "status", "current_step_id",
	"context", "error_message", "started_by_id", "started_date", "completed_date",
	"last_modified_date",
}

// FlowRepository persists flows and flow instances.
type FlowRepository struct {
	db  *database.TiDBConnection
	tm  *TransactionManager
	now func() time.Time
}

// NewFlowRepository creates a new FlowRepository
func NewFlowRepository(db *database.TiDBConnection) *FlowRepository {
	return &FlowRepository{db: db, tm: NewTransactionManager(db), now: func() time.Time { return time.Now().UTC() }}
}

// ListFlows returns every flow ordered by name, id.
func (r *FlowRepository) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY name, id", strings.Join(flowColumns, ", "), constants.TableFlow)
	rows, err := r.tm.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load flows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	flows := make([]*models.Flow, 0)
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

// GetFlow returns the flow or NotFoundError.
func (r *FlowRepository) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(flowColumns, ", "), constants.TableFlow)
	flow, err := scanFlow(r.tm.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("flow", id)
	}
	return flow, err
}

func scanFlow(row Scannable) (*models.Flow, error) {
	var f models.Flow
	var description, condition, steps sql.NullString
	var created, modified sql.NullTime
	if err := row.Scan(&f.ID, &f.Name, &description, &f.Status, &f.TriggerObject, &f.TriggerType,
		&condition, &steps, &created, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}
	f.Description = nullString(description)
	f.TriggerCondition = condition.String
	f.LastModified = timeOrZero(modified)
	if err := unmarshalJSON(steps, &f.Steps); err != nil {
		return nil, fmt.Errorf("flow %s steps: %w", f.ID, err)
	}
	return &f, nil
}

// SaveFlow upserts a flow by id.
func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	steps, err := marshalJSON(flow.Steps)
	if err != nil {
		return err
	}
	var condition interface{}
	if flow.TriggerCondition != "" {
		condition = flow.TriggerCondition
	}
	now := r.now()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s %s",
		constants.TableFlow, strings.Join(flowColumns, ", "), placeholders(len(flowColumns)), KeywordOnDuplicate,
		valuesUpdateClause([]string{"name", "description", "status", "trigger_object", "trigger_type", "trigger_condition", "steps", "last_modified_date"}))
	_, err = r.tm.Executor(ctx).ExecContext(ctx, query, flow.ID, flow.Name, flow.Description, flow.Status,
		flow.TriggerObject, flow.TriggerType, condition, steps, now, now)
	if err != nil {
		return translateDuplicate(err, "flow", constants.FieldName, flow.Name)
	}
	flow.LastModified = now
	return nil
}

// SaveFlowInstance upserts a flow instance by id.
func (r *FlowRepository) SaveFlowInstance(ctx context.Context, instance *models.FlowInstance) error {
	contextData, err := marshalJSON(instance.ContextData)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s %s",
		constants.TableFlowInstance, strings.Join(flowInstanceColumns, ", "), placeholders(len(flowInstanceColumns)), KeywordOnDuplicate,
		valuesUpdateClause([]string{"status", "current_step_id", "context", "error_message", "completed_date", "last_modified_date"}))
	_, err = r.tm.Executor(ctx).ExecContext(ctx, query, instance.ID, instance.FlowID, instance.ObjectAPIName, instance.RecordID,
		instance.Status, instance.CurrentStepID, contextData, instance.ErrorMessage, instance.StartedByID,
		instance.StartedDate, instance.CompletedDate, r.now())
	if err != nil {
		return fmt.Errorf("failed to save flow instance %s: %w", instance.ID, err)
	}
	return nil
}

// GetFlowInstance returns the instance or NotFoundError.
func (r *FlowRepository) GetFlowInstance(ctx context.Context, id string) (*models.FlowInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(flowInstanceColumns[:len(flowInstanceColumns)-1], ", "), constants.TableFlowInstance)

	var inst models.FlowInstance
	var stepID, contextData, errMsg sql.NullString
	var started, completed sql.NullTime
	err := r.tm.Executor(ctx).QueryRowContext(ctx, query, id).Scan(&inst.ID, &inst.FlowID, &inst.ObjectAPIName, &inst.RecordID,
		&inst.Status, &stepID, &contextData, &errMsg, &inst.StartedByID, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewNotFoundError("flow instance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow instance %s: %w", id, err)
	}
	inst.CurrentStepID = nullString(stepID)
	inst.ErrorMessage = nullString(errMsg)
	inst.StartedDate = timeOrZero(started)
	inst.CompletedDate = nullTime(completed)
	if err := unmarshalJSON(contextData, &inst.ContextData); err != nil {
		return nil, fmt.Errorf("flow instance %s context: %w", id, err)
	}
	return &inst, nil
}
