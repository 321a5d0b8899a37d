package persistence

import (
	"context"
	"fmt"

	"github.com/nexuscrm/kernel/internal/infrastructure/database"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/query"
)

// RecordRepository handles dynamic CRUD operations for any object.
// Column names are whitelisted by the caller; values are always bound.
type RecordRepository struct {
	tm *TransactionManager
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *database.TiDBConnection) *RecordRepository {
	return &RecordRepository{tm: NewTransactionManager(db)}
}

// Insert writes one row.
func (r *RecordRepository) Insert(ctx context.Context, table string, values map[string]interface{}) error {
	q, err := query.Insert(table, values).Build()
	if err != nil {
		return err
	}
	if _, err := r.tm.Executor(ctx).ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return translateDuplicate(err, table, "", "duplicate value for a unique field")
	}
	return nil
}

// Update changes a live row matched by id and predicate.
func (r *RecordRepository) Update(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error) {
	q, err := query.Update(table).
		Set(values).
		WhereEquals(constants.FieldID, id).
		ExcludeDeleted().
		ApplySecurity(pred.SQL, pred.Args).
		Build()
	if err != nil {
		return 0, err
	}
	res, err := r.tm.Executor(ctx).ExecContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return 0, translateDuplicate(err, table, "", "duplicate value for a unique field")
	}
	return res.RowsAffected()
}

// SoftDelete sets is_deleted plus the given audit values on a live row.
func (r *RecordRepository) SoftDelete(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error) {
	set := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		set[k] = v
	}
	set[constants.FieldIsDeleted] = true
	return r.Update(ctx, table, id, set, pred)
}

// FindByID returns the selected columns of a live row, or NotFoundError.
func (r *RecordRepository) FindByID(ctx context.Context, table string, columns []string, id string, pred models.Predicate) (models.SObject, error) {
	q, err := query.From(table).
		Select(columns).
		WhereEquals(constants.FieldID, id).
		ExcludeDeleted().
		ApplySecurity(pred.SQL, pred.Args).
		Limit(1).
		Build()
	if err != nil {
		return nil, err
	}

	rows, err := r.tm.Executor(ctx).QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", table, id, err)
	}
	defer func() { _ = rows.Close() }()

	results, err := query.ScanRowsToSObjects(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, appErrors.NewNotFoundError(table, id)
	}
	return results[0], nil
}
