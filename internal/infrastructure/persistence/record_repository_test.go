package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

func TestRecordInsert(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewRecordRepository(conn)

	mock.ExpectExec(q("INSERT INTO `invoice` (`amount`, `id`, `name`) VALUES (?, ?, ?)")).
		WithArgs(100.0, "rec_1", "INV-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Insert(context.Background(), "invoice", map[string]interface{}{"id": "rec_1", "name": "INV-1", "amount": 100.0})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUpdateAppliesPredicate(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewRecordRepository(conn)

	pred := models.Predicate{SQL: "`owner_id` = ?", Args: []interface{}{"user_1"}}
	mock.ExpectExec(q("UPDATE `invoice` SET `name` = ? WHERE `id` = ? AND `is_deleted` = 0 AND (`owner_id` = ?)")).
		WithArgs("INV-2", "rec_1", "user_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Update(context.Background(), "invoice", "rec_1", map[string]interface{}{"name": "INV-2"}, pred)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSoftDelete(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewRecordRepository(conn)

	mock.ExpectExec(q("UPDATE `invoice` SET `is_deleted` = ?, `last_modified_by_id` = ? WHERE `id` = ? AND `is_deleted` = 0 AND (1=1)")).
		WithArgs(true, "user_1", "rec_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.SoftDelete(context.Background(), "invoice", "rec_1", map[string]interface{}{"last_modified_by_id": "user_1"}, models.OpenPredicate())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordFindByID(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewRecordRepository(conn)

	mock.ExpectQuery(q("SELECT `id`, `name` FROM `invoice` WHERE `id` = ? AND `is_deleted` = 0 AND (1=0) LIMIT 1")).
		WithArgs("rec_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repo.FindByID(context.Background(), "invoice", []string{"name"}, "rec_1", models.ClosedPredicate())
	assert.True(t, appErrors.IsNotFound(err))

	mock.ExpectQuery(q("SELECT `id`, `name` FROM `invoice`")).
		WithArgs("rec_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("rec_1", []byte("INV-1")))

	rec, err := repo.FindByID(context.Background(), "invoice", []string{"name"}, "rec_1", models.OpenPredicate())
	require.NoError(t, err)
	assert.Equal(t, "INV-1", rec["name"])
}

func TestRecordRejectsUnsafeTable(t *testing.T) {
	conn, _ := newMockDB(t)
	repo := NewRecordRepository(conn)

	err := repo.Insert(context.Background(), "invoice; DROP TABLE x", map[string]interface{}{"id": "1"})
	assert.Error(t, err)
}
