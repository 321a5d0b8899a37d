package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
)

const storedSteps = `[{"id":"s1","name":"Notify","order":1,"kind":"action",` +
	`"action":{"kind":"sendEmail","config":{"to":["ops@example.com"],"subject":"New {!name}","body":"hi"}}}]`

func TestListFlows(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewFlowRepository(conn)
	modified := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("FROM _System_Flow ORDER BY name, id")).WillReturnRows(
		sqlmock.NewRows(flowColumns).
			AddRow("f1", "Notify ops", nil, constants.FlowStatusActive, "invoice", constants.TriggerAfterCreate,
				"amount > 100", storedSteps, modified, modified))

	flows, err := repo.ListFlows(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 1)

	f := flows[0]
	assert.Equal(t, "amount > 100", f.TriggerCondition)
	assert.Equal(t, modified, f.LastModified)
	require.Len(t, f.Steps, 1)
	email, ok := f.Steps[0].Action.Action.(models.SendEmailAction)
	require.True(t, ok)
	assert.Equal(t, []string{"ops@example.com"}, email.To)
}

func TestGetFlowNotFound(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewFlowRepository(conn)

	mock.ExpectQuery(q("FROM _System_Flow WHERE id = ?")).WithArgs("missing").WillReturnRows(sqlmock.NewRows(flowColumns))

	_, err := repo.GetFlow(context.Background(), "missing")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestSaveFlowEmptyConditionIsNull(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewFlowRepository(conn)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	flow := &models.Flow{
		ID: "f1", Name: "Notify", Status: constants.FlowStatusDraft,
		TriggerObject: "invoice", TriggerType: constants.TriggerAfterCreate,
	}
	mock.ExpectExec(q("INSERT INTO _System_Flow")).
		WithArgs("f1", "Notify", nil, constants.FlowStatusDraft, "invoice", constants.TriggerAfterCreate, nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveFlow(context.Background(), flow))
	assert.Equal(t, now, flow.LastModified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlowInstanceRoundTrip(t *testing.T) {
	conn, mock := newMockDB(t)
	repo := NewFlowRepository(conn)
	started := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	step := "s2"

	inst := &models.FlowInstance{
		ID: "fi1", FlowID: "f1", ObjectAPIName: "invoice", RecordID: "rec_1",
		Status: constants.FlowInstanceStatusPaused, CurrentStepID: &step,
		ContextData: map[string]interface{}{"work_item_id": "wi_1"},
		StartedByID: "u1", StartedDate: started,
	}
	mock.ExpectExec(q("INSERT INTO _System_FlowInstance")).
		WithArgs("fi1", "f1", "invoice", "rec_1", constants.FlowInstanceStatusPaused, "s2", `{"work_item_id":"wi_1"}`,
			nil, "u1", started, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.SaveFlowInstance(context.Background(), inst))

	mock.ExpectQuery(q("FROM _System_FlowInstance WHERE id = ?")).WithArgs("fi1").WillReturnRows(
		sqlmock.NewRows(flowInstanceColumns[:len(flowInstanceColumns)-1]).
			AddRow("fi1", "f1", "invoice", "rec_1", constants.FlowInstanceStatusPaused, "s2", `{"work_item_id":"wi_1"}`,
				nil, "u1", started, nil))

	got, err := repo.GetFlowInstance(context.Background(), "fi1")
	require.NoError(t, err)
	assert.Equal(t, "s2", *got.CurrentStepID)
	assert.Equal(t, "wi_1", got.ContextData["work_item_id"])
	assert.Nil(t, got.CompletedDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
