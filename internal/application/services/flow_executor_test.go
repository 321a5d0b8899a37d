package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmodels "github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

func taskDefinition() *models.ObjectMetadata {
	return &models.ObjectMetadata{
		APIName: "task",
		Fields: []models.FieldMetadata{
			{APIName: "subject", Type: constants.FieldTypeText},
			{APIName: "deal_id", Type: constants.FieldTypeLookup, ReferenceTo: []string{"deal"}},
		},
	}
}

func actionStep(id string, order int, action domainmodels.Action) domainmodels.FlowStep {
	return domainmodels.FlowStep{
		ID:     id,
		Name:   id,
		Order:  order,
		Kind:   constants.FlowStepTypeAction,
		Action: &domainmodels.ActionSpec{Action: action},
	}
}

func saveTestFlow(t *testing.T, k *testKernel, flow *domainmodels.Flow) *domainmodels.Flow {
	t.Helper()
	if flow.Status == "" {
		flow.Status = constants.FlowStatusActive
	}
	require.NoError(t, k.Flows.SaveFlow(context.Background(), flow))
	return flow
}

func newFlowKernel(t *testing.T) *testKernel {
	t.Helper()
	k := newTestKernel(t)
	createTestObject(t, k, dealDefinition())
	createTestObject(t, k, taskDefinition())
	return k
}

var adminUser = GetTestUser("admin", "")

func TestAfterCreateFlow_CreatesChildWhenConditionHolds(t *testing.T) {
	k := newFlowKernel(t)
	ctx := context.Background()

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:             "follow_up_new_deals",
		TriggerObject:    "deal",
		TriggerType:      constants.TriggerAfterCreate,
		TriggerCondition: "status == 'New'",
		Steps: []domainmodels.FlowStep{
			actionStep("create_task", 1, domainmodels.CreateRecordAction{
				TargetObject: "task",
				FieldMappings: map[string]string{
					"name":    "'Follow up ' + name",
					"deal_id": "id",
				},
			}),
		},
	})

	deal, err := k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Acme", "status": "New", "amount": 100})
	require.NoError(t, err)

	tasks := k.records.rows("task")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Follow up Acme", tasks[0]["name"])
	assert.Equal(t, deal.GetString(constants.FieldID), tasks[0]["deal_id"])
	assert.Equal(t, "admin", tasks[0][constants.FieldOwnerID])

	_, err = k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Beta", "status": "Won"})
	require.NoError(t, err)
	assert.Len(t, k.records.rows("task"), 1, "the condition skips won deals")
}

func TestBeforeCreateFlows_MutateRecordInNameOrder(t *testing.T) {
	k := newFlowKernel(t)
	ctx := context.Background()

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:             "b_region",
		TriggerObject:    "deal",
		TriggerType:      constants.TriggerBeforeCreate,
		TriggerCondition: "amount > 1",
		Steps: []domainmodels.FlowStep{
			actionStep("set_b", 1, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"region": "'B'"}}),
		},
	})
	saveTestFlow(t, k, &domainmodels.Flow{
		Name:             "a_region",
		TriggerObject:    "deal",
		TriggerType:      constants.TriggerBeforeCreate,
		TriggerCondition: "amount > 0",
		Steps: []domainmodels.FlowStep{
			actionStep("set_a", 1, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"region": "'A'"}}),
		},
	})

	deal, err := k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Acme", "amount": 50})
	require.NoError(t, err)
	assert.Equal(t, "B", deal["region"])

	rows := k.records.rows("deal")
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0]["region"])
}

func TestBeforeCreateFlow_OutputIsRevalidated(t *testing.T) {
	k := newFlowKernel(t)

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:          "bad_status",
		TriggerObject: "deal",
		TriggerType:   constants.TriggerBeforeCreate,
		Steps: []domainmodels.FlowStep{
			actionStep("set_status", 1, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"status": "'Bogus'"}}),
		},
	})

	_, err := k.Persistence.Insert(context.Background(), adminUser, "deal", models.SObject{"name": "Acme"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, k.records.rows("deal"))
}

func TestDecisionStepBranches(t *testing.T) {
	k := newFlowKernel(t)
	ctx := context.Background()

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:          "triage",
		TriggerObject: "deal",
		TriggerType:   constants.TriggerBeforeCreate,
		Steps: []domainmodels.FlowStep{
			{
				ID: "big", Order: 1, Kind: constants.FlowStepTypeDecision,
				EntryCondition: strPtr("amount >= 1000"),
				OnSuccessStep:  strPtr("mark_big"),
				OnFailureStep:  strPtr("mark_small"),
			},
			actionStep("mark_big", 2, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"region": "'enterprise'"}}),
			actionStep("mark_small", 3, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"status": "'New'"}}),
		},
	})

	big, err := k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Big", "amount": 5000})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", big["region"])
	assert.Equal(t, "New", big["status"], "the success branch falls through to the next step")

	small, err := k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Small", "amount": 10})
	require.NoError(t, err)
	assert.Nil(t, small["region"])
	assert.Equal(t, "New", small["status"])
}

func TestWebhookFailureDoesNotFailFlow(t *testing.T) {
	k := newFlowKernel(t)
	k.webhooks.err = fmt.Errorf("connection refused")

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:          "notify_and_follow_up",
		TriggerObject: "deal",
		TriggerType:   constants.TriggerAfterCreate,
		Steps: []domainmodels.FlowStep{
			actionStep("notify", 1, domainmodels.CallWebhookAction{
				URL:     "https://hooks.example.com/deals",
				Payload: map[string]string{"deal": "name", "amount": "amount"},
			}),
			actionStep("create_task", 2, domainmodels.CreateRecordAction{
				TargetObject:  "task",
				FieldMappings: map[string]string{"name": "'Call ' + name"},
			}),
		},
	})

	_, err := k.Persistence.Insert(context.Background(), adminUser, "deal", models.SObject{"name": "Acme", "amount": 10})
	require.NoError(t, err)

	require.Len(t, k.webhooks.calls, 1)
	assert.Equal(t, "https://hooks.example.com/deals", k.webhooks.calls[0].URL)
	assert.Equal(t, "Acme", k.webhooks.calls[0].Payload["deal"])
	assert.Len(t, k.records.rows("task"), 1, "steps after a failed webhook still run")
}

func TestSendEmailRendersMergeTags(t *testing.T) {
	k := newFlowKernel(t)

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:          "announce",
		TriggerObject: "deal",
		TriggerType:   constants.TriggerAfterCreate,
		Steps: []domainmodels.FlowStep{
			actionStep("mail", 1, domainmodels.SendEmailAction{
				To:      []string{"sales@example.com", "{!region}"},
				Subject: "Deal {!name} created",
				Body:    "Amount: {!record.amount}, owner {!owner_id}",
			}),
		},
	})

	_, err := k.Persistence.Insert(context.Background(), adminUser, "deal", models.SObject{"name": "Acme", "amount": 10})
	require.NoError(t, err)

	require.Len(t, k.mailer.sent, 1)
	msg := k.mailer.sent[0]
	assert.Equal(t, []string{"sales@example.com"}, msg.To, "blank merged recipients are dropped")
	assert.Equal(t, "Deal Acme created", msg.Subject)
	assert.Equal(t, "Amount: 10, owner admin", msg.Body)
}

func TestAfterTriggerRecursionIsBounded(t *testing.T) {
	k := newFlowKernel(t)
	ctx := context.Background()

	saveTestFlow(t, k, &domainmodels.Flow{
		Name:          "bump",
		TriggerObject: "deal",
		TriggerType:   constants.TriggerAfterUpdate,
		Steps: []domainmodels.FlowStep{
			actionStep("bump_amount", 1, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"amount": "amount + 1"}}),
		},
	})

	deal, err := k.Persistence.Insert(ctx, adminUser, "deal", models.SObject{"name": "Acme", "amount": 1})
	require.NoError(t, err)
	_, err = k.Persistence.Update(ctx, adminUser, "deal", deal.GetString(constants.FieldID), models.SObject{"amount": 10})
	require.NoError(t, err)

	rows := k.records.rows("deal")
	require.Len(t, rows, 1)
	assert.EqualValues(t, 10+MaxTriggerDepth, rows[0]["amount"])
}

func TestSaveFlow_Rejections(t *testing.T) {
	emailStep := actionStep("mail", 1, domainmodels.SendEmailAction{To: []string{"a@example.com"}, Subject: "hi"})

	tests := []struct {
		name  string
		flow  *domainmodels.Flow
		check func(error) bool
	}{
		{
			name:  "missing name",
			flow:  &domainmodels.Flow{TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate},
			check: errors.IsValidation,
		},
		{
			name:  "unknown trigger",
			flow:  &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: "onSave"},
			check: errors.IsValidation,
		},
		{
			name:  "unknown object",
			flow:  &domainmodels.Flow{Name: "x", TriggerObject: "ghost", TriggerType: constants.TriggerAfterCreate},
			check: errors.IsNotFound,
		},
		{
			name:  "condition on unknown field",
			flow:  &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, TriggerCondition: "stage == 'x'"},
			check: errors.IsFormula,
		},
		{
			name:  "email on before trigger",
			flow:  &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerBeforeUpdate, Steps: []domainmodels.FlowStep{emailStep}},
			check: errors.IsValidation,
		},
		{
			name: "approval on before trigger",
			flow: &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerBeforeCreate, Steps: []domainmodels.FlowStep{
				{ID: "ask", Order: 1, Kind: constants.FlowStepTypeApproval},
			}},
			check: errors.IsValidation,
		},
		{
			name: "decision without condition",
			flow: &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, Steps: []domainmodels.FlowStep{
				{ID: "d", Order: 1, Kind: constants.FlowStepTypeDecision},
			}},
			check: errors.IsValidation,
		},
		{
			name: "backward jump",
			flow: &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, Steps: []domainmodels.FlowStep{
				emailStep,
				{ID: "d", Order: 2, Kind: constants.FlowStepTypeDecision, EntryCondition: strPtr("amount > 1"), OnFailureStep: strPtr("mail")},
			}},
			check: errors.IsValidation,
		},
		{
			name: "unknown step kind",
			flow: &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, Steps: []domainmodels.FlowStep{
				{ID: "s", Order: 1, Kind: "loop"},
			}},
			check: errors.IsValidation,
		},
		{
			name: "create target missing",
			flow: &domainmodels.Flow{Name: "x", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, Steps: []domainmodels.FlowStep{
				actionStep("c", 1, domainmodels.CreateRecordAction{TargetObject: "ghost"}),
			}},
			check: errors.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newFlowKernel(t)
			err := k.Flows.SaveFlow(context.Background(), tt.flow)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Empty(t, k.flows.flows)
		})
	}
}

func TestSaveFlow_DuplicateActiveFlowsConflict(t *testing.T) {
	k := newFlowKernel(t)
	ctx := context.Background()

	first := saveTestFlow(t, k, &domainmodels.Flow{
		Name: "first", TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, TriggerCondition: "amount > 5",
	})

	err := k.Flows.SaveFlow(ctx, &domainmodels.Flow{
		Name: "second", Status: constants.FlowStatusActive, TriggerObject: "DEAL",
		TriggerType: constants.TriggerAfterCreate, TriggerCondition: "amount>5",
	})
	assert.True(t, errors.IsConflict(err))

	require.NoError(t, k.Flows.SaveFlow(ctx, &domainmodels.Flow{
		Name: "second", Status: constants.FlowStatusDraft, TriggerObject: "deal",
		TriggerType: constants.TriggerAfterCreate, TriggerCondition: "amount > 5",
	}), "drafts never conflict")

	first.Description = strPtr("resaved")
	require.NoError(t, k.Flows.SaveFlow(ctx, first), "a flow does not conflict with itself")

	dups, err := k.Flows.DuplicateActiveFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, dups)

	k.flows.flows["rogue"] = &domainmodels.Flow{
		ID: "rogue", Name: "rogue", Status: constants.FlowStatusActive,
		TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, TriggerCondition: "amount >  5",
	}
	require.NoError(t, k.Flows.RefreshFlows(ctx))
	dups, err = k.Flows.DuplicateActiveFlows(ctx)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, []string{"first", "rogue"}, dups[0])
}

func TestSaveFlow_NormalizesDefinition(t *testing.T) {
	k := newFlowKernel(t)

	flow := &domainmodels.Flow{
		Name:          "  ordered  ",
		TriggerObject: "DEAL",
		TriggerType:   constants.TriggerAfterCreate,
		Steps: []domainmodels.FlowStep{
			actionStep("", 2, domainmodels.CreateRecordAction{TargetObject: "task", FieldMappings: map[string]string{"name": "name"}}),
			actionStep("first", 1, domainmodels.UpdateRecordAction{FieldMappings: map[string]string{"region": "'x'"}}),
		},
	}
	require.NoError(t, k.Flows.SaveFlow(context.Background(), flow))

	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, "ordered", flow.Name)
	assert.Equal(t, "deal", flow.TriggerObject)
	assert.Equal(t, constants.FlowStatusDraft, flow.Status)
	assert.Equal(t, testClock, flow.LastModified)
	require.Len(t, flow.Steps, 2)
	assert.Equal(t, "first", flow.Steps[0].ID)
	assert.NotEmpty(t, flow.Steps[1].ID)

	stored, err := k.Flows.GetFlow(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Name, stored.Name)
}
