package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainmodels "github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

func categories(res *AssertionResult) map[string]int {
	out := make(map[string]int)
	for _, v := range res.Violations {
		out[v.Category]++
	}
	return out
}

func TestRunAssertions_EmptyDatabase(t *testing.T) {
	f := newFixture(t)

	res, err := RunAssertions(context.Background(), f.ServiceManager, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, res.Passed)

	got := categories(res)
	assert.Equal(t, 16, got["CriticalTable"])
	assert.Equal(t, 1, got["MissingProfile"])
}

func TestRunAssertions_ReportsViolations(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	_, err := f.Metadata.CreateObject(ctx, dealObject())
	require.NoError(t, err)

	// Drift and broken metadata introduced behind the services' back.
	delete(f.schema.tables["deal"], "amount")
	f.meta.objects["deal"].Fields = append(f.meta.objects["deal"].Fields, models.FieldMetadata{
		APIName: "margin", Type: constants.FieldTypeFormula, Formula: strPtr("amount *"),
	})
	f.meta.objects["Bad_Name"] = &models.ObjectMetadata{ID: "obj_bad", APIName: "Bad_Name"}
	f.schema.tables["Bad_Name"] = map[string]string{}
	f.perms.data.SharingRules = append(f.perms.data.SharingRules, models.SharingRule{
		ID: "sr1", ObjectAPIName: "ghost", Name: "ghost_rule", AccessLevel: constants.AccessLevelRead,
	})
	r1, r2 := "r1", "r2"
	f.perms.data.Roles = append(f.perms.data.Roles,
		models.Role{ID: "r1", Name: "A", ParentRoleID: &r2},
		models.Role{ID: "r2", Name: "B", ParentRoleID: &r1})
	for _, id := range []string{"f1", "f2"} {
		f.flows.flows = append(f.flows.flows, &domainmodels.Flow{
			ID: id, Name: "flow_" + id, Status: constants.FlowStatusActive,
			TriggerObject: "deal", TriggerType: constants.TriggerAfterCreate, TriggerCondition: "amount > 10",
		})
	}
	f.flows.flows = append(f.flows.flows, &domainmodels.Flow{
		ID: "f3", Name: "draft", Status: constants.FlowStatusDraft,
		TriggerObject: "deal", TriggerType: constants.TriggerAfterUpdate,
		Steps: []domainmodels.FlowStep{{ID: "s1", EntryCondition: strPtr("nope == 1")}},
	})
	require.NoError(t, f.RefreshMetadataCache(ctx))

	res, err := RunAssertions(ctx, f.ServiceManager, false, logger)
	require.NoError(t, err)
	assert.False(t, res.Passed)

	got := categories(res)
	assert.Positive(t, got["SchemaDrift"])
	assert.Equal(t, 2, got["InvalidFormula"], "formula field and draft flow step")
	assert.Equal(t, 1, got["OrphanedSharingRule"])
	assert.Equal(t, 1, got["DuplicateFlow"])
	assert.Equal(t, 1, got["RoleCycle"])
	assert.Equal(t, 1, got["NamingConvention"])
	assert.Positive(t, got["SystemFields"], "Bad_Name declares no system fields")
	assert.Positive(t, res.Errors())

	_, err = RunAssertions(ctx, f.ServiceManager, true, logger)
	assert.Error(t, err, "strict mode fails on violations")
}
