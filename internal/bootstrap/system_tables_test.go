package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/constants"
)

func TestSystemTableDefinitions(t *testing.T) {
	defs, err := SystemTableDefinitions()
	require.NoError(t, err)

	names := make(map[string]bool, len(defs))
	for _, def := range defs {
		assert.False(t, names[def.TableName], "duplicate table %s", def.TableName)
		names[def.TableName] = true

		assert.True(t, constants.IsSystemTable(def.TableName), def.TableName)
		id := def.Column(constants.FieldID)
		require.NotNil(t, id, def.TableName)
		assert.True(t, id.PrimaryKey, def.TableName)
		for _, sys := range constants.GetSystemFieldNames() {
			assert.NotNil(t, def.Column(sys), "%s lacks %s", def.TableName, sys)
		}

		_, err := services.SystemObject(def)
		assert.NoError(t, err, def.TableName)
	}

	for _, table := range []string{
		constants.TableTable, constants.TableObject, constants.TableField,
		constants.TableProfile, constants.TableUser, constants.TableRole,
		constants.TableGroup, constants.TableGroupMember, constants.TableObjectPerms,
		constants.TableFieldPerms, constants.TableSharingRule, constants.TableFlow,
		constants.TableFlowInstance, constants.TableValidation,
		constants.TableApprovalProcess, constants.TableApprovalWorkItem,
	} {
		assert.True(t, names[table], "missing %s", table)
	}
}

func TestSystemTableDefinitions_MatchRepositoryColumns(t *testing.T) {
	defs, err := SystemTableDefinitions()
	require.NoError(t, err)
	byName := make(map[string][]string)
	for _, def := range defs {
		byName[def.TableName] = def.ColumnNames()
	}

	assert.Subset(t, byName[constants.TableField], []string{
		"id", "object_id", "api_name", "label", "type", "required", "is_unique",
		"is_name_field", "is_system", "options", "reference_to", "delete_rule",
		"formula", "return_type", "default_value", "max_length", "position",
		"is_deleted", "created_date", "last_modified_date",
	})
	assert.Subset(t, byName[constants.TableObject], []string{
		"id", "api_name", "label", "plural_label", "description", "is_custom",
		"table_type", "sharing_model", "is_deleted",
	})
	assert.Subset(t, byName[constants.TableApprovalWorkItem], []string{
		"id", "process_id", "object_api_name", "record_id", "status", "submitted_by_id",
		"submitted_date", "approver_id", "approved_by_id", "approved_date", "comments",
		"approver_comments", "flow_instance_id", "flow_step_id", "open_key",
	})
	assert.Subset(t, byName[constants.TableFlowInstance], []string{
		"id", "flow_id", "object_api_name", "record_id", "status", "current_step_id",
		"context", "error_message", "started_by_id", "started_date", "completed_date",
	})
	assert.Subset(t, byName[constants.TableUser], []string{"id", "name", "email", "profile_id", "role_id"})
}
