package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/models"
)

func TestRun_CreatesAndRegistersSystemTables(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()

	defs, err := SystemTableDefinitions()
	require.NoError(t, err)
	assert.Len(t, f.schema.tables, len(defs))
	assert.Equal(t, constants.BootstrapTables(), f.schema.created[:3], "registry tables come first")

	field, err := f.Metadata.GetSchema(ctx, constants.TableField)
	require.NoError(t, err)
	assert.Equal(t, constants.TableTypeSystemMetadata, field.TableType)
	assert.True(t, field.GetField(constants.FieldCreatedDate).IsSystem)
	assert.Equal(t, constants.FieldTypeJSON, field.GetField("options").Type)

	user, err := f.Metadata.GetSchema(ctx, constants.TableUser)
	require.NoError(t, err)
	assert.Equal(t, constants.TableTypeSystemData, user.TableType)
	assert.Equal(t, constants.FieldTypeEmail, user.GetField(constants.FieldEmail).Type)
	assert.Equal(t, []string{constants.TableRole}, user.GetField(constants.FieldRoleID).ReferenceTo)
	assert.Equal(t, "Created Date", user.GetField(constants.FieldCreatedDate).Label)
}

func TestRun_IsIdempotent(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()

	before, err := f.Metadata.GetSchema(ctx, constants.TableFlow)
	require.NoError(t, err)
	saves := f.perms.saves

	res, err := Run(ctx, f.ServiceManager, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.Passed)

	after, err := f.Metadata.GetSchema(ctx, constants.TableFlow)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.GetField("steps").ID, after.GetField("steps").ID)
	assert.Equal(t, saves, f.perms.saves, "existing permission rows are left alone")
	assert.Len(t, f.perms.data.Profiles, 2)
}

func TestInitializePermissions_Defaults(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()
	admin := &models.UserSession{ID: "u_admin", ProfileID: constants.ProfileSystemAdmin}
	std := &models.UserSession{ID: "u_std", ProfileID: constants.ProfileStandardUser}

	assert.True(t, f.Permissions.CanPerform(ctx, admin, constants.TableFlow, constants.PermDelete))
	assert.True(t, f.Permissions.CanPerform(ctx, std, constants.TableFlow, constants.PermRead))
	assert.False(t, f.Permissions.CanPerform(ctx, std, constants.TableFlow, constants.PermEdit))

	_, err := f.Metadata.CreateObject(ctx, dealObject())
	require.NoError(t, err)
	require.NoError(t, InitializePermissions(ctx, f.ServiceManager, zaptest.NewLogger(t)))
	assert.True(t, f.Permissions.CanPerform(ctx, std, "deal", constants.PermCreate))
	assert.False(t, f.Permissions.CanPerform(ctx, std, "deal", constants.PermDelete))

	// An administrator revokes create; the next start keeps the edit.
	require.NoError(t, f.Permissions.SaveObjectPermission(ctx, &models.ObjectPermission{
		ProfileID: constants.ProfileStandardUser, ObjectAPIName: "deal", AllowRead: true,
	}))
	require.NoError(t, InitializePermissions(ctx, f.ServiceManager, zaptest.NewLogger(t)))
	assert.False(t, f.Permissions.CanPerform(ctx, std, "deal", constants.PermCreate))
}

func dealObject() *models.ObjectMetadata {
	return &models.ObjectMetadata{
		APIName: "deal",
		Label:   "Deal",
		Fields: []models.FieldMetadata{
			{APIName: "name", Label: "Name", Type: constants.FieldTypeText, Required: true, IsNameField: true},
			{APIName: "amount", Label: "Amount", Type: constants.FieldTypeCurrency},
		},
	}
}
