package fieldtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexuscrm/kernel/pkg/constants"
)

func TestColumnType(t *testing.T) {
	tests := []struct {
		fieldType constants.FieldType
		maxLength int
		want      string
	}{
		{constants.FieldTypeText, 0, "VARCHAR(255)"},
		{constants.FieldTypeText, 80, "VARCHAR(80)"},
		{constants.FieldTypeTextArea, 80, "TEXT"},
		{constants.FieldTypeCurrency, 0, "DECIMAL(18,2)"},
		{constants.FieldTypeBoolean, 0, "TINYINT(1)"},
		{constants.FieldTypeLookup, 0, "VARCHAR(36)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.fieldType), func(t *testing.T) {
			got, err := ColumnType(tt.fieldType, tt.maxLength)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnTypeRejectsVirtualAndUnknown(t *testing.T) {
	_, err := ColumnType(constants.FieldTypeFormula, 0)
	assert.Error(t, err)

	_, err = ColumnType(constants.FieldType("Hologram"), 0)
	assert.Error(t, err)
	assert.False(t, IsKnown(constants.FieldType("Hologram")))
}

func TestEveryTypeIsDispatched(t *testing.T) {
	for _, def := range All() {
		if def.IsVirtual {
			assert.Empty(t, def.SQLType, def.Type)
			continue
		}
		assert.NotEmpty(t, def.SQLType, def.Type)
		assert.NotEmpty(t, def.DataTypes, def.Type)
	}
	assert.True(t, IsVirtual(constants.FieldTypeRollupSummary))
	assert.True(t, IsFK(constants.FieldTypeLookup))
}

func TestIsCompatible(t *testing.T) {
	assert.True(t, IsCompatible(constants.FieldTypeText, "varchar"))
	assert.True(t, IsCompatible(constants.FieldTypeText, "TEXT"))
	assert.True(t, IsCompatible(constants.FieldTypeCurrency, "decimal"))
	assert.False(t, IsCompatible(constants.FieldTypeNumber, "varchar"))
	assert.False(t, IsCompatible(constants.FieldTypeFormula, "varchar"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		fieldType constants.FieldType
		value     interface{}
		opts      Options
		wantErr   bool
	}{
		{"nil is accepted", constants.FieldTypeEmail, nil, Options{}, false},
		{"valid email", constants.FieldTypeEmail, "a@b.co", Options{}, false},
		{"bad email", constants.FieldTypeEmail, "not-an-email", Options{}, true},
		{"text too long", constants.FieldTypeText, "abcdef", Options{MaxLength: 3}, true},
		{"number from string", constants.FieldTypeNumber, "12.5", Options{}, false},
		{"number garbage", constants.FieldTypeNumber, "twelve", Options{}, true},
		{"boolean int", constants.FieldTypeBoolean, 1, Options{}, false},
		{"boolean two", constants.FieldTypeBoolean, 2, Options{}, true},
		{"date", constants.FieldTypeDate, "2024-02-29", Options{}, false},
		{"bad date", constants.FieldTypeDate, "29/02/2024", Options{}, true},
		{"picklist member", constants.FieldTypePicklist, "New", Options{Picklist: []string{"New", "Closed"}}, false},
		{"picklist stranger", constants.FieldTypePicklist, "Lost", Options{Picklist: []string{"New", "Closed"}}, true},
		{"url", constants.FieldTypeURL, "https://example.com/x", Options{}, false},
		{"url without scheme", constants.FieldTypeURL, "example.com", Options{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.fieldType, tt.value, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransform(t *testing.T) {
	v, err := Transform(constants.FieldTypeBoolean, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Transform(constants.FieldTypeNumber, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = Transform(constants.FieldTypeJSON, map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = Transform(constants.FieldTypeDateTime, "2024-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02 03:04:05", v)
}

func TestPasswordIsHashedOnce(t *testing.T) {
	v, err := Transform(constants.FieldTypePassword, "s3cret")
	require.NoError(t, err)
	hash := v.(string)
	assert.True(t, IsPasswordHash(hash))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	again, err := Transform(constants.FieldTypePassword, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}
