package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

func validationSchema() *models.ObjectMetadata {
	return &models.ObjectMetadata{
		APIName: "lead",
		Fields: []models.FieldMetadata{
			{APIName: constants.FieldID, Type: constants.FieldTypeText, IsSystem: true},
			{APIName: "name", Type: constants.FieldTypeText, Required: true, IsNameField: true},
			{APIName: "email", Type: constants.FieldTypeEmail},
			{APIName: "score", Type: constants.FieldTypeNumber, DefaultValue: strPtr("10")},
			{APIName: "hot", Type: constants.FieldTypeBoolean, DefaultValue: strPtr("true")},
			{APIName: "rating", Type: constants.FieldTypePicklist, Options: []string{"A", "B"}},
			{APIName: "label", Type: constants.FieldTypeFormula, Formula: strPtr("name + '!'"), Required: true},
		},
	}
}

func TestValidateValues(t *testing.T) {
	vs := NewValidationService(formula.NewEngine(), nil)
	schema := validationSchema()

	assert.NoError(t, vs.ValidateValues(schema, models.SObject{"name": "Ada", "email": "ada@example.com", "unknown": 1}))

	err := vs.ValidateValues(schema, models.SObject{"rating": "Z", "email": "nope"})
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field, "fields are checked in sorted order")
}

func TestNormalize(t *testing.T) {
	vs := NewValidationService(formula.NewEngine(), nil)
	schema := validationSchema()

	rec := models.SObject{"name": "Ada", "score": "42"}
	require.NoError(t, vs.Normalize(schema, rec, true))
	assert.Equal(t, float64(42), rec["score"])

	assert.True(t, errors.IsValidation(vs.Normalize(schema, models.SObject{"score": 1}, true)))
	assert.NoError(t, vs.Normalize(schema, models.SObject{"score": 1}, false), "updates only check present fields")
	assert.True(t, errors.IsValidation(vs.Normalize(schema, models.SObject{"name": nil}, false)))
}

func TestApplyDefaults(t *testing.T) {
	vs := NewValidationService(formula.NewEngine(), nil)

	rec := models.SObject{"score": 99}
	vs.ApplyDefaults(validationSchema(), rec)
	assert.Equal(t, 99, rec["score"], "present values win")
	assert.Equal(t, true, rec["hot"])
	assert.NotContains(t, rec, "rating")
}

func TestEvaluateRules(t *testing.T) {
	vs := NewValidationService(formula.NewEngine(), nil)
	schema := validationSchema()
	rules := []*models.ValidationRule{
		{Name: "off", Active: false, Condition: "true", ErrorMessage: "never"},
		{Name: "low_score", Active: true, Condition: "score < 5", ErrorMessage: "Score too low"},
	}
	user := GetTestUser("u1", "")

	assert.NoError(t, vs.EvaluateRules(schema, models.SObject{"score": 10.0}, nil, user, rules))
	assert.NoError(t, vs.EvaluateRules(schema, models.SObject{"score": 10.0}, nil, user, nil))

	err := vs.EvaluateRules(schema, models.SObject{"score": 1.0}, nil, user, rules)
	require.Error(t, err)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "low_score", verr.Field)
	assert.Equal(t, "Score too low", verr.Message)

	broken := []*models.ValidationRule{{Name: "bad", Active: true, Condition: "score <", ErrorMessage: "x"}}
	assert.Error(t, vs.EvaluateRules(schema, models.SObject{}, nil, user, broken))
}
