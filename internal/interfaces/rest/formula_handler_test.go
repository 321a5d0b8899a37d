package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nexuscrm/kernel/internal/interfaces/rest"
	"github.com/nexuscrm/kernel/pkg/constants"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

type schemaMap map[string]*models.ObjectMetadata

func (s schemaMap) GetSchema(_ context.Context, apiName string) (*models.ObjectMetadata, error) {
	if obj, ok := s[apiName]; ok {
		return obj, nil
	}
	return nil, appErrors.NewNotFoundError("object", apiName)
}

func newFormulaHandler() *rest.FormulaHandler {
	schemas := schemaMap{
		"deal": {
			APIName: "deal",
			Fields: []models.FieldMetadata{
				{APIName: "name", Type: constants.FieldTypeText},
				{APIName: "amount", Type: constants.FieldTypeCurrency},
			},
		},
	}
	return rest.NewFormulaHandler(formula.NewEngine(), schemas)
}

func TestFormulaHandler_Evaluate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newFormulaHandler()

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		result interface{}
	}{
		{
			name:   "arithmetic",
			body:   map[string]interface{}{"expression": "amount * 2", "record": map[string]interface{}{"amount": 21}},
			status: http.StatusOK,
			result: float64(42),
		},
		{
			name:   "known field missing from record",
			body:   map[string]interface{}{"expression": "amount == nil", "object": "deal"},
			status: http.StatusOK,
			result: true,
		},
		{
			name:   "unknown field",
			body:   map[string]interface{}{"expression": "discount > 1", "object": "Deal"},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown object",
			body:   map[string]interface{}{"expression": "1 + 1", "object": "ghost"},
			status: http.StatusNotFound,
		},
		{
			name:   "syntax error",
			body:   map[string]interface{}{"expression": "amount *"},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext("POST", "/api/formula/evaluate", tt.body, testCaller)

			handler.Evaluate(c)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				data := decode(t, w)[constants.ResponseData].(map[string]interface{})
				assert.Equal(t, tt.result, data["result"])
			}
		})
	}
}

func TestFormulaHandler_Validate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newFormulaHandler()

	validity := func(body map[string]interface{}) map[string]interface{} {
		c, w := testContext("POST", "/api/formula/validate", body, testCaller)
		handler.Validate(c)
		assert.Equal(t, http.StatusOK, w.Code)
		return decode(t, w)[constants.ResponseData].(map[string]interface{})
	}

	assert.Equal(t, true, validity(map[string]interface{}{"expression": "amount > 100 && name != ''", "object": "deal"})["valid"])
	assert.Equal(t, true, validity(map[string]interface{}{"expression": "discount > 1"})["valid"], "without an object only syntax is checked")

	res := validity(map[string]interface{}{"expression": "discount > 1", "object": "deal"})
	assert.Equal(t, false, res["valid"])
	assert.Contains(t, res["error"], "discount")
}

func TestFormulaHandler_GetFunctions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newFormulaHandler()

	c, w := testContext("GET", "/api/formula/functions", nil, testCaller)
	handler.GetFunctions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)[constants.ResponseData].(map[string]interface{})
	assert.Greater(t, data["count"], float64(0))
}
