package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/internal/interfaces/rest"
	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

type MockMetadataService struct {
	mock.Mock
}

func (m *MockMetadataService) CreateObject(ctx context.Context, def *models.ObjectMetadata) (*models.ObjectMetadata, error) {
	args := m.Called(ctx, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ObjectMetadata), args.Error(1)
}

func (m *MockMetadataService) BatchCreateObjects(ctx context.Context, defs []*models.ObjectMetadata) []services.ObjectResult {
	args := m.Called(ctx, defs)
	return args.Get(0).([]services.ObjectResult)
}

func (m *MockMetadataService) GetSchema(ctx context.Context, apiName string) (*models.ObjectMetadata, error) {
	args := m.Called(ctx, apiName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ObjectMetadata), args.Error(1)
}

func (m *MockMetadataService) GetSchemas(ctx context.Context) ([]*models.ObjectMetadata, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.ObjectMetadata), args.Error(1)
}

func (m *MockMetadataService) DeleteObject(ctx context.Context, apiName string) error {
	return m.Called(ctx, apiName).Error(0)
}

func (m *MockMetadataService) CreateField(ctx context.Context, objectAPIName string, def *models.FieldMetadata) (*models.FieldMetadata, error) {
	args := m.Called(ctx, objectAPIName, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldMetadata), args.Error(1)
}

func (m *MockMetadataService) DeleteField(ctx context.Context, objectAPIName, fieldAPIName string) error {
	return m.Called(ctx, objectAPIName, fieldAPIName).Error(0)
}

func (m *MockMetadataService) GetValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error) {
	args := m.Called(ctx, objectAPIName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ValidationRule), args.Error(1)
}

func (m *MockMetadataService) SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	return m.Called(ctx, rule).Error(0)
}

func TestMetadataHandler_CreateSchema(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockMetadataService)
	handler := rest.NewMetadataHandler(mockService)

	t.Run("Success", func(t *testing.T) {
		c, w := testContext("POST", "/api/metadata/objects", map[string]string{"api_name": "deal", "label": "Deal"}, testCaller)

		created := &models.ObjectMetadata{ID: "obj_1", APIName: "deal", Label: "Deal"}
		mockService.On("CreateObject", mock.Anything, mock.MatchedBy(func(def *models.ObjectMetadata) bool {
			return def.APIName == "deal"
		})).Return(created, nil).Once()

		handler.CreateSchema(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		schema := decode(t, w)["schema"].(map[string]interface{})
		assert.Equal(t, "obj_1", schema["id"], "the response carries the stored definition")
		mockService.AssertExpectations(t)
	})

	t.Run("Label Required", func(t *testing.T) {
		untouched := new(MockMetadataService)
		c, w := testContext("POST", "/api/metadata/objects", map[string]string{"api_name": "deal"}, testCaller)

		rest.NewMetadataHandler(untouched).CreateSchema(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		untouched.AssertNotCalled(t, "CreateObject", mock.Anything, mock.Anything)
	})

	t.Run("Duplicate", func(t *testing.T) {
		c, w := testContext("POST", "/api/metadata/objects", map[string]string{"api_name": "deal", "label": "Deal"}, testCaller)
		mockService.On("CreateObject", mock.Anything, mock.Anything).
			Return(nil, appErrors.NewConflictError("object", "api_name", "deal")).Once()

		handler.CreateSchema(c)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "CONFLICT", decode(t, w)["code"])
	})
}

func TestMetadataHandler_BatchCreateSchemas(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockMetadataService)
	handler := rest.NewMetadataHandler(mockService)

	body := []map[string]string{
		{"api_name": "deal", "label": "Deal"},
		{"api_name": "Bad Name", "label": "Bad"},
	}
	c, w := testContext("POST", "/api/metadata/objects/batch", body, testCaller)
	mockService.On("BatchCreateObjects", mock.Anything, mock.Anything).Return([]services.ObjectResult{
		{APIName: "deal", Object: &models.ObjectMetadata{APIName: "deal"}},
		{APIName: "Bad Name", Err: appErrors.NewValidationError("api_name", "invalid")},
	}).Once()

	handler.BatchCreateSchemas(c)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	results := decode(t, w)["results"].([]interface{})
	require.Len(t, results, 2)
	assert.NotContains(t, results[0], "error")
	assert.Equal(t, "VALIDATION_ERROR", results[1].(map[string]interface{})["code"])

	c, w = testContext("POST", "/api/metadata/objects/batch", []map[string]string{}, testCaller)
	handler.BatchCreateSchemas(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetadataHandler_Fields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockMetadataService)
	handler := rest.NewMetadataHandler(mockService)

	c, w := testContext("POST", "/api/metadata/objects/Deal/fields", map[string]string{"api_name": "amount", "type": "Currency"}, testCaller)
	c.Params = gin.Params{{Key: "name", Value: "Deal"}}
	mockService.On("CreateField", mock.Anything, "deal", mock.Anything).
		Return(&models.FieldMetadata{ID: "fld_1", APIName: "amount"}, nil).Once()

	handler.CreateField(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = testContext("DELETE", "/api/metadata/objects/deal/fields/amount", nil, testCaller)
	c.Params = gin.Params{{Key: "name", Value: "deal"}, {Key: "field", Value: "amount"}}
	mockService.On("DeleteField", mock.Anything, "deal", "amount").
		Return(appErrors.NewValidationError("amount", "system fields cannot be deleted")).Once()

	handler.DeleteField(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = testContext("GET", "/api/metadata/objects/ghost", nil, testCaller)
	c.Params = gin.Params{{Key: "name", Value: "ghost"}}
	mockService.On("GetSchema", mock.Anything, "ghost").Return(nil, appErrors.NewNotFoundError("object", "ghost")).Once()

	handler.GetSchema(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockService.AssertExpectations(t)
}

func TestMetadataHandler_SaveValidationRule(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockMetadataService)
	handler := rest.NewMetadataHandler(mockService)

	c, w := testContext("POST", "/api/metadata/objects/deal/validation-rules", map[string]interface{}{
		"name": "positive", "condition": "amount < 0", "error_message": "Amount must be positive", "active": true,
	}, testCaller)
	c.Params = gin.Params{{Key: "name", Value: "deal"}}
	mockService.On("SaveValidationRule", mock.Anything, mock.MatchedBy(func(r *models.ValidationRule) bool {
		return r.ObjectAPIName == "deal" && r.Name == "positive"
	})).Return(nil).Once()

	handler.SaveValidationRule(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}
