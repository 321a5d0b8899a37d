package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== Object Handlers ====================

// GetSchemas handles GET /api/metadata/objects
func (h *MetadataHandler) GetSchemas(c *gin.Context) {
	HandleGetEnvelope(c, "schemas", func() (interface{}, error) {
		return h.svc.GetSchemas(c.Request.Context())
	})
}

// GetSchema handles GET /api/metadata/objects/:name
func (h *MetadataHandler) GetSchema(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	HandleGetEnvelope(c, "schema", func() (interface{}, error) {
		return h.svc.GetSchema(c.Request.Context(), apiName)
	})
}

// CreateSchema handles POST /api/metadata/objects
func (h *MetadataHandler) CreateSchema(c *gin.Context) {
	var def models.ObjectMetadata
	HandleCreateEnvelope(c, "schema", "Schema created successfully", &def, func() (interface{}, error) {
		if def.APIName == "" || def.Label == "" {
			return nil, appErrors.NewValidationError("api_name", "API Name and Label are required")
		}
		return h.svc.CreateObject(c.Request.Context(), &def)
	})
}

// BatchResult reports the outcome of one definition of a batch create.
type BatchResult struct {
	APIName string                 `json:"api_name"`
	Schema  *models.ObjectMetadata `json:"schema,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
}

// BatchCreateSchemas handles POST /api/metadata/objects/batch
// Responds 201 when every definition was created and 207 otherwise.
func (h *MetadataHandler) BatchCreateSchemas(c *gin.Context) {
	var defs []*models.ObjectMetadata
	if !BindJSON(c, &defs) {
		return
	}
	if len(defs) == 0 {
		RespondAppError(c, appErrors.NewValidationError("body", "at least one object definition is required"))
		return
	}

	status := http.StatusCreated
	results := make([]BatchResult, 0, len(defs))
	for _, r := range h.svc.BatchCreateObjects(c.Request.Context(), defs) {
		res := BatchResult{APIName: r.APIName, Schema: r.Object}
		if r.Err != nil {
			res.Error = r.Err.Error()
			res.Code = appErrors.GetErrorCode(r.Err)
			status = http.StatusMultiStatus
		}
		results = append(results, res)
	}
	c.JSON(status, gin.H{"results": results})
}

// DeleteSchema handles DELETE /api/metadata/objects/:name
func (h *MetadataHandler) DeleteSchema(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	HandleDeleteEnvelope(c, "Schema deleted successfully", func() error {
		return h.svc.DeleteObject(c.Request.Context(), apiName)
	})
}

// ==================== Field Handlers ====================

// CreateField handles POST /api/metadata/objects/:name/fields
func (h *MetadataHandler) CreateField(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	var def models.FieldMetadata
	HandleCreateEnvelope(c, "field", "Field created successfully", &def, func() (interface{}, error) {
		if def.APIName == "" {
			return nil, appErrors.NewValidationError("api_name", "Field API Name is required")
		}
		return h.svc.CreateField(c.Request.Context(), apiName, &def)
	})
}

// DeleteField handles DELETE /api/metadata/objects/:name/fields/:field
func (h *MetadataHandler) DeleteField(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	field := strings.ToLower(c.Param("field"))
	HandleDeleteEnvelope(c, "Field deleted successfully", func() error {
		return h.svc.DeleteField(c.Request.Context(), apiName, field)
	})
}

// ==================== Validation Rule Handlers ====================

// GetValidationRules handles GET /api/metadata/objects/:name/validation-rules
func (h *MetadataHandler) GetValidationRules(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	HandleGetEnvelope(c, "rules", func() (interface{}, error) {
		rules, err := h.svc.GetValidationRules(c.Request.Context(), apiName)
		if rules == nil && err == nil {
			rules = []*models.ValidationRule{}
		}
		return rules, err
	})
}

// SaveValidationRule handles POST /api/metadata/objects/:name/validation-rules
func (h *MetadataHandler) SaveValidationRule(c *gin.Context) {
	apiName := strings.ToLower(c.Param("name"))
	var rule models.ValidationRule
	HandleCreateEnvelope(c, "rule", "Validation rule saved successfully", &rule, func() (interface{}, error) {
		rule.ObjectAPIName = apiName
		return nil, h.svc.SaveValidationRule(c.Request.Context(), &rule)
	})
}
