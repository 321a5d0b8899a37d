package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

// FormulaEngine is the expression engine as seen by the HTTP adapter.
type FormulaEngine interface {
	Validate(source string, sample map[string]interface{}) error
	Evaluate(source string, ctx *formula.Context) (interface{}, error)
	GetFunctionDefinitions() []formula.FunctionDefinition
	ClearCache()
}

// SchemaLookup resolves the object a formula is written against.
type SchemaLookup interface {
	GetSchema(ctx context.Context, apiName string) (*models.ObjectMetadata, error)
}

type FormulaHandler struct {
	engine  FormulaEngine
	schemas SchemaLookup
}

func NewFormulaHandler(engine FormulaEngine, schemas SchemaLookup) *FormulaHandler {
	return &FormulaHandler{engine: engine, schemas: schemas}
}

// EvaluateRequest represents a formula evaluation request. When Object is
// set, references to fields the object does not declare are rejected.
type EvaluateRequest struct {
	Expression string                 `json:"expression" binding:"required"`
	Object     string                 `json:"object"`
	Record     map[string]interface{} `json:"record"`
	Prior      map[string]interface{} `json:"prior"`
	IsNew      bool                   `json:"is_new"`
}

// ValidateRequest represents a formula validation request
type ValidateRequest struct {
	Expression string `json:"expression" binding:"required"`
	Object     string `json:"object"`
}

func (h *FormulaHandler) schemaFor(ctx context.Context, object string) (*models.ObjectMetadata, error) {
	if object == "" {
		return nil, nil
	}
	return h.schemas.GetSchema(ctx, strings.ToLower(object))
}

// Evaluate handles POST /api/formula/evaluate
func (h *FormulaHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if !BindJSON(c, &req) {
		return
	}

	obj, err := h.schemaFor(c.Request.Context(), req.Object)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	fctx := &formula.Context{
		Record: req.Record,
		Prior:  req.Prior,
		User:   CallerFromContext(c).ToMap(),
		IsNew:  req.IsNew,
	}
	if fctx.Record == nil {
		fctx.Record = map[string]interface{}{}
	}
	if obj != nil {
		fctx.Known = obj.HasField
	}

	result, err := h.engine.Evaluate(req.Expression, fctx)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{
			"result":     result,
			"expression": req.Expression,
		},
	})
}

// Validate handles POST /api/formula/validate
func (h *FormulaHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if !BindJSON(c, &req) {
		return
	}

	var sample map[string]interface{}
	obj, err := h.schemaFor(c.Request.Context(), req.Object)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if obj != nil {
		sample = obj.FieldSample()
	}

	if err := h.engine.Validate(req.Expression, sample); err != nil {
		// Valid: false is a successful check result, not an HTTP error
		c.JSON(http.StatusOK, gin.H{
			constants.ResponseData: gin.H{
				"valid": false,
				"error": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{"valid": true},
	})
}

// GetFunctions handles GET /api/formula/functions
func (h *FormulaHandler) GetFunctions(c *gin.Context) {
	functions := h.engine.GetFunctionDefinitions()

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{
			"functions": functions,
			"count":     len(functions),
		},
	})
}

// ClearCache handles DELETE /api/formula/cache
func (h *FormulaHandler) ClearCache(c *gin.Context) {
	h.engine.ClearCache()

	c.JSON(http.StatusOK, gin.H{
		constants.ResponseData: gin.H{
			constants.ResponseMessage: "Formula cache cleared successfully",
		},
	})
}
