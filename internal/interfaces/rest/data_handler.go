package rest

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/pkg/models"
)

// RecordService is the record pipeline as seen by the HTTP adapter.
type RecordService interface {
	Insert(ctx context.Context, caller *models.UserSession, objectAPIName string, data models.SObject) (models.SObject, error)
	Update(ctx context.Context, caller *models.UserSession, objectAPIName, id string, data models.SObject) (models.SObject, error)
	Delete(ctx context.Context, caller *models.UserSession, objectAPIName, id string) error
	Get(ctx context.Context, caller *models.UserSession, objectAPIName, id string) (models.SObject, error)
}

type DataHandler struct {
	svc RecordService
}

func NewDataHandler(svc RecordService) *DataHandler {
	return &DataHandler{svc: svc}
}

// GetRecord handles GET /api/data/:object/:id
func (h *DataHandler) GetRecord(c *gin.Context) {
	user := CallerFromContext(c)
	objectAPIName := strings.ToLower(c.Param("object"))
	id := c.Param("id")

	HandleGetEnvelope(c, "record", func() (interface{}, error) {
		return h.svc.Get(c.Request.Context(), user, objectAPIName, id)
	})
}

// CreateRecord handles POST /api/data/:object
func (h *DataHandler) CreateRecord(c *gin.Context) {
	user := CallerFromContext(c)
	objectAPIName := strings.ToLower(c.Param("object"))

	data := make(models.SObject)
	HandleCreateEnvelope(c, "record", "Record created successfully", &data, func() (interface{}, error) {
		return h.svc.Insert(c.Request.Context(), user, objectAPIName, data)
	})
}

// UpdateRecord handles PATCH /api/data/:object/:id
func (h *DataHandler) UpdateRecord(c *gin.Context) {
	user := CallerFromContext(c)
	objectAPIName := strings.ToLower(c.Param("object"))
	id := c.Param("id")

	updates := make(models.SObject)
	HandleUpdateEnvelope(c, "record", "Record updated successfully", &updates, func() (interface{}, error) {
		return h.svc.Update(c.Request.Context(), user, objectAPIName, id, updates)
	})
}

// DeleteRecord handles DELETE /api/data/:object/:id
func (h *DataHandler) DeleteRecord(c *gin.Context) {
	user := CallerFromContext(c)
	objectAPIName := strings.ToLower(c.Param("object"))
	id := c.Param("id")

	HandleDeleteEnvelope(c, "Record deleted successfully", func() error {
		return h.svc.Delete(c.Request.Context(), user, objectAPIName, id)
	})
}
