package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/internal/interfaces/middleware"
	"github.com/nexuscrm/kernel/pkg/auth"
)

// NewRouter mounts every kernel endpoint on a fresh gin engine.
func NewRouter(svcMgr *services.ServiceManager, verifier *auth.Verifier, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"schema_version": svcMgr.Metadata.Version(),
		})
	})

	metadataHandler := NewMetadataHandler(svcMgr.Metadata)
	dataHandler := NewDataHandler(svcMgr.Persistence)
	approvalHandler := NewApprovalHandler(svcMgr.Approval)
	formulaHandler := NewFormulaHandler(svcMgr.Formula, svcMgr.Metadata)
	permissionHandler := NewPermissionHandler(svcMgr.Permissions)
	flowHandler := NewFlowHandler(svcMgr.Flows)

	requireAuth := middleware.RequireAuth(verifier)
	requireSystemAdmin := middleware.RequireSystemAdmin()

	api := router.Group("/api")
	api.Use(requireAuth)
	{
		metadata := api.Group("/metadata")
		{
			metadata.GET("/objects", metadataHandler.GetSchemas)
			metadata.GET("/objects/:name", metadataHandler.GetSchema)
			metadata.GET("/objects/:name/validation-rules", metadataHandler.GetValidationRules)

			metadata.POST("/objects", requireSystemAdmin, metadataHandler.CreateSchema)
			metadata.POST("/objects/batch", requireSystemAdmin, metadataHandler.BatchCreateSchemas)
			metadata.DELETE("/objects/:name", requireSystemAdmin, metadataHandler.DeleteSchema)
			metadata.POST("/objects/:name/fields", requireSystemAdmin, metadataHandler.CreateField)
			metadata.DELETE("/objects/:name/fields/:field", requireSystemAdmin, metadataHandler.DeleteField)
			metadata.POST("/objects/:name/validation-rules", requireSystemAdmin, metadataHandler.SaveValidationRule)

			metadata.GET("/flows", requireSystemAdmin, flowHandler.GetAllFlows)
			metadata.GET("/flows/:id", requireSystemAdmin, flowHandler.GetFlow)
			metadata.POST("/flows", requireSystemAdmin, flowHandler.CreateFlow)
			metadata.PUT("/flows/:id", requireSystemAdmin, flowHandler.UpdateFlow)
		}

		api.GET("/flows/instances/:id", requireSystemAdmin, flowHandler.GetFlowInstance)

		api.GET("/permissions/:object", permissionHandler.Describe)

		security := api.Group("/security")
		security.Use(requireSystemAdmin)
		{
			security.POST("/profiles", permissionHandler.SaveProfile)
			security.POST("/roles", permissionHandler.SaveRole)
			security.GET("/sharing-rules", permissionHandler.GetSharingRules)
			security.POST("/sharing-rules", permissionHandler.SaveSharingRule)
			security.PUT("/object-permissions", permissionHandler.SaveObjectPermission)
			security.PUT("/field-permissions", permissionHandler.SaveFieldPermission)
		}

		formula := api.Group("/formula")
		{
			formula.POST("/evaluate", formulaHandler.Evaluate)
			formula.POST("/validate", formulaHandler.Validate)
			formula.GET("/functions", formulaHandler.GetFunctions)
			formula.DELETE("/cache", requireSystemAdmin, formulaHandler.ClearCache)
		}

		data := api.Group("/data")
		{
			data.POST("/:object", dataHandler.CreateRecord)
			data.GET("/:object/:id", dataHandler.GetRecord)
			data.PATCH("/:object/:id", dataHandler.UpdateRecord)
			data.DELETE("/:object/:id", dataHandler.DeleteRecord)
		}

		approvals := api.Group("/approvals")
		{
			approvals.POST("/submit", approvalHandler.Submit)
			approvals.GET("/pending", approvalHandler.GetPending)
			approvals.POST("/:id/approve", approvalHandler.Approve)
			approvals.POST("/:id/reject", approvalHandler.Reject)
			approvals.POST("/processes", requireSystemAdmin, approvalHandler.SaveProcess)
		}
	}

	return router
}
