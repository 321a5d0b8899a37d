package rest

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/internal/application/services"
	"github.com/nexuscrm/kernel/pkg/models"
)

// PermissionService is the permission engine as seen by the HTTP adapter.
type PermissionService interface {
	Describe(ctx context.Context, caller *models.UserSession, objectAPIName string) (*services.AccessSummary, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
	SaveRole(ctx context.Context, role *models.Role) error
	SaveSharingRule(ctx context.Context, rule *models.SharingRule) error
	SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error
	SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error
	SharingRules(ctx context.Context) ([]*models.SharingRule, error)
}

type PermissionHandler struct {
	svc PermissionService
}

func NewPermissionHandler(svc PermissionService) *PermissionHandler {
	return &PermissionHandler{svc: svc}
}

// Describe handles GET /api/permissions/:object
func (h *PermissionHandler) Describe(c *gin.Context) {
	user := CallerFromContext(c)
	objectAPIName := strings.ToLower(c.Param("object"))
	HandleGetEnvelope(c, "access", func() (interface{}, error) {
		return h.svc.Describe(c.Request.Context(), user, objectAPIName)
	})
}

// SaveProfile handles POST /api/security/profiles
func (h *PermissionHandler) SaveProfile(c *gin.Context) {
	var profile models.Profile
	HandleCreateEnvelope(c, "profile", "Profile saved successfully", &profile, func() (interface{}, error) {
		return nil, h.svc.SaveProfile(c.Request.Context(), &profile)
	})
}

// SaveRole handles POST /api/security/roles
func (h *PermissionHandler) SaveRole(c *gin.Context) {
	var role models.Role
	HandleCreateEnvelope(c, "role", "Role saved successfully", &role, func() (interface{}, error) {
		return nil, h.svc.SaveRole(c.Request.Context(), &role)
	})
}

// GetSharingRules handles GET /api/security/sharing-rules
func (h *PermissionHandler) GetSharingRules(c *gin.Context) {
	HandleGetEnvelope(c, "rules", func() (interface{}, error) {
		rules, err := h.svc.SharingRules(c.Request.Context())
		if rules == nil && err == nil {
			rules = []*models.SharingRule{}
		}
		return rules, err
	})
}

// SaveSharingRule handles POST /api/security/sharing-rules
func (h *PermissionHandler) SaveSharingRule(c *gin.Context) {
	var rule models.SharingRule
	HandleCreateEnvelope(c, "rule", "Sharing rule saved successfully", &rule, func() (interface{}, error) {
		rule.ObjectAPIName = strings.ToLower(rule.ObjectAPIName)
		return nil, h.svc.SaveSharingRule(c.Request.Context(), &rule)
	})
}

// SaveObjectPermission handles PUT /api/security/object-permissions
func (h *PermissionHandler) SaveObjectPermission(c *gin.Context) {
	var perm models.ObjectPermission
	HandleUpdateEnvelope(c, "permission", "Object permission saved successfully", &perm, func() (interface{}, error) {
		return nil, h.svc.SaveObjectPermission(c.Request.Context(), &perm)
	})
}

// SaveFieldPermission handles PUT /api/security/field-permissions
func (h *PermissionHandler) SaveFieldPermission(c *gin.Context) {
	var perm models.FieldPermission
	HandleUpdateEnvelope(c, "permission", "Field permission saved successfully", &perm, func() (interface{}, error) {
		return nil, h.svc.SaveFieldPermission(c.Request.Context(), &perm)
	})
}
