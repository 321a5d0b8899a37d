package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/kernel/pkg/auth"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.GetHTTPStatus(err), gin.H{
		constants.ResponseError:   err.Error(),
		constants.ResponseMessage: err.Error(),
		constants.ResponseCode:    errors.GetErrorCode(err),
		constants.ResponseData:    nil,
	})
}

// RequireAuth is a middleware that validates JWT tokens
func RequireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			abort(c, errors.NewUnauthorizedError("no authorization token provided"))
			return
		}

		// Format: "Bearer <token>"
		if !strings.HasPrefix(authHeader, constants.BearerPrefix) {
			abort(c, errors.NewUnauthorizedError("invalid authorization header format"))
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, constants.BearerPrefix))

		claims, err := verifier.ValidateToken(tokenString)
		if err != nil {
			abort(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		caller := claims.User
		c.Set(constants.ContextKeyCaller, &caller)
		c.Next()
	}
}

// RequireSystemAdmin checks if the user is a system administrator
func RequireSystemAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(constants.ContextKeyCaller)
		caller, _ := v.(*models.UserSession)
		if !exists || caller == nil {
			abort(c, errors.NewUnauthorizedError("user not authenticated"))
			return
		}
		if !caller.IsSuperUser() {
			abort(c, errors.NewPermissionError("administer", "metadata"))
			return
		}
		c.Next()
	}
}
