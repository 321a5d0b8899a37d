package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// CallerFromContext returns the identity stored by the auth middleware.
func CallerFromContext(c *gin.Context) *models.UserSession {
	v, exists := c.Get(constants.ContextKeyCaller)
	if !exists {
		return nil
	}
	caller, _ := v.(*models.UserSession)
	return caller
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	message := err.Error()

	if code >= http.StatusInternalServerError {
		zap.L().Error("❌ Request failed",
			zap.Int("status", code),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(code, gin.H{
		constants.ResponseError:   message,
		constants.ResponseMessage: message,
		constants.ResponseCode:    errors.GetErrorCode(err),
		constants.ResponseData:    nil,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// HandleCreateEnvelope binds the body into obj, runs the action and returns
// what it produced, or obj when it produced nothing.
// Response: { message: successMsg, [key]: result }
func HandleCreateEnvelope(c *gin.Context, key, successMsg string, obj interface{}, action func() (interface{}, error)) {
	handleWrite(c, http.StatusCreated, key, successMsg, obj, action)
}

// HandleUpdateEnvelope is HandleCreateEnvelope answering 200.
func HandleUpdateEnvelope(c *gin.Context, key, successMsg string, obj interface{}, action func() (interface{}, error)) {
	handleWrite(c, http.StatusOK, key, successMsg, obj, action)
}

func handleWrite(c *gin.Context, status int, key, successMsg string, obj interface{}, action func() (interface{}, error)) {
	if !BindJSON(c, obj) {
		return
	}
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if result == nil {
		result = obj
	}
	response := gin.H{constants.ResponseMessage: successMsg}
	if key != "" {
		response[key] = result
	}
	c.JSON(status, response)
}

// HandleDeleteEnvelope executes a delete action and returns a success message
// Response: { message: successMsg }
func HandleDeleteEnvelope(c *gin.Context, successMsg string, action func() error) {
	if err := action(); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.ResponseMessage: successMsg})
}
