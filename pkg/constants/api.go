package constants

// HTTP constants used by the boundary adapter
const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "

	ContextKeyCaller = "caller"

	// Response envelope keys
	ResponseError   = "error"
	ResponseMessage = "message"
	ResponseCode    = "code"
	ResponseData    = "data"
)
