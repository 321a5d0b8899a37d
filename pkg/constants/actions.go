package constants

// Action kinds carried by flow action steps.
const (
	ActionTypeCreateRecord = "createRecord"
	ActionTypeUpdateRecord = "updateRecord"
	ActionTypeSendEmail    = "sendEmail"
	ActionTypeCallWebhook  = "callWebhook"
)
