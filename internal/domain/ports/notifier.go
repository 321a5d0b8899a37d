package ports

import "context"

// EmailMessage is a rendered outgoing email.
type EmailMessage struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Mailer delivers email for the sendEmail action.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// WebhookRequest is a rendered outgoing webhook call.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Payload map[string]interface{}
}

// WebhookCaller performs a single webhook attempt and returns the HTTP status.
type WebhookCaller interface {
	Call(ctx context.Context, req WebhookRequest) (int, error)
}
