package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
)

// DefaultWebhookTimeout bounds a single webhook attempt.
const DefaultWebhookTimeout = 10 * time.Second

// HTTPWebhookCaller performs webhook calls with a bounded timeout and no retries.
type HTTPWebhookCaller struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPWebhookCaller creates a caller; a non-positive timeout uses the default.
func NewHTTPWebhookCaller(timeout time.Duration, logger *zap.Logger) *HTTPWebhookCaller {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPWebhookCaller{client: &http.Client{Timeout: timeout}, logger: logger}
}

// Call sends the JSON payload and returns the response status. Statuses of
// 400 and above are reported as errors alongside the code.
func (c *HTTPWebhookCaller) Call(ctx context.Context, req ports.WebhookRequest) (int, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet && req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize webhook payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("⚠️ Webhook failed", zap.String("url", req.URL), zap.String("method", method), zap.Error(err))
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("⚠️ Webhook error response", zap.String("url", req.URL), zap.Int("status", resp.StatusCode))
		return resp.StatusCode, fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	c.logger.Info("✅ Webhook delivered", zap.String("url", req.URL), zap.String("method", method), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, nil
}
