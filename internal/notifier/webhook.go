package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/metrics"
	"github.com/good-yellow-bee/callwatch/internal/models"
)

// maxResponseChars bounds the response body kept in the result.
const maxResponseChars = 500

// WebhookOptions configures HTTP delivery.
type WebhookOptions struct {
	Timeout       time.Duration // per attempt, default 30s
	RetryAttempts int           // total attempts, default 3
	RetryDelay    time.Duration // fixed pause between attempts
	Client        *http.Client  // optional, overrides Timeout
}

func (o WebhookOptions) withDefaults() WebhookOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// WebhookActionConfig is the per-action webhook configuration.
type WebhookActionConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Data, when non-empty, is sent verbatim instead of the default payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// WebhookPayload is the default JSON body sent for a log.
type WebhookPayload struct {
	LogID        string  `json:"log_id"`
	TwilioSID    string  `json:"twilio_sid"`
	LogType      string  `json:"log_type"`
	Timestamp    string  `json:"timestamp"`
	Status       *string `json:"status"`
	ErrorCode    *string `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	FromNumber   *string `json:"from_number"`
	ToNumber     *string `json:"to_number"`
}

// NewWebhookPayload builds the default payload; absent fields are null.
func NewWebhookPayload(log *models.Log) WebhookPayload {
	return WebhookPayload{
		LogID:        log.ID,
		TwilioSID:    log.SID,
		LogType:      string(log.Kind),
		Timestamp:    isoTimestamp(log.Timestamp),
		Status:       optional(log.Status),
		ErrorCode:    optional(log.ErrorCode),
		ErrorMessage: optional(log.ErrorMessage),
		FromNumber:   optional(log.From),
		ToNumber:     optional(log.To),
	}
}

// isoTimestamp renders t in UTC as 2006-01-02T15:04:05+00:00, adding six
// fractional digits only when the microsecond part is non-zero.
func isoTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05-07:00")
	}
	return t.Format("2006-01-02T15:04:05.000000-07:00")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// WebhookHandler posts log payloads to arbitrary HTTP endpoints with retry.
type WebhookHandler struct {
	opts   WebhookOptions
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(opts WebhookOptions, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{opts: opts.withDefaults(), logger: logger, sleep: sleepContext}
}

// Kind returns models.ActionWebhook.
func (w *WebhookHandler) Kind() models.ActionKind {
	return models.ActionWebhook
}

// ValidateConfig requires an http(s) URL.
func (w *WebhookHandler) ValidateConfig(config json.RawMessage) error {
	_, err := parseWebhookConfig(config)
	return err
}

func parseWebhookConfig(config json.RawMessage) (*WebhookActionConfig, error) {
	var cfg WebhookActionConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, invalidConfig("webhook config missing 'url'")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, invalidConfig("webhook 'url' must start with http:// or https://")
	}
	return &cfg, nil
}

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Execute delivers the payload, retrying network errors and non-2xx
// responses up to RetryAttempts times with a fixed delay.
func (w *WebhookHandler) Execute(ctx context.Context, config json.RawMessage, log *models.Log) Result {
	cfg, err := parseWebhookConfig(config)
	if err != nil {
		return failure(err)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	body, err := webhookBody(cfg, log)
	if err != nil {
		return Result{Success: false, Error: err.Error(), URL: cfg.URL}
	}

	attempts := w.opts.RetryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		if method != http.MethodPost && method != http.MethodPut {
			return Result{Success: false, Error: fmt.Sprintf("unsupported HTTP method: %s", method), URL: cfg.URL}
		}

		w.logger.Info("sending webhook",
			zap.String("url", cfg.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))

		status, text, err := w.send(ctx, method, cfg, body)
		if err == nil {
			metrics.WebhookAttemptsTotal.WithLabelValues("success").Inc()
			w.logger.Info("webhook sent successfully", zap.Int("status_code", status))
			return Result{
				Success:    true,
				StatusCode: status,
				Response:   truncate(text, maxResponseChars),
				URL:        cfg.URL,
				Attempts:   attempt,
			}
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			metrics.WebhookAttemptsTotal.WithLabelValues("error").Inc()
			w.logger.Error("unexpected error sending webhook", zap.Error(err))
			return Result{Success: false, Error: err.Error(), URL: cfg.URL, Attempts: attempt}
		}

		metrics.WebhookAttemptsTotal.WithLabelValues("retryable").Inc()
		w.logger.Warn("webhook attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == attempts {
			w.logger.Error("webhook failed after all attempts", zap.Int("attempts", attempts))
			return Result{Success: false, Error: err.Error(), StatusCode: status, URL: cfg.URL, Attempts: attempt}
		}

		if err := w.sleep(ctx, w.opts.RetryDelay); err != nil {
			return Result{Success: false, Error: err.Error(), URL: cfg.URL, Attempts: attempt}
		}
	}

	return Result{Success: false, Error: "unknown error", URL: cfg.URL}
}

// send performs one attempt and returns the status and response body.
func (w *WebhookHandler) send(ctx context.Context, method string, cfg *WebhookActionConfig, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", &retryableError{fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, "", &retryableError{fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, string(data), &retryableError{
			fmt.Errorf("server returned %d %s for url %s", resp.StatusCode, http.StatusText(resp.StatusCode), cfg.URL),
		}
	}
	return resp.StatusCode, string(data), nil
}

// webhookBody returns the configured data verbatim, or the default payload.
func webhookBody(cfg *WebhookActionConfig, log *models.Log) ([]byte, error) {
	if hasData(cfg.Data) {
		return cfg.Data, nil
	}
	body, err := json.Marshal(NewWebhookPayload(log))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return body, nil
}

// hasData reports whether data is present and not an empty document.
func hasData(data json.RawMessage) bool {
	switch strings.TrimSpace(string(data)) {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
