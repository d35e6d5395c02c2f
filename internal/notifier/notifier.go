// Package notifier executes rule actions over email, generic webhooks and
// Google Chat, and records every outcome in the alert history.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// Handler is the interface for all notification channels.
type Handler interface {
	// Kind returns the action type the handler serves.
	Kind() models.ActionKind
	// ValidateConfig checks an action's channel configuration.
	ValidateConfig(config json.RawMessage) error
	// Execute performs the action for log. Failures are reported in the
	// result, never as a panic or error.
	Execute(ctx context.Context, config json.RawMessage, log *models.Log) Result
}

// Result is the execution outcome stored in the alert history.
type Result struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	StatusCode int      `json:"status_code,omitempty"`
	Response   string   `json:"response,omitempty"`
	URL        string   `json:"url,omitempty"`
	Attempts   int      `json:"attempts,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// ErrInvalidConfig wraps channel configuration errors.
var ErrInvalidConfig = errors.New("invalid configuration")

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// decodeConfig unmarshals an action config, treating an empty document as {}.
func decodeConfig(config json.RawMessage, v any) error {
	if len(config) == 0 || string(config) == "null" {
		config = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(config, v); err != nil {
		return invalidConfig("%v", err)
	}
	return nil
}

// Registry maps action kinds to handlers. It is built once at startup.
type Registry struct {
	handlers map[models.ActionKind]Handler
}

// NewRegistry creates a registry. A later handler replaces an earlier one of
// the same kind.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[models.ActionKind]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Kind()] = h
	}
	return r
}

// Get returns the handler for kind.
func (r *Registry) Get(kind models.ActionKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered action kinds, sorted.
func (r *Registry) Kinds() []models.ActionKind {
	kinds := make([]models.ActionKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ValidateConfig validates config with the handler registered for kind.
func (r *Registry) ValidateConfig(kind models.ActionKind, config json.RawMessage) error {
	h, ok := r.Get(kind)
	if !ok {
		return fmt.Errorf("unsupported action type %q", kind)
	}
	return h.ValidateConfig(config)
}
