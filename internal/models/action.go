package models

import (
	"encoding/json"
	"time"
)

// ActionKind is the notification channel of an action.
type ActionKind string

const (
	ActionEmail   ActionKind = "email"
	ActionWebhook ActionKind = "webhook"
	ActionChat    ActionKind = "chat"
)

// Action is a notification attached to a rule.
type Action struct {
	ID      string          `json:"id"`
	RuleID  string          `json:"rule_id"`
	Kind    ActionKind      `json:"action_type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config"`

	CreatedAt time.Time `json:"created_at"`
}
