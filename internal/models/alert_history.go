package models

import (
	"encoding/json"
	"time"
)

// AlertHistory records one action execution for a log.
type AlertHistory struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"rule_id"`
	LogID       string          `json:"log_id"`
	ActionID    string          `json:"action_id"`
	TriggeredAt time.Time       `json:"triggered_at"`
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"execution_result"`
}
