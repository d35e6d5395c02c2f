package models

import "time"

// PatternKind selects how a rule's pattern value is interpreted.
type PatternKind string

const (
	PatternErrorCode PatternKind = "error_code"
	PatternRegex     PatternKind = "regex"
	PatternStatus    PatternKind = "status"
	PatternThreshold PatternKind = "threshold"
)

// Valid reports whether p is a supported pattern kind.
func (p PatternKind) Valid() bool {
	switch p {
	case PatternErrorCode, PatternRegex, PatternStatus, PatternThreshold:
		return true
	}
	return false
}

// MonitoringRule is a user-defined predicate over logs.
type MonitoringRule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Enabled     bool        `json:"enabled"`
	LogKind     LogKind     `json:"log_type,omitempty"` // empty matches any kind
	PatternKind PatternKind `json:"pattern_type"`
	Pattern     string      `json:"pattern_value"`

	// Threshold fields, only read for PatternThreshold.
	ThresholdCount         *int `json:"threshold_count,omitempty"`
	ThresholdWindowMinutes *int `json:"threshold_window_minutes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThresholdWindow returns the configured window, or zero when unset.
func (r *MonitoringRule) ThresholdWindow() time.Duration {
	if r.ThresholdWindowMinutes == nil {
		return 0
	}
	return time.Duration(*r.ThresholdWindowMinutes) * time.Minute
}
