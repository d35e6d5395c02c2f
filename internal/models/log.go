// Package models contains the core data structures for callwatch.
package models

import (
	"encoding/json"
	"time"
)

// LogKind identifies the provider resource a log was built from.
type LogKind string

const (
	LogKindCall    LogKind = "call"
	LogKindMessage LogKind = "message"
	LogKindError   LogKind = "error"
	LogKindWarning LogKind = "warning"
	LogKindDebug   LogKind = "debug"
)

// Valid reports whether k is one of the known log kinds.
func (k LogKind) Valid() bool {
	switch k {
	case LogKindCall, LogKindMessage, LogKindError, LogKindWarning, LogKindDebug:
		return true
	}
	return false
}

// Log is a single telemetry event ingested from the telephony provider.
type Log struct {
	ID string `json:"id"`

	// SID is the provider identifier and the dedup key.
	SID string `json:"twilio_sid"`

	Kind      LogKind   `json:"log_type"`
	Timestamp time.Time `json:"timestamp"`

	Status       string `json:"status,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	From         string `json:"from_number,omitempty"`
	To           string `json:"to_number,omitempty"`

	// RawData is the provider payload as received.
	RawData json.RawMessage `json:"raw_data,omitempty"`

	// Processed flips to true once, after the engine has evaluated the log.
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// RawText returns the raw payload as a string, or "" when none is stored.
func (l *Log) RawText() string {
	if len(l.RawData) == 0 || string(l.RawData) == "null" {
		return ""
	}
	return string(l.RawData)
}

// LogFilter narrows a log listing.
type LogFilter struct {
	Processed *bool
	Kind      LogKind
	Limit     int
	Offset    int
}

// WindowFilter narrows a threshold window count to a set of error codes or statuses.
// At most one of the two sets is non-empty.
type WindowFilter struct {
	ErrorCodes []string
	Statuses   []string
}
