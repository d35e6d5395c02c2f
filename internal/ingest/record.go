package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// Conversion errors.
var (
	ErrMissingSID   = errors.New("record has no sid")
	ErrBadTimestamp = errors.New("unrecognized timestamp")
)

// flexString decodes a JSON string, number or null into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// callRecord is a provider call resource.
type callRecord struct {
	SID          string     `json:"sid"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	Status       string     `json:"status"`
	StartTime    string     `json:"start_time"`
	ErrorCode    flexString `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
}

// messageRecord is a provider message resource.
type messageRecord struct {
	SID          string     `json:"sid"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	Status       string     `json:"status"`
	DateSent     string     `json:"date_sent"`
	ErrorCode    flexString `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
}

// alertRecord is a provider monitor alert.
type alertRecord struct {
	SID         string     `json:"sid"`
	AlertText   string     `json:"alert_text"`
	LogLevel    string     `json:"log_level"`
	DateCreated string     `json:"date_created"`
	ErrorCode   flexString `json:"error_code"`
}

// Layouts accepted for provider timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp parses s in UTC, falling back to now when s is empty.
func parseTimestamp(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// SanitizePhone keeps only digits and '+'.
func SanitizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// kindFromLevel maps an alert log level to a log kind.
func kindFromLevel(level string) models.LogKind {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return models.LogKindError
	case "warning":
		return models.LogKindWarning
	default:
		return models.LogKindDebug
	}
}

func convertCall(raw json.RawMessage, now time.Time) (*models.Log, error) {
	var rec callRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	if rec.SID == "" {
		return nil, ErrMissingSID
	}
	ts, err := parseTimestamp(rec.StartTime, now)
	if err != nil {
		return nil, err
	}
	return &models.Log{
		SID:          rec.SID,
		Kind:         models.LogKindCall,
		Timestamp:    ts,
		Status:       rec.Status,
		ErrorCode:    string(rec.ErrorCode),
		ErrorMessage: rec.ErrorMessage,
		From:         SanitizePhone(rec.From),
		To:           SanitizePhone(rec.To),
		RawData:      raw,
	}, nil
}

func convertMessage(raw json.RawMessage, now time.Time) (*models.Log, error) {
	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if rec.SID == "" {
		return nil, ErrMissingSID
	}
	ts, err := parseTimestamp(rec.DateSent, now)
	if err != nil {
		return nil, err
	}
	return &models.Log{
		SID:          rec.SID,
		Kind:         models.LogKindMessage,
		Timestamp:    ts,
		Status:       rec.Status,
		ErrorCode:    string(rec.ErrorCode),
		ErrorMessage: rec.ErrorMessage,
		From:         SanitizePhone(rec.From),
		To:           SanitizePhone(rec.To),
		RawData:      raw,
	}, nil
}

func convertAlert(raw json.RawMessage, now time.Time) (*models.Log, error) {
	var rec alertRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	if rec.SID == "" {
		return nil, ErrMissingSID
	}
	ts, err := parseTimestamp(rec.DateCreated, now)
	if err != nil {
		return nil, err
	}
	return &models.Log{
		SID:          rec.SID,
		Kind:         kindFromLevel(rec.LogLevel),
		Timestamp:    ts,
		ErrorCode:    string(rec.ErrorCode),
		ErrorMessage: rec.AlertText,
		RawData:      raw,
	}, nil
}
