// Package alerting evaluates ingested logs against monitoring rules and
// hands matched actions to the dispatcher.
package alerting

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// Threshold pattern prefixes that narrow the window count.
const (
	thresholdErrorCodePrefix = "error_code:"
	thresholdStatusPrefix    = "status:"
)

// ValidateRule checks a rule before it is stored. The matcher tolerates
// invalid rules at evaluation time; this is the strict entry point used by
// the API and the seed loader.
func ValidateRule(r *models.MonitoringRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.LogKind != "" && !r.LogKind.Valid() {
		return fmt.Errorf("invalid log type %q for rule %q", r.LogKind, r.Name)
	}
	if !r.PatternKind.Valid() {
		return fmt.Errorf("invalid pattern type %q for rule %q", r.PatternKind, r.Name)
	}

	switch r.PatternKind {
	case models.PatternErrorCode, models.PatternStatus:
		if len(ParseList(r.Pattern)) == 0 {
			return fmt.Errorf("pattern value is required for %s rule %q", r.PatternKind, r.Name)
		}
	case models.PatternRegex:
		if r.Pattern == "" {
			return fmt.Errorf("pattern value is required for regex rule %q", r.Name)
		}
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return fmt.Errorf("invalid pattern %q for rule %q: %w", r.Pattern, r.Name, err)
		}
	case models.PatternThreshold:
		if r.ThresholdCount == nil || *r.ThresholdCount <= 0 {
			return fmt.Errorf("threshold_count must be positive for threshold rule %q", r.Name)
		}
		if r.ThresholdWindowMinutes == nil || *r.ThresholdWindowMinutes <= 0 {
			return fmt.Errorf("threshold_window_minutes must be positive for threshold rule %q", r.Name)
		}
	}
	return nil
}

// ParseList splits a comma-separated pattern value, trimming whitespace and
// dropping empty entries.
func ParseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// thresholdFilter derives the window narrowing from a threshold pattern value.
func thresholdFilter(pattern string) models.WindowFilter {
	switch {
	case strings.HasPrefix(pattern, thresholdErrorCodePrefix):
		return models.WindowFilter{ErrorCodes: ParseList(strings.TrimPrefix(pattern, thresholdErrorCodePrefix))}
	case strings.HasPrefix(pattern, thresholdStatusPrefix):
		return models.WindowFilter{Statuses: ParseList(strings.TrimPrefix(pattern, thresholdStatusPrefix))}
	}
	return models.WindowFilter{}
}
