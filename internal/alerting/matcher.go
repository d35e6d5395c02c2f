package alerting

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// WindowCounter counts stored logs in a time range.
type WindowCounter interface {
	CountInWindow(ctx context.Context, kind models.LogKind, start, end time.Time, filter models.WindowFilter) (int, error)
}

// Matcher evaluates whether a log matches a monitoring rule.
type Matcher struct {
	counter WindowCounter
	logger  *zap.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
	invalid  map[string]error
}

// NewMatcher creates a Matcher. counter backs threshold rules.
func NewMatcher(counter WindowCounter, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		counter:  counter,
		logger:   logger,
		patterns: make(map[string]*regexp.Regexp),
		invalid:  make(map[string]error),
	}
}

// Match reports whether log matches rule. Misconfigured rules never match
// and are logged; the only error returned is a failed threshold count.
func (m *Matcher) Match(ctx context.Context, log *models.Log, rule *models.MonitoringRule) (bool, error) {
	if !rule.Enabled {
		return false, nil
	}
	if rule.LogKind != "" && rule.LogKind != log.Kind {
		return false, nil
	}

	switch rule.PatternKind {
	case models.PatternErrorCode:
		return m.matchErrorCode(log, rule), nil
	case models.PatternRegex:
		return m.matchRegex(log, rule), nil
	case models.PatternStatus:
		return m.matchStatus(log, rule), nil
	case models.PatternThreshold:
		return m.matchThreshold(ctx, log, rule)
	default:
		m.logger.Warn("unknown pattern type",
			zap.String("rule_id", rule.ID),
			zap.String("pattern_type", string(rule.PatternKind)))
		return false, nil
	}
}

func (m *Matcher) matchErrorCode(log *models.Log, rule *models.MonitoringRule) bool {
	if log.ErrorCode == "" {
		return false
	}
	for _, code := range ParseList(rule.Pattern) {
		if code == log.ErrorCode {
			return true
		}
	}
	return false
}

func (m *Matcher) matchStatus(log *models.Log, rule *models.MonitoringRule) bool {
	if log.Status == "" {
		return false
	}
	for _, status := range ParseList(rule.Pattern) {
		if strings.EqualFold(status, log.Status) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchRegex(log *models.Log, rule *models.MonitoringRule) bool {
	re, err := m.compile(rule.Pattern)
	if err != nil {
		m.logger.Error("invalid regex pattern",
			zap.String("rule_id", rule.ID),
			zap.String("pattern", rule.Pattern),
			zap.Error(err))
		return false
	}

	if log.ErrorMessage != "" && re.MatchString(log.ErrorMessage) {
		return true
	}
	if raw := log.RawText(); raw != "" && re.MatchString(raw) {
		return true
	}
	return false
}

func (m *Matcher) matchThreshold(ctx context.Context, log *models.Log, rule *models.MonitoringRule) (bool, error) {
	if rule.ThresholdCount == nil || *rule.ThresholdCount <= 0 ||
		rule.ThresholdWindowMinutes == nil || *rule.ThresholdWindowMinutes <= 0 {
		m.logger.Warn("threshold rule missing count or window", zap.String("rule_id", rule.ID))
		return false, nil
	}
	if m.counter == nil {
		return false, fmt.Errorf("threshold rule %s: no window counter configured", rule.ID)
	}

	end := log.Timestamp
	start := end.Add(-rule.ThresholdWindow())
	count, err := m.counter.CountInWindow(ctx, rule.LogKind, start, end, thresholdFilter(rule.Pattern))
	if err != nil {
		return false, fmt.Errorf("threshold rule %s: %w", rule.ID, err)
	}

	m.logger.Debug("threshold check",
		zap.String("rule_id", rule.ID),
		zap.Int("count", count),
		zap.Int("threshold", *rule.ThresholdCount),
		zap.Int("window_minutes", *rule.ThresholdWindowMinutes))

	return count >= *rule.ThresholdCount, nil
}

// compile returns the cached case-insensitive regex for pattern.
func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.patterns[pattern]; ok {
		return re, nil
	}
	if err, ok := m.invalid[pattern]; ok {
		return nil, err
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		m.invalid[pattern] = err
		return nil, err
	}
	m.patterns[pattern] = re
	return re, nil
}
