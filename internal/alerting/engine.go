package alerting

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/metrics"
	"github.com/good-yellow-bee/callwatch/internal/models"
)

// LogStore is the part of the log repository the engine needs.
type LogStore interface {
	ListUnprocessed(ctx context.Context) ([]*models.Log, error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// RuleStore lists the rules to evaluate.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]*models.MonitoringRule, error)
}

// ActionStore lists the actions attached to a rule.
type ActionStore interface {
	ListEnabledForRule(ctx context.Context, ruleID string) ([]*models.Action, error)
}

// Dispatcher executes one action for one log.
type Dispatcher interface {
	ExecuteAction(ctx context.Context, action *models.Action, log *models.Log) bool
}

// Engine runs processing passes over unprocessed logs.
type Engine struct {
	logs       LogStore
	rules      RuleStore
	actions    ActionStore
	matcher    *Matcher
	dispatcher Dispatcher
	logger     *zap.Logger

	stats *EngineStats
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	LogsEvaluated     atomic.Int64
	LogErrors         atomic.Int64
	RuleMatches       atomic.Int64
	ActionsDispatched atomic.Int64
	ActionsFailed     atomic.Int64
	AlreadyProcessed  atomic.Int64
}

// NewEngine wires an engine from its collaborators.
func NewEngine(logs LogStore, rules RuleStore, actions ActionStore, matcher *Matcher, dispatcher Dispatcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logs:       logs,
		rules:      rules,
		actions:    actions,
		matcher:    matcher,
		dispatcher: dispatcher,
		logger:     logger,
		stats:      &EngineStats{},
	}
}

// ProcessUnprocessedLogs evaluates every unprocessed log, oldest first, and
// returns how many were evaluated. A failure on one log is logged and the
// pass moves on. Cancelling ctx stops the pass between logs.
func (e *Engine) ProcessUnprocessedLogs(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	logs, err := e.logs.ListUnprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed logs: %w", err)
	}
	e.logger.Info("processing unprocessed logs", zap.Int("count", len(logs)))

	evaluated := 0
	for _, l := range logs {
		if err := ctx.Err(); err != nil {
			return evaluated, err
		}
		evaluated++
		e.stats.LogsEvaluated.Add(1)
		metrics.LogsEvaluatedTotal.Inc()

		if err := e.processLog(ctx, l); err != nil {
			e.stats.LogErrors.Add(1)
			metrics.LogErrorsTotal.Inc()
			e.logger.Error("error processing log", zap.String("log_id", l.ID), zap.Error(err))
		}
	}

	e.logger.Info("processing pass complete",
		zap.Int("evaluated", evaluated),
		zap.Duration("duration", time.Since(start)))
	return evaluated, nil
}

// processLog matches, claims the log, then dispatches. A matching failure
// leaves the log unclaimed so the next pass evaluates it again; a log
// claimed by another pass is not dispatched.
func (e *Engine) processLog(ctx context.Context, l *models.Log) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	actions, err := e.collectActions(ctx, l)
	if err != nil {
		return err
	}

	claimed, err := e.logs.MarkProcessed(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if !claimed {
		e.stats.AlreadyProcessed.Add(1)
		e.logger.Debug("log already processed, skipping dispatch", zap.String("log_id", l.ID))
		return nil
	}

	for _, action := range actions {
		if e.dispatcher.ExecuteAction(ctx, action, l) {
			e.stats.ActionsDispatched.Add(1)
		} else {
			e.stats.ActionsFailed.Add(1)
		}
	}
	return nil
}

// collectActions returns the enabled actions of every matching rule, in rule
// order. An action reachable from two rules appears twice.
func (e *Engine) collectActions(ctx context.Context, l *models.Log) (actions []*models.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			actions, err = nil, fmt.Errorf("panic while matching: %v", r)
		}
	}()

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}

	for _, rule := range rules {
		matched, err := e.matcher.Match(ctx, l, rule)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}

		e.stats.RuleMatches.Add(1)
		metrics.RuleMatchesTotal.WithLabelValues(string(rule.PatternKind)).Inc()
		e.logger.Info("log matched rule",
			zap.String("log_id", l.ID),
			zap.String("rule_id", rule.ID),
			zap.String("rule", rule.Name))

		ruleActions, err := e.actions.ListEnabledForRule(ctx, rule.ID)
		if err != nil {
			return nil, fmt.Errorf("list actions for rule %s: %w", rule.ID, err)
		}
		for _, a := range ruleActions {
			if a.Enabled {
				actions = append(actions, a)
			}
		}
	}
	return actions, nil
}

// EngineStatsSnapshot is a snapshot of engine statistics for reporting.
type EngineStatsSnapshot struct {
	LogsEvaluated     int64 `json:"logs_evaluated"`
	LogErrors         int64 `json:"log_errors"`
	RuleMatches       int64 `json:"rule_matches"`
	ActionsDispatched int64 `json:"actions_dispatched"`
	ActionsFailed     int64 `json:"actions_failed"`
	AlreadyProcessed  int64 `json:"already_processed"`
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		LogsEvaluated:     e.stats.LogsEvaluated.Load(),
		LogErrors:         e.stats.LogErrors.Load(),
		RuleMatches:       e.stats.RuleMatches.Load(),
		ActionsDispatched: e.stats.ActionsDispatched.Load(),
		ActionsFailed:     e.stats.ActionsFailed.Load(),
		AlreadyProcessed:  e.stats.AlreadyProcessed.Load(),
	}
}
