package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/metrics"
	"github.com/good-yellow-bee/callwatch/internal/models"
)

// HistoryRecorder persists action outcomes.
type HistoryRecorder interface {
	Append(ctx context.Context, history *models.AlertHistory) error
}

// Dispatcher runs actions through their handlers and records each outcome.
type Dispatcher struct {
	registry *Registry
	history  HistoryRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *Registry, history HistoryRecorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		history:  history,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteAction executes action for log and reports success. Disabled
// actions and unknown action types are skipped without a history row;
// everything else appends exactly one row.
func (d *Dispatcher) ExecuteAction(ctx context.Context, action *models.Action, log *models.Log) bool {
	logger := d.logger.With(
		zap.String("action_id", action.ID),
		zap.String("action_type", string(action.Kind)),
		zap.String("log_id", log.ID))

	if !action.Enabled {
		logger.Warn("action is disabled, skipping")
		return false
	}

	handler, ok := d.registry.Get(action.Kind)
	if !ok {
		logger.Error("no handler found for action type")
		return false
	}

	logger.Info("executing action")
	start := time.Now()
	result := d.execute(ctx, handler, action, log)
	metrics.ActionDuration.WithLabelValues(string(action.Kind)).Observe(time.Since(start).Seconds())
	metrics.ActionsDispatchedTotal.WithLabelValues(string(action.Kind), metrics.ResultLabel(result.Success)).Inc()

	if result.Success {
		logger.Info("action executed successfully")
	} else {
		logger.Error("action failed", zap.String("error", result.Error))
	}

	d.record(ctx, action, log, result, logger)
	return result.Success
}

// execute runs the handler, converting a panic into a failed result.
func (d *Dispatcher) execute(ctx context.Context, h Handler, action *models.Action, log *models.Log) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Error: fmt.Sprintf("%v", r)}
		}
	}()
	return h.Execute(ctx, action.Config, log)
}

func (d *Dispatcher) record(ctx context.Context, action *models.Action, log *models.Log, result Result, logger *zap.Logger) {
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"success":%t}`, result.Success))
	}

	entry := &models.AlertHistory{
		ID:          uuid.New().String(),
		RuleID:      action.RuleID,
		LogID:       log.ID,
		ActionID:    action.ID,
		TriggeredAt: d.now(),
		Success:     result.Success,
		Result:      body,
	}
	// The pass context may be cancelled mid-dispatch; the outcome is still recorded.
	if err := d.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to record alert history", zap.Error(err))
	}
}
