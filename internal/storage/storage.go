// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
	// DB returns the underlying connection for health checks.
	DB() *sql.DB

	Logs() LogRepository
	Rules() RuleRepository
	Actions() ActionRepository
	AlertHistory() AlertHistoryRepository
}

// LogRepository defines operations over ingested logs.
type LogRepository interface {
	// Create inserts the log unless its SID is already stored. It reports
	// whether a row was written.
	Create(ctx context.Context, log *models.Log) (bool, error)
	Exists(ctx context.Context, sid string) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Log, error)
	List(ctx context.Context, filter models.LogFilter) ([]*models.Log, int64, error)
	// ListUnprocessed returns logs with processed=false, oldest first.
	ListUnprocessed(ctx context.Context) ([]*models.Log, error)
	// CountInWindow counts logs of kind (any kind when empty) with
	// start <= timestamp <= end, narrowed by filter.
	CountInWindow(ctx context.Context, kind models.LogKind, start, end time.Time, filter models.WindowFilter) (int, error)
	// MarkProcessed flips processed to true. It reports false when the log
	// was already processed.
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// RuleRepository defines operations for monitoring rule management.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.MonitoringRule) error
	GetByID(ctx context.Context, id string) (*models.MonitoringRule, error)
	Update(ctx context.Context, rule *models.MonitoringRule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.MonitoringRule, error)
	ListEnabled(ctx context.Context) ([]*models.MonitoringRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// ActionRepository defines operations for rule actions.
type ActionRepository interface {
	Create(ctx context.Context, action *models.Action) error
	GetByID(ctx context.Context, id string) (*models.Action, error)
	Delete(ctx context.Context, id string) error
	ListByRule(ctx context.Context, ruleID string) ([]*models.Action, error)
	ListEnabledForRule(ctx context.Context, ruleID string) ([]*models.Action, error)
}

// AlertHistoryRepository defines operations for alert history.
type AlertHistoryRepository interface {
	Append(ctx context.Context, history *models.AlertHistory) error
	List(ctx context.Context, limit, offset int) ([]*models.AlertHistory, int64, error)
	ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.AlertHistory, int64, error)
}
