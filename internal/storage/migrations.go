package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order. The DDL is shared by
// both dialects: timestamps are BIGINT unix nanoseconds and flags are INTEGER.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS logs (
				id TEXT PRIMARY KEY,
				sid TEXT NOT NULL,
				log_type TEXT NOT NULL,
				timestamp_ns BIGINT NOT NULL,
				status TEXT,
				error_code TEXT,
				error_message TEXT,
				from_number TEXT,
				to_number TEXT,
				raw_data TEXT,
				processed INTEGER NOT NULL DEFAULT 0,
				created_at_ns BIGINT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS monitoring_rules (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				enabled INTEGER NOT NULL DEFAULT 1,
				log_type TEXT,
				pattern_type TEXT NOT NULL,
				pattern_value TEXT NOT NULL,
				threshold_count INTEGER,
				threshold_window_minutes INTEGER,
				created_at_ns BIGINT NOT NULL,
				updated_at_ns BIGINT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS actions (
				id TEXT PRIMARY KEY,
				rule_id TEXT NOT NULL,
				action_type TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				config TEXT NOT NULL,
				created_at_ns BIGINT NOT NULL,
				FOREIGN KEY (rule_id) REFERENCES monitoring_rules(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				rule_id TEXT NOT NULL,
				log_id TEXT NOT NULL,
				action_id TEXT NOT NULL,
				triggered_at_ns BIGINT NOT NULL,
				success INTEGER NOT NULL,
				execution_result TEXT NOT NULL
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_logs_sid ON logs(sid);
			CREATE INDEX IF NOT EXISTS idx_logs_processed_ts ON logs(processed, timestamp_ns);
			CREATE INDEX IF NOT EXISTS idx_logs_type_ts ON logs(log_type, timestamp_ns);
			CREATE INDEX IF NOT EXISTS idx_rules_enabled ON monitoring_rules(enabled);
			CREATE INDEX IF NOT EXISTS idx_actions_rule ON actions(rule_id);
			CREATE INDEX IF NOT EXISTS idx_alert_history_rule ON alert_history(rule_id);
			CREATE INDEX IF NOT EXISTS idx_alert_history_triggered ON alert_history(triggered_at_ns);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at_ns BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.ExecContext(ctx,
			rebind(dialect, "INSERT INTO schema_migrations (version, name, applied_at_ns) VALUES (?, ?, ?)"),
			m.Version, m.Name, toNanos(time.Now()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
