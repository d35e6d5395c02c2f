package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

const ruleColumns = `id, name, description, enabled, log_type, pattern_type, pattern_value,
	threshold_count, threshold_window_minutes, created_at_ns, updated_at_ns`

type sqlRuleRepo struct {
	conn
}

func (r *sqlRuleRepo) Create(ctx context.Context, rule *models.MonitoringRule) error {
	query := `
		INSERT INTO monitoring_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.exec(ctx, query,
		rule.ID, rule.Name, nullString(rule.Description), boolToInt(rule.Enabled),
		nullString(string(rule.LogKind)), string(rule.PatternKind), rule.Pattern,
		nullInt(rule.ThresholdCount), nullInt(rule.ThresholdWindowMinutes),
		toNanos(rule.CreatedAt), toNanos(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (r *sqlRuleRepo) GetByID(ctx context.Context, id string) (*models.MonitoringRule, error) {
	row := r.queryRow(ctx, "SELECT "+ruleColumns+" FROM monitoring_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (r *sqlRuleRepo) Update(ctx context.Context, rule *models.MonitoringRule) error {
	query := `
		UPDATE monitoring_rules SET name = ?, description = ?, enabled = ?, log_type = ?,
			pattern_type = ?, pattern_value = ?, threshold_count = ?,
			threshold_window_minutes = ?, updated_at_ns = ?
		WHERE id = ?
	`
	result, err := r.exec(ctx, query,
		rule.Name, nullString(rule.Description), boolToInt(rule.Enabled),
		nullString(string(rule.LogKind)), string(rule.PatternKind), rule.Pattern,
		nullInt(rule.ThresholdCount), nullInt(rule.ThresholdWindowMinutes),
		toNanos(rule.UpdatedAt), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return expectOne(result, "rule", rule.ID)
}

func (r *sqlRuleRepo) Delete(ctx context.Context, id string) error {
	// Actions go with their rule. Deleted explicitly as well so that
	// backends without enforced foreign keys behave the same.
	if _, err := r.exec(ctx, "DELETE FROM actions WHERE rule_id = ?", id); err != nil {
		return fmt.Errorf("delete rule actions: %w", err)
	}
	result, err := r.exec(ctx, "DELETE FROM monitoring_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectOne(result, "rule", id)
}

func (r *sqlRuleRepo) List(ctx context.Context) ([]*models.MonitoringRule, error) {
	return r.queryRules(ctx, "SELECT "+ruleColumns+" FROM monitoring_rules ORDER BY created_at_ns, id")
}

func (r *sqlRuleRepo) ListEnabled(ctx context.Context) ([]*models.MonitoringRule, error) {
	return r.queryRules(ctx, "SELECT "+ruleColumns+" FROM monitoring_rules WHERE enabled = 1 ORDER BY created_at_ns, id")
}

func (r *sqlRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.exec(ctx,
		"UPDATE monitoring_rules SET enabled = ?, updated_at_ns = ? WHERE id = ?",
		boolToInt(enabled), toNanos(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	return expectOne(result, "rule", id)
}

func (r *sqlRuleRepo) queryRules(ctx context.Context, query string, args ...any) ([]*models.MonitoringRule, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.MonitoringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(s rowScanner) (*models.MonitoringRule, error) {
	rule := &models.MonitoringRule{}
	var (
		description, logKind sql.NullString
		enabled              int
		patternKind          string
		count, window        sql.NullInt64
		created, updated     int64
	)
	err := s.Scan(&rule.ID, &rule.Name, &description, &enabled, &logKind, &patternKind,
		&rule.Pattern, &count, &window, &created, &updated)
	if err != nil {
		return nil, err
	}
	rule.Description = description.String
	rule.Enabled = enabled != 0
	rule.LogKind = models.LogKind(logKind.String)
	rule.PatternKind = models.PatternKind(patternKind)
	rule.ThresholdCount = intPtr(count)
	rule.ThresholdWindowMinutes = intPtr(window)
	rule.CreatedAt = fromNanos(created)
	rule.UpdatedAt = fromNanos(updated)
	return rule, nil
}

func expectOne(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
