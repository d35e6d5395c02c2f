package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

const actionColumns = "id, rule_id, action_type, enabled, config, created_at_ns"

type sqlActionRepo struct {
	conn
}

func (r *sqlActionRepo) Create(ctx context.Context, a *models.Action) error {
	config := string(a.Config)
	if config == "" {
		config = "{}"
	}
	_, err := r.exec(ctx,
		"INSERT INTO actions ("+actionColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.RuleID, string(a.Kind), boolToInt(a.Enabled), config, toNanos(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (r *sqlActionRepo) GetByID(ctx context.Context, id string) (*models.Action, error) {
	a, err := scanAction(r.queryRow(ctx, "SELECT "+actionColumns+" FROM actions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (r *sqlActionRepo) Delete(ctx context.Context, id string) error {
	result, err := r.exec(ctx, "DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return expectOne(result, "action", id)
}

func (r *sqlActionRepo) ListByRule(ctx context.Context, ruleID string) ([]*models.Action, error) {
	return r.queryActions(ctx,
		"SELECT "+actionColumns+" FROM actions WHERE rule_id = ? ORDER BY created_at_ns, id", ruleID)
}

func (r *sqlActionRepo) ListEnabledForRule(ctx context.Context, ruleID string) ([]*models.Action, error) {
	return r.queryActions(ctx,
		"SELECT "+actionColumns+" FROM actions WHERE rule_id = ? AND enabled = 1 ORDER BY created_at_ns, id", ruleID)
}

func (r *sqlActionRepo) queryActions(ctx context.Context, query string, args ...any) ([]*models.Action, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanAction(s rowScanner) (*models.Action, error) {
	a := &models.Action{}
	var (
		kind, config string
		enabled      int
		created      int64
	)
	if err := s.Scan(&a.ID, &a.RuleID, &kind, &enabled, &config, &created); err != nil {
		return nil, err
	}
	a.Kind = models.ActionKind(kind)
	a.Enabled = enabled != 0
	a.Config = []byte(config)
	a.CreatedAt = fromNanos(created)
	return a, nil
}
