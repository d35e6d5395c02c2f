package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

const historyColumns = "id, rule_id, log_id, action_id, triggered_at_ns, success, execution_result"

type sqlAlertHistoryRepo struct {
	conn
}

func (r *sqlAlertHistoryRepo) Append(ctx context.Context, h *models.AlertHistory) error {
	result := string(h.Result)
	if result == "" {
		result = "{}"
	}
	_, err := r.exec(ctx,
		"INSERT INTO alert_history ("+historyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		h.ID, h.RuleID, h.LogID, h.ActionID, toNanos(h.TriggeredAt), boolToInt(h.Success), result,
	)
	if err != nil {
		return fmt.Errorf("append alert history: %w", err)
	}
	return nil
}

func (r *sqlAlertHistoryRepo) List(ctx context.Context, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM alert_history").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	rows, err := r.query(ctx,
		"SELECT "+historyColumns+" FROM alert_history ORDER BY triggered_at_ns DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	histories, err := scanHistories(rows)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

func (r *sqlAlertHistoryRepo) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	err := r.queryRow(ctx, "SELECT COUNT(*) FROM alert_history WHERE rule_id = ?", ruleID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history by rule: %w", err)
	}

	rows, err := r.query(ctx,
		"SELECT "+historyColumns+" FROM alert_history WHERE rule_id = ? ORDER BY triggered_at_ns DESC LIMIT ? OFFSET ?",
		ruleID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history by rule: %w", err)
	}
	defer rows.Close()

	histories, err := scanHistories(rows)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

func scanHistories(rows *sql.Rows) ([]*models.AlertHistory, error) {
	var histories []*models.AlertHistory
	for rows.Next() {
		h := &models.AlertHistory{}
		var (
			triggered int64
			success   int
			result    string
		)
		err := rows.Scan(&h.ID, &h.RuleID, &h.LogID, &h.ActionID, &triggered, &success, &result)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		h.TriggeredAt = fromNanos(triggered)
		h.Success = success != 0
		h.Result = []byte(result)
		histories = append(histories, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert history: %w", err)
	}
	return histories, nil
}
