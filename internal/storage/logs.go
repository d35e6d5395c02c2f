package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

const logColumns = `id, sid, log_type, timestamp_ns, status, error_code, error_message,
	from_number, to_number, raw_data, processed, created_at_ns`

type sqlLogRepo struct {
	conn
}

func (r *sqlLogRepo) Create(ctx context.Context, l *models.Log) (bool, error) {
	query := `
		INSERT INTO logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sid) DO NOTHING
	`
	result, err := r.exec(ctx, query,
		l.ID, l.SID, string(l.Kind), toNanos(l.Timestamp),
		nullString(l.Status), nullString(l.ErrorCode), nullString(l.ErrorMessage),
		nullString(l.From), nullString(l.To), nullString(l.RawText()),
		boolToInt(l.Processed), toNanos(l.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert log: %w", err)
	}
	return n > 0, nil
}

func (r *sqlLogRepo) Exists(ctx context.Context, sid string) (bool, error) {
	var n int
	err := r.queryRow(ctx, "SELECT COUNT(*) FROM logs WHERE sid = ?", sid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check log exists: %w", err)
	}
	return n > 0, nil
}

func (r *sqlLogRepo) GetByID(ctx context.Context, id string) (*models.Log, error) {
	row := r.queryRow(ctx, "SELECT "+logColumns+" FROM logs WHERE id = ?", id)
	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	return l, nil
}

func (r *sqlLogRepo) List(ctx context.Context, filter models.LogFilter) ([]*models.Log, int64, error) {
	var where []string
	var args []any
	if filter.Processed != nil {
		where = append(where, "processed = ?")
		args = append(args, boolToInt(*filter.Processed))
	}
	if filter.Kind != "" {
		where = append(where, "log_type = ?")
		args = append(args, string(filter.Kind))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM logs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + logColumns + " FROM logs" + clause + " ORDER BY timestamp_ns DESC LIMIT ? OFFSET ?"
	rows, err := r.query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *sqlLogRepo) ListUnprocessed(ctx context.Context) ([]*models.Log, error) {
	query := "SELECT " + logColumns + " FROM logs WHERE processed = 0 ORDER BY timestamp_ns ASC, created_at_ns ASC"
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func (r *sqlLogRepo) CountInWindow(ctx context.Context, kind models.LogKind, start, end time.Time, filter models.WindowFilter) (int, error) {
	query := "SELECT COUNT(*) FROM logs WHERE timestamp_ns >= ? AND timestamp_ns <= ?"
	args := []any{toNanos(start), toNanos(end)}
	if kind != "" {
		query += " AND log_type = ?"
		args = append(args, string(kind))
	}
	if len(filter.ErrorCodes) > 0 {
		query += " AND error_code IN (" + placeholders(len(filter.ErrorCodes)) + ")"
		for _, c := range filter.ErrorCodes {
			args = append(args, c)
		}
	}
	if len(filter.Statuses) > 0 {
		query += " AND status IN (" + placeholders(len(filter.Statuses)) + ")"
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	var n int
	if err := r.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count logs in window: %w", err)
	}
	return n, nil
}

func (r *sqlLogRepo) MarkProcessed(ctx context.Context, id string) (bool, error) {
	result, err := r.exec(ctx, "UPDATE logs SET processed = 1 WHERE id = ? AND processed = 0", id)
	if err != nil {
		return false, fmt.Errorf("mark log processed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark log processed: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(s rowScanner) (*models.Log, error) {
	l := &models.Log{}
	var (
		kind                        string
		ts, created                 int64
		status, code, msg, from, to sql.NullString
		raw                         sql.NullString
		processed                   int
	)
	err := s.Scan(&l.ID, &l.SID, &kind, &ts, &status, &code, &msg, &from, &to, &raw, &processed, &created)
	if err != nil {
		return nil, err
	}
	l.Kind = models.LogKind(kind)
	l.Timestamp = fromNanos(ts)
	l.Status = status.String
	l.ErrorCode = code.String
	l.ErrorMessage = msg.String
	l.From = from.String
	l.To = to.String
	if raw.Valid && raw.String != "" {
		l.RawData = []byte(raw.String)
	}
	l.Processed = processed != 0
	l.CreatedAt = fromNanos(created)
	return l, nil
}

func scanLogs(rows *sql.Rows) ([]*models.Log, error) {
	var logs []*models.Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return logs, nil
}
