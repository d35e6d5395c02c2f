package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects placeholder syntax for the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStorage implements Storage on database/sql. Queries are written with
// '?' placeholders and rebound for the dialect.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect

	logs         *sqlLogRepo
	rules        *sqlRuleRepo
	actions      *sqlActionRepo
	alertHistory *sqlAlertHistoryRepo
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *SQLStorage {
	c := conn{db: db, dialect: dialect}
	return &SQLStorage{
		db:           db,
		dialect:      dialect,
		logs:         &sqlLogRepo{conn: c},
		rules:        &sqlRuleRepo{conn: c},
		actions:      &sqlActionRepo{conn: c},
		alertHistory: &sqlAlertHistoryRepo{conn: c},
	}
}

// Open opens the store for the given driver. dsn is a file path for sqlite
// and a connection string for postgres.
func Open(ctx context.Context, driver, dsn string) (*SQLStorage, error) {
	switch Dialect(driver) {
	case DialectSQLite:
		return OpenSQLite(ctx, dsn)
	case DialectPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *SQLStorage) Dialect() Dialect {
	return s.dialect
}

// Migrate runs database migrations.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.dialect)
}

// Logs returns the log repository.
func (s *SQLStorage) Logs() LogRepository {
	return s.logs
}

// Rules returns the monitoring rule repository.
func (s *SQLStorage) Rules() RuleRepository {
	return s.rules
}

// Actions returns the action repository.
func (s *SQLStorage) Actions() ActionRepository {
	return s.actions
}

// AlertHistory returns the alert history repository.
func (s *SQLStorage) AlertHistory() AlertHistoryRepository {
	return s.alertHistory
}

// conn is shared by the repositories.
type conn struct {
	db      *sql.DB
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

// rebind rewrites '?' placeholders to $n for postgres.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// Timestamps are stored as unix nanoseconds in UTC.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
