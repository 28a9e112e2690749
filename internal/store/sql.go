package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour and driver of a SQL store.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS known_trips (
	link         TEXT PRIMARY KEY,
	display_text TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// 768 characters keeps the utf8mb4 primary key under InnoDB's 3072 byte limit.
// Links compare byte for byte; the default _ci collations would match links
// that differ only in case or accents.
const mysqlSchemaSQL = `
CREATE TABLE IF NOT EXISTS known_trips (
	link         VARCHAR(768) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL PRIMARY KEY,
	display_text TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
) DEFAULT CHARSET=utf8mb4
`

func (d Dialect) schema() (string, error) {
	switch d {
	case DialectSQLite:
		return sqliteSchemaSQL, nil
	case DialectMySQL:
		return mysqlSchemaSQL, nil
	default:
		return "", fmt.Errorf("store: unsupported dialect %q", d)
	}
}

// dsn adds the connection options each driver needs.
func (d Dialect) dsn(raw string) (string, error) {
	switch d {
	case DialectSQLite:
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + "_journal_mode=WAL&_busy_timeout=5000", nil
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("store: parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("store: unsupported dialect %q", d)
	}
}

// isUniqueViolation reports whether err is a primary key or unique constraint
// failure in either driver.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// SQL is a Store backed by database/sql.
type SQL struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to the database with the driver named by dialect. The schema
// is not applied; call EnsureSchema once at startup.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	full, err := dialect.dsn(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(string(dialect), full)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection serialises them
		// instead of surfacing SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return New(conn, dialect), nil
}

// New wraps an existing connection pool.
func New(conn *sql.DB, dialect Dialect) *SQL {
	return &SQL{conn: conn, dialect: dialect}
}

// EnsureSchema creates the known_trips table if needed. It is idempotent.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	schema, err := s.dialect.schema()
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQL) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	return s.conn.Close()
}
