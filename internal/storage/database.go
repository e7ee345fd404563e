package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"chatrelay/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a configured driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DialectOf normalizes a configured driver name.
func DialectOf(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// DB is a connection plus the dialect its statements are written for.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database described by cfg.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	dialect, err := DialectOf(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if strings.Contains(cfg.DSN, ":memory:") {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
	case DialectMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			port := cfg.Port
			if port == 0 {
				port = 3306
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				port,
				cfg.DBName,
				mysqlParams(cfg.Params),
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case DialectPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = postgresDSN(cfg)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func mysqlParams(params string) string {
	if params == "" {
		return "parseTime=true"
	}
	if !strings.Contains(params, "parseTime") {
		return params + "&parseTime=true"
	}
	return params
}

func postgresDSN(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	params := cfg.Params
	if params == "" {
		params = "sslmode=disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		port,
		cfg.DBName,
		params,
	)
}

// Rebind rewrites ? placeholders to $n for postgres.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.Dialect {
	case DialectSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS call_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				request_id TEXT NOT NULL,
				client_key TEXT NOT NULL,
				family TEXT NOT NULL,
				outcome TEXT NOT NULL,
				status INTEGER NOT NULL,
				latency_ms INTEGER NOT NULL,
				prompt_len INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_call_log_created_at ON call_log(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_call_log_outcome ON call_log(outcome)`,
		}
	case DialectMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS call_log (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				request_id VARCHAR(64) NOT NULL,
				client_key VARCHAR(255) NOT NULL,
				family VARCHAR(50) NOT NULL,
				outcome VARCHAR(50) NOT NULL,
				status INT NOT NULL,
				latency_ms BIGINT NOT NULL,
				prompt_len INT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_call_log_created_at (created_at),
				INDEX idx_call_log_outcome (outcome)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case DialectPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS call_log (
				id BIGSERIAL PRIMARY KEY,
				request_id VARCHAR(64) NOT NULL,
				client_key VARCHAR(255) NOT NULL,
				family VARCHAR(50) NOT NULL,
				outcome VARCHAR(50) NOT NULL,
				status INTEGER NOT NULL,
				latency_ms BIGINT NOT NULL,
				prompt_len INTEGER NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_call_log_created_at ON call_log(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_call_log_outcome ON call_log(outcome)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.Dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.Dialect, err)
		}
	}
	return nil
}
