package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDialect implements Dialect for SQLite
type SQLiteDialect struct{}

// NewSQLiteDialect creates a new SQLite dialect
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// DSN enables WAL and foreign keys on every pooled connection. _txlock=immediate
// makes BEGIN take the write lock up front, so read-modify-write transactions
// never interleave.
func (d *SQLiteDialect) DSN(config DialectConfig) string {
	path := config.Path
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL"
}

func (d *SQLiteDialect) RewriteQuery(query string) string {
	// SQLite uses ? placeholders, no rewrite needed
	return query
}

func (d *SQLiteDialect) SupportsLastInsertId() bool {
	return true
}

func (d *SQLiteDialect) ConfigureConnection(db *sql.DB) error {
	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *SQLiteDialect) MigrationsSubdir() string {
	return "sqlite"
}

func (d *SQLiteDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT UNIQUE NOT NULL,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
}

// WriteTxOptions uses the driver default; the immediate lock already serializes writers.
func (d *SQLiteDialect) WriteTxOptions() *sql.TxOptions {
	return nil
}

func (d *SQLiteDialect) ForUpdate() string {
	return ""
}

func (d *SQLiteDialect) InsertOrIgnore(insert string) string {
	return strings.Replace(insert, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
}

func (d *SQLiteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
