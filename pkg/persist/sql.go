package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

// SQLStorage stores snapshots in a SQL table.
// It works with any database/sql driver. Requires a table with schema:
//
//	CREATE TABLE slicestore_snapshots (
//	    name VARCHAR(128) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//
// CreateTable creates it for the configured dialect.
type SQLStorage struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	closed    atomic.Bool
}

// SQLDialect selects the SQL syntax used for queries.
type SQLDialect int

const (
	// DialectPostgreSQL uses $n placeholders and ON CONFLICT upserts.
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses ? placeholders and ON DUPLICATE KEY upserts.
	DialectMySQL
	// DialectSQLite uses ? placeholders and INSERT OR REPLACE.
	DialectSQLite
)

// ParseDialect maps a dialect name ("postgres", "mysql", "sqlite") to a
// SQLDialect.
func ParseDialect(name string) (SQLDialect, error) {
	switch name {
	case "postgres", "postgresql", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return 0, fmt.Errorf("persist: unknown SQL dialect %q", name)
}

// SQLStorageOption configures SQLStorage.
type SQLStorageOption func(*sqlStorageConfig)

type sqlStorageConfig struct {
	tableName string
	dialect   SQLDialect
}

// WithSQLTableName sets the snapshot table name.
// Default: "slicestore_snapshots".
func WithSQLTableName(name string) SQLStorageOption {
	return func(c *sqlStorageConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStorageOption {
	return func(c *sqlStorageConfig) {
		c.dialect = dialect
	}
}

// NewSQLStorage creates a SQL-backed storage on db.
func NewSQLStorage(db *sql.DB, opts ...SQLStorageOption) *SQLStorage {
	cfg := &sqlStorageConfig{
		tableName: "slicestore_snapshots",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLStorage{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
	}
}

func (s *SQLStorage) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Save upserts the snapshot.
func (s *SQLStorage) Save(ctx context.Context, name string, data []byte) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (name, data, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = NOW()
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (name, data, updated_at)
			VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = NOW()
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (name, data, updated_at)
			VALUES (?, ?, datetime('now'))
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query, name, data); err != nil {
		return fmt.Errorf("persist: save %q: %w", name, err)
	}
	return nil
}

// Load reads the snapshot.
func (s *SQLStorage) Load(ctx context.Context, name string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE name = %s`, s.tableName, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load %q: %w", name, err)
	}
	return data, nil
}

// Delete removes the snapshot row.
func (s *SQLStorage) Delete(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrStorageClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, s.tableName, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("persist: delete %q: %w", name, err)
	}
	return nil
}

// Close marks the storage closed. The database handle is left open, as it
// may be shared.
func (s *SQLStorage) Close() error {
	s.closed.Store(true)
	return nil
}

// CreateTable creates the snapshot table if it doesn't exist.
func (s *SQLStorage) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name VARCHAR(128) PRIMARY KEY,
				data BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name VARCHAR(128) PRIMARY KEY,
				data LONGBLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				updated_at TEXT DEFAULT (datetime('now'))
			)
		`, s.tableName)
	}

	_, err := s.db.ExecContext(ctx, query)
	return err
}
