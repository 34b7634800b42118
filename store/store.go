// Package store persists installer bookkeeping in a SQL database.
//
// It speaks sqlite, postgres and mysql through database/sql; callers register
// the drivers they need with a blank import.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store wraps a database handle with a dialect and a table prefix.
type Store struct {
	db      *sql.DB
	dialect Dialect
	prefix  string
	driver  string
}

// Open connects to dsn with driver and verifies the connection.
func Open(ctx context.Context, driver, dsn, prefix string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if dialect.Name() == "sqlite" {
		// One writer at a time; sqlite reports SQLITE_BUSY otherwise.
		db.SetMaxOpenConns(1)
	}
	return New(db, driver, dialect, prefix), nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string, dialect Dialect, prefix string) *Store {
	return &Store{db: db, dialect: dialect, prefix: prefix, driver: driver}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Dialect returns the SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Prefix returns the table name prefix.
func (s *Store) Prefix() string { return s.prefix }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// TableName returns the prefixed, validated name of table.
func (s *Store) TableName(table string) (string, error) {
	name := s.prefix + table
	if err := validateIdentifier(name); err != nil {
		return "", err
	}
	return name, nil
}

// TableExists reports whether table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	name, err := s.TableName(table)
	if err != nil {
		return false, err
	}
	query, args := s.dialect.TableExistsQuery(name)
	var one int
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", name, err)
	}
	return true, nil
}

// CreateTable creates t.
func (s *Store) CreateTable(ctx context.Context, t Table) error {
	stmts, err := CreateStatements(s.dialect, t, s.prefix)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Exec runs query, written with '?' placeholders, against the store.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
