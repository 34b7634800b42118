package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect hides the SQL differences between supported databases.
type Dialect interface {
	// Name returns the dialect name.
	Name() string

	// TableExistsQuery returns a query selecting one row when table exists.
	TableExistsQuery(table string) (string, []any)

	// ColumnType returns the DDL type of a column.
	ColumnType(col Column) string

	// Rebind rewrites '?' placeholders into the dialect's placeholder style.
	Rebind(query string) string
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "pgx":
		return postgresDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) TableExistsQuery(table string) (string, []any) {
	return "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", []any{table}
}

func (sqliteDialect) ColumnType(col Column) string {
	switch col.Type {
	case TypeSerial:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case TypeInt:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	case TypeVarchar:
		return "VARCHAR(" + strconv.Itoa(col.length()) + ")"
	case TypeBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) Rebind(query string) string { return query }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) TableExistsQuery(table string) (string, []any) {
	return "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?", []any{table}
}

func (postgresDialect) ColumnType(col Column) string {
	switch col.Type {
	case TypeSerial:
		return "SERIAL"
	case TypeInt:
		return "INTEGER"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeVarchar:
		return "VARCHAR(" + strconv.Itoa(col.length()) + ")"
	case TypeBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) TableExistsQuery(table string) (string, []any) {
	return "SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", []any{table}
}

func (mysqlDialect) ColumnType(col Column) string {
	switch col.Type {
	case TypeSerial:
		return "INT AUTO_INCREMENT"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "DOUBLE"
	case TypeVarchar:
		return "VARCHAR(" + strconv.Itoa(col.length()) + ")"
	case TypeBlob:
		return "LONGBLOB"
	default:
		return "LONGTEXT"
	}
}

func (mysqlDialect) Rebind(query string) string { return query }
