package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Column types understood by every dialect.
const (
	TypeSerial  = "serial"
	TypeInt     = "int"
	TypeFloat   = "float"
	TypeVarchar = "varchar"
	TypeText    = "text"
	TypeBlob    = "blob"
)

const defaultVarcharLength = 255

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier validates a table, column or index name to prevent SQL injection
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// Column is a portable column definition.
type Column struct {
	Name    string  `yaml:"name"`
	Type    string  `yaml:"type"`
	Length  int     `yaml:"length,omitempty"`
	NotNull bool    `yaml:"not_null,omitempty"`
	Default *string `yaml:"default,omitempty"`
}

func (c Column) length() int {
	if c.Length > 0 {
		return c.Length
	}
	return defaultVarcharLength
}

// Index is a named, optionally unique, index over columns.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

// Table is a portable table definition.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Columns     []Column `yaml:"columns"`
	PrimaryKey  []string `yaml:"primary_key,omitempty"`
	Indexes     []Index  `yaml:"indexes,omitempty"`
}

// Clone returns a deep copy of t, safe to alter.
func (t Table) Clone() Table {
	out := t
	out.Columns = append([]Column(nil), t.Columns...)
	out.PrimaryKey = append([]string(nil), t.PrimaryKey...)
	out.Indexes = make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		out.Indexes[i] = idx
	}
	return out
}

// Column returns the column called name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CreateStatements renders the DDL of t for dialect d, the table name
// carrying prefix.
func CreateStatements(d Dialect, t Table, prefix string) ([]string, error) {
	name := prefix + t.Name
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, t.Name)
	}

	defs := make([]string, 0, len(t.Columns)+1)
	serial := false
	for _, col := range t.Columns {
		if err := validateIdentifier(col.Name); err != nil {
			return nil, fmt.Errorf("%w: table %s: %w", ErrInvalidColumn, t.Name, err)
		}
		def := col.Name + " " + d.ColumnType(col)
		if col.Type == TypeSerial {
			serial = true
		}
		if col.NotNull && col.Type != TypeSerial {
			def += " NOT NULL"
		}
		if col.Default != nil {
			value, err := quoteDefault(col)
			if err != nil {
				return nil, fmt.Errorf("%w: table %s: %w", ErrInvalidColumn, t.Name, err)
			}
			def += " DEFAULT " + value
		}
		defs = append(defs, def)
	}

	// sqlite declares the serial column as the primary key inline.
	if len(t.PrimaryKey) > 0 && !(serial && d.Name() == "sqlite") {
		for _, pk := range t.PrimaryKey {
			if err := validateIdentifier(pk); err != nil {
				return nil, err
			}
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(t.PrimaryKey, ", ")+")")
	}

	// #nosec G201 - identifiers and numeric defaults are validated above, string defaults are quoted
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", name, strings.Join(defs, ",\n\t"))}

	for _, idx := range t.Indexes {
		idxName := name + "_" + idx.Name
		if err := validateIdentifier(idxName); err != nil {
			return nil, err
		}
		for _, col := range idx.Columns {
			if err := validateIdentifier(col); err != nil {
				return nil, err
			}
		}
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		// #nosec G201 - identifiers are validated above
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, idxName, name, strings.Join(idx.Columns, ", ")))
	}
	return stmts, nil
}

// quoteDefault renders the default of col as a SQL literal. Numeric defaults
// must parse as numbers.
func quoteDefault(col Column) (string, error) {
	value := strings.TrimSpace(*col.Default)
	switch col.Type {
	case TypeInt, TypeSerial:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", fmt.Errorf("column %s: default %q is not an integer", col.Name, *col.Default)
		}
		return strconv.FormatInt(n, 10), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", fmt.Errorf("column %s: default %q is not a number", col.Name, *col.Default)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "'" + strings.ReplaceAll(*col.Default, "'", "''") + "'", nil
	}
}
