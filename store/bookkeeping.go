package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Bookkeeping table names.
const (
	SystemTableName   = "system"
	VariableTableName = "variable"
	RegistryTableName = "registry"
)

// Module status values stored in the system table.
const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

func strDefault(v string) *string { return &v }

// SystemTable records every known module, its status and schema version.
var SystemTable = Table{
	Name:        SystemTableName,
	Description: "Every module and profile found on disk.",
	Columns: []Column{
		{Name: "name", Type: TypeVarchar, Length: 255, NotNull: true},
		{Name: "type", Type: TypeVarchar, Length: 12, NotNull: true, Default: strDefault("")},
		{Name: "filename", Type: TypeVarchar, Length: 255, NotNull: true, Default: strDefault("")},
		{Name: "status", Type: TypeInt, NotNull: true, Default: strDefault("0")},
		{Name: "schema_version", Type: TypeInt, NotNull: true, Default: strDefault("-1")},
		{Name: "weight", Type: TypeInt, NotNull: true, Default: strDefault("0")},
		{Name: "info", Type: TypeText},
	},
	PrimaryKey: []string{"name"},
	Indexes: []Index{
		{Name: "type_name", Columns: []string{"type", "name"}},
	},
}

// VariableTable holds persistent JSON encoded variables.
var VariableTable = Table{
	Name:        VariableTableName,
	Description: "Named variables, JSON encoded.",
	Columns: []Column{
		{Name: "name", Type: TypeVarchar, Length: 128, NotNull: true},
		{Name: "value", Type: TypeText},
	},
	PrimaryKey: []string{"name"},
}

// RegistryTable maps code files to the module declaring them.
var RegistryTable = Table{
	Name:        RegistryTableName,
	Description: "Code files declared by enabled modules.",
	Columns: []Column{
		{Name: "name", Type: TypeVarchar, Length: 255, NotNull: true},
		{Name: "type", Type: TypeVarchar, Length: 9, NotNull: true},
		{Name: "filename", Type: TypeVarchar, Length: 255, NotNull: true},
		{Name: "module", Type: TypeVarchar, Length: 255, NotNull: true, Default: strDefault("")},
	},
	PrimaryKey: []string{"name", "type"},
	Indexes: []Index{
		{Name: "module", Columns: []string{"module"}},
	},
}

// ModuleRow is one row of the system table.
type ModuleRow struct {
	Name          string
	Type          string
	Filename      string
	Status        int
	SchemaVersion int
	Weight        int
	Info          json.RawMessage
}

// Enabled reports whether the module is enabled.
func (r ModuleRow) Enabled() bool { return r.Status == StatusEnabled }

const moduleColumns = "name, type, filename, status, schema_version, weight, info"

func scanModule(scan func(...any) error) (ModuleRow, error) {
	var (
		row  ModuleRow
		info sql.NullString
	)
	if err := scan(&row.Name, &row.Type, &row.Filename, &row.Status, &row.SchemaVersion, &row.Weight, &info); err != nil {
		return ModuleRow{}, err
	}
	if info.Valid && info.String != "" {
		row.Info = json.RawMessage(info.String)
	}
	return row, nil
}

// Module returns the system row of name.
func (s *Store) Module(ctx context.Context, name string) (ModuleRow, bool, error) {
	table, err := s.TableName(SystemTableName)
	if err != nil {
		return ModuleRow{}, false, err
	}
	// #nosec G201 - table name is validated above
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = ?", moduleColumns, table)
	row, err := scanModule(s.db.QueryRowContext(ctx, s.dialect.Rebind(query), name).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ModuleRow{}, false, nil
	}
	if err != nil {
		return ModuleRow{}, false, fmt.Errorf("failed to read module %s: %w", name, err)
	}
	return row, true, nil
}

// Modules returns every system row, heaviest first, then by name.
func (s *Store) Modules(ctx context.Context) ([]ModuleRow, error) {
	return s.modules(ctx, "")
}

// EnabledModules returns the enabled system rows, heaviest first, then by name.
func (s *Store) EnabledModules(ctx context.Context) ([]ModuleRow, error) {
	return s.modules(ctx, "WHERE status = 1 ")
}

func (s *Store) modules(ctx context.Context, where string) ([]ModuleRow, error) {
	table, err := s.TableName(SystemTableName)
	if err != nil {
		return nil, err
	}
	// #nosec G201 - table name is validated above
	rows, err := s.query(ctx, fmt.Sprintf("SELECT %s FROM %s %sORDER BY weight DESC, name", moduleColumns, table, where))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModuleRow
	for rows.Next() {
		row, err := scanModule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating module rows: %w", err)
	}
	return out, nil
}

// SaveModule inserts row, or refreshes type, filename, weight and info of an
// existing row. Status and schema version of existing rows are kept.
func (s *Store) SaveModule(ctx context.Context, row ModuleRow) error {
	table, err := s.TableName(SystemTableName)
	if err != nil {
		return err
	}
	_, found, err := s.Module(ctx, row.Name)
	if err != nil {
		return err
	}
	info := sql.NullString{String: string(row.Info), Valid: len(row.Info) > 0}
	if found {
		// #nosec G201 - table name is validated above
		_, err = s.Exec(ctx, fmt.Sprintf("UPDATE %s SET type = ?, filename = ?, weight = ?, info = ? WHERE name = ?", table),
			row.Type, row.Filename, row.Weight, info, row.Name)
	} else {
		// #nosec G201 - table name is validated above
		_, err = s.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", table, moduleColumns),
			row.Name, row.Type, row.Filename, row.Status, row.SchemaVersion, row.Weight, info)
	}
	if err != nil {
		return fmt.Errorf("failed to save module %s: %w", row.Name, err)
	}
	return nil
}

// SetModuleStatus sets the status of name.
func (s *Store) SetModuleStatus(ctx context.Context, name string, status int) error {
	return s.updateModule(ctx, name, "status", status)
}

// SetSchemaVersion records the installed schema version of name.
func (s *Store) SetSchemaVersion(ctx context.Context, name string, version int) error {
	return s.updateModule(ctx, name, "schema_version", version)
}

func (s *Store) updateModule(ctx context.Context, name, column string, value int) error {
	table, err := s.TableName(SystemTableName)
	if err != nil {
		return err
	}
	if _, found, err := s.Module(ctx, name); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	// #nosec G201 - table and column names are constants
	if _, err := s.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE name = ?", table, column), value, name); err != nil {
		return fmt.Errorf("failed to update %s of module %s: %w", column, name, err)
	}
	return nil
}

// SetVariable stores value, JSON encoded, under name.
func (s *Store) SetVariable(ctx context.Context, name string, value any) error {
	table, err := s.TableName(VariableTableName)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode variable %s: %w", name, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// #nosec G201 - table name is validated above
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE name = ?", table)), name); err != nil {
			return fmt.Errorf("failed to replace variable %s: %w", name, err)
		}
		// #nosec G201 - table name is validated above
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (name, value) VALUES (?, ?)", table)), name, string(encoded)); err != nil {
			return fmt.Errorf("failed to store variable %s: %w", name, err)
		}
		return nil
	})
}

// Variables returns every stored variable, still JSON encoded.
func (s *Store) Variables(ctx context.Context) (map[string]json.RawMessage, error) {
	table, err := s.TableName(VariableTableName)
	if err != nil {
		return nil, err
	}
	// #nosec G201 - table name is validated above
	rows, err := s.query(ctx, fmt.Sprintf("SELECT name, value FROM %s", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			name  string
			value sql.NullString
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan variable row: %w", err)
		}
		if value.Valid {
			vars[name] = json.RawMessage(value.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variable rows: %w", err)
	}
	return vars, nil
}

// RegistryEntry is one row of the code registry.
type RegistryEntry struct {
	Name     string
	Type     string
	Filename string
	Module   string
}

// ReplaceRegistry replaces the whole code registry with entries.
func (s *Store) ReplaceRegistry(ctx context.Context, entries []RegistryEntry) error {
	table, err := s.TableName(RegistryTableName)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// #nosec G201 - table name is validated above
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear registry: %w", err)
		}
		// #nosec G201 - table name is validated above
		insert := s.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (name, type, filename, module) VALUES (?, ?, ?, ?)", table))
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, insert, e.Name, e.Type, e.Filename, e.Module); err != nil {
				return fmt.Errorf("failed to register %s: %w", e.Name, err)
			}
		}
		return nil
	})
}

// Registry returns the code registry ordered by module and name.
func (s *Store) Registry(ctx context.Context) ([]RegistryEntry, error) {
	table, err := s.TableName(RegistryTableName)
	if err != nil {
		return nil, err
	}
	// #nosec G201 - table name is validated above
	rows, err := s.query(ctx, fmt.Sprintf("SELECT name, type, filename, module FROM %s ORDER BY module, name", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegistryEntry
	for rows.Next() {
		var e RegistryEntry
		if err := rows.Scan(&e.Name, &e.Type, &e.Filename, &e.Module); err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registry rows: %w", err)
	}
	return out, nil
}
