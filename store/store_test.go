package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T, prefix string) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), "sqlite", dsn, prefix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{
		"sqlite":   "sqlite",
		"sqlite3":  "sqlite",
		"postgres": "postgres",
		"pgx":      "postgres",
		"mysql":    "mysql",
	} {
		d, err := DialectFor(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, d.Name())
	}

	_, err := DialectFor("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestPostgresRebind(t *testing.T) {
	d := postgresDialect{}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", d.Rebind("UPDATE t SET a = ? WHERE b = ?"))
	assert.Equal(t, "SELECT 1", d.Rebind("SELECT 1"))
}

func TestCreateStatements(t *testing.T) {
	table := Table{
		Name: "node",
		Columns: []Column{
			{Name: "nid", Type: TypeSerial},
			{Name: "title", Type: TypeVarchar, Length: 128, NotNull: true, Default: strDefault("it's")},
			{Name: "body", Type: TypeText},
		},
		PrimaryKey: []string{"nid"},
		Indexes:    []Index{{Name: "title", Columns: []string{"title"}, Unique: true}},
	}

	t.Run("sqlite inlines the serial primary key", func(t *testing.T) {
		stmts, err := CreateStatements(sqliteDialect{}, table, "pre_")
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Contains(t, stmts[0], "CREATE TABLE pre_node")
		assert.Contains(t, stmts[0], "nid INTEGER PRIMARY KEY AUTOINCREMENT")
		assert.Contains(t, stmts[0], "title VARCHAR(128) NOT NULL DEFAULT 'it''s'")
		assert.NotContains(t, stmts[0], "PRIMARY KEY (nid)")
		assert.Equal(t, "CREATE UNIQUE INDEX pre_node_title ON pre_node (title)", stmts[1])
	})

	t.Run("postgres declares the primary key constraint", func(t *testing.T) {
		stmts, err := CreateStatements(postgresDialect{}, table, "")
		require.NoError(t, err)
		assert.Contains(t, stmts[0], "nid SERIAL")
		assert.Contains(t, stmts[0], "PRIMARY KEY (nid)")
	})

	t.Run("mysql", func(t *testing.T) {
		stmts, err := CreateStatements(mysqlDialect{}, table, "")
		require.NoError(t, err)
		assert.Contains(t, stmts[0], "nid INT AUTO_INCREMENT")
		assert.Contains(t, stmts[0], "body LONGTEXT")
	})

	t.Run("rejects unsafe identifiers", func(t *testing.T) {
		_, err := CreateStatements(sqliteDialect{}, Table{Name: "x; DROP TABLE y", Columns: table.Columns}, "")
		assert.ErrorIs(t, err, ErrInvalidTableName)

		_, err = CreateStatements(sqliteDialect{}, Table{Name: "ok", Columns: []Column{{Name: "bad name", Type: TypeInt}}}, "")
		assert.ErrorIs(t, err, ErrInvalidColumn)
	})

	t.Run("numeric defaults must be numbers", func(t *testing.T) {
		stmts, err := CreateStatements(sqliteDialect{}, Table{Name: "counts", Columns: []Column{
			{Name: "total", Type: TypeInt, Default: strDefault(" -1 ")},
			{Name: "ratio", Type: TypeFloat, Default: strDefault("0.25")},
		}}, "")
		require.NoError(t, err)
		assert.Contains(t, stmts[0], "total INTEGER DEFAULT -1")
		assert.Contains(t, stmts[0], "ratio REAL DEFAULT 0.25")

		for _, col := range []Column{
			{Name: "c", Type: TypeInt, Default: strDefault("0) ; DROP TABLE users; --")},
			{Name: "c", Type: TypeSerial, Default: strDefault("1 OR 1")},
			{Name: "c", Type: TypeFloat, Default: strDefault("NaN")},
			{Name: "c", Type: TypeFloat, Default: strDefault("1e5; DELETE FROM t")},
		} {
			stmts, err := CreateStatements(sqliteDialect{}, Table{Name: "t", Columns: []Column{col}}, "")
			assert.ErrorIs(t, err, ErrInvalidColumn, *col.Default)
			assert.Nil(t, stmts)
		}
	})

	t.Run("rejects empty tables", func(t *testing.T) {
		_, err := CreateStatements(sqliteDialect{}, Table{Name: "empty"}, "")
		assert.ErrorIs(t, err, ErrEmptyTable)
	})
}

func TestTableClone(t *testing.T) {
	orig := SystemTable
	clone := orig.Clone()
	clone.Columns[0].Name = "changed"
	clone.Indexes[0].Columns[0] = "changed"
	assert.Equal(t, "name", orig.Columns[0].Name)
	assert.Equal(t, "type", orig.Indexes[0].Columns[0])

	col, ok := orig.Column("schema_version")
	require.True(t, ok)
	assert.Equal(t, TypeInt, col.Type)
}

func TestTableExists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "site_")

	exists, err := s.TableExists(ctx, SystemTableName)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateTable(ctx, SystemTable))

	exists, err = s.TableExists(ctx, SystemTableName)
	require.NoError(t, err)
	assert.True(t, exists)

	// The prefix is part of the physical name.
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM site_system").Scan(&n))
	assert.Zero(t, n)
}

func TestModuleBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	require.NoError(t, s.CreateTable(ctx, SystemTable))

	_, found, err := s.Module(ctx, "node")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveModule(ctx, ModuleRow{Name: "node", Type: "module", Filename: "modules/node/node.info.yaml", SchemaVersion: -1, Weight: 3}))
	require.NoError(t, s.SaveModule(ctx, ModuleRow{Name: "filter", Type: "module", SchemaVersion: -1, Weight: 4, Info: json.RawMessage(`{"name":"filter"}`)}))

	row, found, err := s.Module(ctx, "node")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, row.Enabled())
	assert.Equal(t, -1, row.SchemaVersion)
	assert.Nil(t, row.Info)

	require.NoError(t, s.SetModuleStatus(ctx, "node", StatusEnabled))
	require.NoError(t, s.SetSchemaVersion(ctx, "node", 7001))

	// Saving again refreshes metadata only.
	require.NoError(t, s.SaveModule(ctx, ModuleRow{Name: "node", Type: "module", Filename: "moved.info.yaml", SchemaVersion: -1, Weight: 9}))
	row, _, err = s.Module(ctx, "node")
	require.NoError(t, err)
	assert.True(t, row.Enabled())
	assert.Equal(t, 7001, row.SchemaVersion)
	assert.Equal(t, "moved.info.yaml", row.Filename)
	assert.Equal(t, 9, row.Weight)

	all, err := s.Modules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "node", all[0].Name)
	assert.JSONEq(t, `{"name":"filter"}`, string(all[1].Info))

	enabled, err := s.EnabledModules(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "node", enabled[0].Name)

	assert.ErrorIs(t, s.SetSchemaVersion(ctx, "ghost", 1), ErrModuleNotFound)
}

func TestVariables(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	require.NoError(t, s.CreateTable(ctx, VariableTable))

	require.NoError(t, s.SetVariable(ctx, "install_profile", "standard"))
	require.NoError(t, s.SetVariable(ctx, "install_profile", "minimal"))
	require.NoError(t, s.SetVariable(ctx, "cron_limit", 50))

	vars, err := s.Variables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.JSONEq(t, `"minimal"`, string(vars["install_profile"]))
	assert.JSONEq(t, `50`, string(vars["cron_limit"]))

	assert.Error(t, s.SetVariable(ctx, "bad", func() {}))
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "")
	require.NoError(t, s.CreateTable(ctx, RegistryTable))

	require.NoError(t, s.ReplaceRegistry(ctx, []RegistryEntry{
		{Name: "modules/user/user.go", Type: "file", Filename: "modules/user/user.go", Module: "user"},
		{Name: "modules/node/node.go", Type: "file", Filename: "modules/node/node.go", Module: "node"},
	}))
	require.NoError(t, s.ReplaceRegistry(ctx, []RegistryEntry{
		{Name: "modules/node/node.go", Type: "file", Filename: "modules/node/node.go", Module: "node"},
	}))

	entries, err := s.Registry(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "node", entries[0].Module)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestNewWrapsHandle(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s := New(db, "sqlite", sqliteDialect{}, "p_")
	assert.Equal(t, "sqlite", s.Driver())
	assert.Equal(t, "p_", s.Prefix())
	name, err := s.TableName("system")
	require.NoError(t, err)
	assert.Equal(t, "p_system", name)
}
