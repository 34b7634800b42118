package host

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/store"
)

// Reserved user ids created by the user module.
const (
	AnonymousUID = 0
	AdminUID     = 1
)

// UsersTable holds site accounts.
var UsersTable = store.Table{
	Name:        "users",
	Description: "Site accounts.",
	Columns: []store.Column{
		{Name: "uid", Type: store.TypeInt, NotNull: true},
		{Name: "name", Type: store.TypeVarchar, Length: 60, NotNull: true},
		{Name: "pass", Type: store.TypeVarchar, Length: 128, NotNull: true},
		{Name: "mail", Type: store.TypeVarchar, Length: 254},
		{Name: "status", Type: store.TypeInt, NotNull: true},
		{Name: "created", Type: store.TypeInt, NotNull: true},
	},
	PrimaryKey: []string{"uid"},
	Indexes: []store.Index{
		{Name: "name", Columns: []string{"name"}, Unique: true},
	},
}

// systemModule owns the bookkeeping tables.
type systemModule struct {
	host *Host
}

func newSystemModule(h *Host) siteinstaller.ModuleCode { return &systemModule{host: h} }

func (m *systemModule) Name() string { return siteinstaller.SystemModule }

func (m *systemModule) Schema() []store.Table {
	return []store.Table{store.SystemTable, store.VariableTable, store.RegistryTable}
}

// ModulesEnabled drops every cached derivative of the module list.
func (m *systemModule) ModulesEnabled(_ context.Context, modules []string) error {
	m.host.cache.Flush()
	m.host.logger.Debug("Flushed caches after enabling modules", "count", len(modules))
	return nil
}

// userModule owns site accounts.
type userModule struct {
	host *Host
}

func newUserModule(h *Host) siteinstaller.ModuleCode { return &userModule{host: h} }

func (m *userModule) Name() string { return siteinstaller.UserModule }

func (m *userModule) Schema() []store.Table {
	return []store.Table{UsersTable}
}

// Install creates the anonymous account and a placeholder for the
// administrator, configured once the install completes.
func (m *userModule) Install(ctx context.Context) error {
	db, err := MustService[*store.Store](m.host.services, ServiceDatabase)
	if err != nil {
		return err
	}
	table, err := db.TableName(UsersTable.Name)
	if err != nil {
		return err
	}
	// #nosec G201 - table name is validated above
	insert := fmt.Sprintf("INSERT INTO %s (uid, name, pass, mail, status, created) VALUES (?, ?, ?, ?, ?, ?)", table)
	if _, err := db.Exec(ctx, insert, AnonymousUID, "", "", "", 0, 0); err != nil {
		return fmt.Errorf("failed to create anonymous user: %w", err)
	}
	if _, err := db.Exec(ctx, insert, AdminUID, "placeholder-for-uid-1", "", "placeholder-for-uid-1", 0, 0); err != nil {
		return fmt.Errorf("failed to create administrator placeholder: %w", err)
	}
	return nil
}
