package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/manifest"
	"github.com/GoCodeAlone/siteinstaller/store"
)

// Cache ids and lock names of derived data.
const (
	cacheModuleData    = "module_data"
	cacheModuleList    = "module_list"
	cacheRegistry      = "registry"
	cacheSchema        = "schema"
	cacheThemeRegistry = "theme_registry"
)

// TableExists reports whether table exists in the site database.
func (h *Host) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := h.db()
	if err != nil {
		return false, err
	}
	return db.TableExists(ctx, table)
}

// Module returns the bookkeeping record of name.
func (h *Host) Module(ctx context.Context, name string) (siteinstaller.ModuleRecord, bool, error) {
	db, err := h.db()
	if err != nil {
		return siteinstaller.ModuleRecord{}, false, err
	}
	row, found, err := db.Module(ctx, name)
	if err != nil || !found {
		return siteinstaller.ModuleRecord{}, found, err
	}
	rec, err := recordFromRow(row)
	return rec, true, err
}

// SetModuleEnabled flips the status of name.
func (h *Host) SetModuleEnabled(ctx context.Context, name string, enabled bool) error {
	db, err := h.db()
	if err != nil {
		return err
	}
	status := store.StatusDisabled
	if enabled {
		status = store.StatusEnabled
	}
	return db.SetModuleStatus(ctx, name, status)
}

// SetSchemaVersion records the installed schema version of name.
func (h *Host) SetSchemaVersion(ctx context.Context, name string, version int) error {
	db, err := h.db()
	if err != nil {
		return err
	}
	return db.SetSchemaVersion(ctx, name, version)
}

// SetVariable persists a variable and makes it visible to Variable.
func (h *Host) SetVariable(ctx context.Context, name string, value any) error {
	db, err := h.db()
	if err != nil {
		return err
	}
	if err := db.SetVariable(ctx, name, value); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode variable %s: %w", name, err)
	}
	h.variables[name] = raw
	return nil
}

// LoadProfile reads the named install profile and remembers it, so module
// data scans include the profile and the modules it bundles.
func (h *Host) LoadProfile(_ context.Context, name string) (siteinstaller.Profile, error) {
	entry, err := manifest.LoadProfile(h.root, h.profileDir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return siteinstaller.Profile{}, &siteinstaller.ProfileNotFoundError{
				Name: name,
				Path: path.Join(filepath.ToSlash(h.profileDir), name),
			}
		}
		return siteinstaller.Profile{}, fmt.Errorf("failed to load profile %s: %w", name, err)
	}
	h.profile = entry
	return siteinstaller.Profile{
		Name:         entry.Name,
		Path:         entry.Filename,
		Dependencies: entry.Info.DependencyNames(),
	}, nil
}

// LoadModule loads the manifests and Go code of name. Loaded modules stay
// loaded for the life of the host.
func (h *Host) LoadModule(_ context.Context, name string) (siteinstaller.ModuleCode, error) {
	return h.loadModule(name)
}

func (h *Host) loadModule(name string) (*loadedModule, error) {
	if m, ok := h.loaded[name]; ok {
		return m, nil
	}
	entries, err := h.scan()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotOnDisk, name)
	}
	install, err := manifest.ParseInstall(entry.InstallPath())
	if err != nil {
		return nil, err
	}

	m := &loadedModule{host: h, entry: entry, install: install}
	if factory, ok := h.code.lookup(name); ok {
		m.code = factory(h)
	}
	h.loaded[name] = m
	h.logger.Debug("Module loaded", "module", name, "goCode", m.code != nil)
	return m, nil
}

// ResetStatic drops the scanned manifests and the rebuilt schema.
func (h *Host) ResetStatic() {
	h.entries = nil
	h.schema = nil
	h.owners = nil
}

// ResetModuleList reloads the enabled modules from the system table.
func (h *Host) ResetModuleList(ctx context.Context) error {
	h.cache.Clear(cacheModuleList)
	h.enabled = nil

	exists, err := h.TableExists(ctx, store.SystemTableName)
	if err != nil || !exists {
		return err
	}
	rows, err := h.store.EnabledModules(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		h.enabled = append(h.enabled, row.Name)
	}
	h.cache.Set(cacheModuleList, slices.Clone(h.enabled))
	return nil
}

// EnabledModules returns the enabled modules, heaviest first.
func (h *Host) EnabledModules() []string {
	return slices.Clone(h.enabled)
}

// RebuildCodeRegistry records the files declared by every enabled module.
func (h *Host) RebuildCodeRegistry(ctx context.Context) error {
	db, err := h.db()
	if err != nil {
		return err
	}
	var entries []store.RegistryEntry
	for _, name := range h.enabled {
		m, err := h.loadModule(name)
		if err != nil {
			return err
		}
		dir := path.Dir(m.entry.Filename)
		for _, file := range m.entry.Info.Files {
			file = path.Join(dir, file)
			entries = append(entries, store.RegistryEntry{Name: file, Type: "file", Filename: file, Module: name})
		}
	}
	if err := db.ReplaceRegistry(ctx, entries); err != nil {
		return err
	}
	h.cache.Clear(cacheRegistry)
	h.logger.Debug("Code registry rebuilt", "files", len(entries))
	return nil
}

// RebuildSchema collects the tables of every enabled module, then lets each
// enabled module alter them.
func (h *Host) RebuildSchema(_ context.Context) error {
	schema := make(map[string]*store.Table)
	owners := make(map[string]string)

	var modules []*loadedModule
	for _, name := range h.enabled {
		m, err := h.loadModule(name)
		if err != nil {
			return err
		}
		modules = append(modules, m)
		for _, t := range m.Schema() {
			table := t.Clone()
			schema[table.Name] = &table
			owners[table.Name] = name
		}
	}
	for _, m := range modules {
		m.AlterSchema(schema)
	}

	h.schema, h.owners = schema, owners
	h.cache.Set(cacheSchema, schema)
	return nil
}

// Table returns the rebuilt definition of table.
func (h *Host) Table(name string) (store.Table, bool) {
	t, ok := h.schema[name]
	if !ok {
		return store.Table{}, false
	}
	return t.Clone(), true
}

// InstallSchema creates the tables of name, as altered by the last schema
// rebuild. A module missing from that rebuild has its tables created as
// declared.
func (h *Host) InstallSchema(ctx context.Context, name string) error {
	db, err := h.db()
	if err != nil {
		return err
	}
	m, err := h.loadModule(name)
	if err != nil {
		return err
	}
	for _, declared := range m.Schema() {
		table := declared
		if t, ok := h.schema[declared.Name]; ok && h.owners[declared.Name] == name {
			table = *t
		}
		exists, err := db.TableExists(ctx, table.Name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s (module %s)", ErrTableExists, table.Name, name)
		}
		if err := db.CreateTable(ctx, table); err != nil {
			return err
		}
		h.logger.Debug("Table created", "module", name, "table", table.Name)
	}
	return nil
}

// InstallSystem creates the bookkeeping tables, records every module found
// on disk, then marks the system module enabled at its target version.
func (h *Host) InstallSystem(ctx context.Context) error {
	if err := h.InstallSchema(ctx, siteinstaller.SystemModule); err != nil {
		return err
	}
	if _, err := h.RebuildModuleData(ctx); err != nil {
		return err
	}
	system, err := h.loadModule(siteinstaller.SystemModule)
	if err != nil {
		return err
	}
	if err := h.SetModuleEnabled(ctx, siteinstaller.SystemModule, true); err != nil {
		return err
	}
	if err := h.SetSchemaVersion(ctx, siteinstaller.SystemModule, siteinstaller.TargetSchemaVersion(system)); err != nil {
		return err
	}
	return h.ResetModuleList(ctx)
}

// RebuildModuleData rescans the module directories and the loaded profile,
// refreshes the system table when it exists and returns every module.
func (h *Host) RebuildModuleData(ctx context.Context) (map[string]siteinstaller.ModuleRecord, error) {
	h.lock.Acquire(cacheModuleData)
	defer h.lock.Release(cacheModuleData)

	h.entries = nil
	entries, err := h.scan()
	if err != nil {
		return nil, err
	}

	deps := make(map[string][]string, len(entries))
	for name, entry := range entries {
		deps[name] = entry.Info.DependencyNames()
	}
	weights := manifest.Weights(deps)

	db, err := h.db()
	if err != nil {
		return nil, err
	}
	persist, err := db.TableExists(ctx, store.SystemTableName)
	if err != nil {
		return nil, err
	}

	records := make(map[string]siteinstaller.ModuleRecord, len(entries))
	for _, name := range manifest.Names(entries) {
		entry := entries[name]
		info, err := json.Marshal(entry.Info)
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest of %s: %w", name, err)
		}
		row := store.ModuleRow{
			Name:          name,
			Type:          entry.Type,
			Filename:      entry.Filename,
			Status:        store.StatusDisabled,
			SchemaVersion: siteinstaller.SchemaUninstalled,
			Weight:        weights[name],
			Info:          info,
		}
		if persist {
			if err := db.SaveModule(ctx, row); err != nil {
				return nil, err
			}
			if saved, found, err := db.Module(ctx, name); err != nil {
				return nil, err
			} else if found {
				row = saved
			}
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		records[name] = rec
	}

	h.cache.Set(cacheModuleData, records)
	h.logger.Debug("Module data rebuilt", "modules", len(records), "persisted", persist)
	return records, nil
}

// scan returns the manifests on disk, scanning at most once between resets.
func (h *Host) scan() (map[string]*manifest.Entry, error) {
	if h.entries != nil {
		return h.entries, nil
	}
	dirs := slices.Clone(h.moduleDirs)
	if h.profile != nil {
		rel, err := filepath.Rel(h.root, filepath.Join(h.profile.Dir, "modules"))
		if err == nil {
			dirs = append(dirs, filepath.ToSlash(rel))
		}
	}
	entries, err := manifest.Scan(h.root, dirs)
	if err != nil {
		return nil, err
	}
	if h.profile != nil {
		entries[h.profile.Name] = h.profile
	}
	h.entries = entries
	return entries, nil
}

// InvokeAll calls hook on every enabled module implementing it.
func (h *Host) InvokeAll(ctx context.Context, hook string, modules []string) error {
	for _, name := range h.enabled {
		m, err := h.loadModule(name)
		if err != nil {
			return err
		}
		switch hook {
		case siteinstaller.HookModulesInstalled:
			err = m.ModulesInstalled(ctx, modules)
		case siteinstaller.HookModulesEnabled:
			err = m.ModulesEnabled(ctx, modules)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownHook, hook)
		}
		if err != nil {
			return fmt.Errorf("%s of %s failed: %w", hook, name, err)
		}
	}
	return nil
}

// RebuildThemeRegistry maps every theme hook to the enabled module
// declaring it. A lighter module overrides a heavier one.
func (h *Host) RebuildThemeRegistry(_ context.Context) error {
	h.lock.Acquire(cacheThemeRegistry)
	defer h.lock.Release(cacheThemeRegistry)

	themes := make(map[string]string)
	for _, name := range h.enabled {
		m, err := h.loadModule(name)
		if err != nil {
			return err
		}
		for _, hook := range m.Theme() {
			themes[hook] = name
		}
	}
	h.themes = themes
	h.cache.Set(cacheThemeRegistry, themes)
	h.logger.Debug("Theme registry rebuilt", "hooks", len(themes))
	return nil
}

// ThemeHook returns the module implementing a theme hook.
func (h *Host) ThemeHook(hook string) (string, bool) {
	module, ok := h.themes[hook]
	return module, ok
}

func recordFromRow(row store.ModuleRow) (siteinstaller.ModuleRecord, error) {
	rec := siteinstaller.ModuleRecord{
		Name:          row.Name,
		Type:          row.Type,
		Filename:      row.Filename,
		Enabled:       row.Enabled(),
		SchemaVersion: row.SchemaVersion,
		Sort:          row.Weight,
	}
	if len(row.Info) > 0 {
		var info manifest.Info
		if err := json.Unmarshal(row.Info, &info); err != nil {
			return rec, fmt.Errorf("failed to decode manifest of %s: %w", row.Name, err)
		}
		rec.Dependencies = info.DependencyNames()
		rec.ProvidesCode = len(info.Files) > 0
	}
	return rec, nil
}
