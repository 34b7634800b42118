package host

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/manifest"
	"github.com/GoCodeAlone/siteinstaller/store"
)

// SchemaProvider is implemented by module code declaring tables in Go.
type SchemaProvider interface {
	Schema() []store.Table
}

// SchemaAlterer is implemented by module code changing tables declared by
// other modules. It runs on every schema rebuild, after all tables are
// collected.
type SchemaAlterer interface {
	AlterSchema(tables map[string]*store.Table)
}

// ThemeProvider is implemented by module code declaring theme hooks.
type ThemeProvider interface {
	Theme() []string
}

// Factory creates the Go code of a module.
type Factory func(h *Host) siteinstaller.ModuleCode

// CodeRegistry maps module names to their Go code. Modules without an entry
// are driven purely by their manifests.
type CodeRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCodeRegistry creates an empty registry.
func NewCodeRegistry() *CodeRegistry {
	return &CodeRegistry{factories: make(map[string]Factory)}
}

// DefaultCodeRegistry returns a registry holding the foundation modules.
func DefaultCodeRegistry() *CodeRegistry {
	r := NewCodeRegistry()
	r.Register(siteinstaller.SystemModule, newSystemModule)
	r.Register(siteinstaller.UserModule, newUserModule)
	return r
}

// Register sets the code of name, replacing any earlier registration.
func (r *CodeRegistry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered module names, sorted.
func (r *CodeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *CodeRegistry) lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// loadedModule joins a module's manifests with its optional Go code.
type loadedModule struct {
	host    *Host
	entry   *manifest.Entry
	install *manifest.Install
	code    siteinstaller.ModuleCode
}

func (m *loadedModule) Name() string { return m.entry.Name }

func (m *loadedModule) UpdateVersions() []int {
	versions := slices.Clone(m.install.Updates)
	if p, ok := m.code.(siteinstaller.UpdateProvider); ok {
		versions = append(versions, p.UpdateVersions()...)
	}
	slices.Sort(versions)
	return slices.Compact(versions)
}

func (m *loadedModule) LastRemovedUpdate() int {
	last := m.install.LastRemovedUpdate
	if p, ok := m.code.(siteinstaller.LastRemovedUpdateProvider); ok {
		last = max(last, p.LastRemovedUpdate())
	}
	return last
}

func (m *loadedModule) Schema() []store.Table {
	tables := slices.Clone(m.install.Schema)
	if p, ok := m.code.(SchemaProvider); ok {
		tables = append(tables, p.Schema()...)
	}
	return tables
}

func (m *loadedModule) AlterSchema(tables map[string]*store.Table) {
	if a, ok := m.code.(SchemaAlterer); ok {
		a.AlterSchema(tables)
	}
}

func (m *loadedModule) Theme() []string {
	hooks := slices.Clone(m.entry.Info.Theme)
	if p, ok := m.code.(ThemeProvider); ok {
		hooks = append(hooks, p.Theme()...)
	}
	return hooks
}

// Install seeds the variables declared by the install manifest, then runs
// the module's own install hook.
func (m *loadedModule) Install(ctx context.Context) error {
	names := make([]string, 0, len(m.install.Variables))
	for name := range m.install.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.host.SetVariable(ctx, name, m.install.Variables[name]); err != nil {
			return fmt.Errorf("failed to seed variable %s: %w", name, err)
		}
	}
	if hook, ok := m.code.(siteinstaller.Installable); ok {
		return hook.Install(ctx)
	}
	return nil
}

func (m *loadedModule) Enable(ctx context.Context) error {
	if hook, ok := m.code.(siteinstaller.Enableable); ok {
		return hook.Enable(ctx)
	}
	return nil
}

func (m *loadedModule) ModulesInstalled(ctx context.Context, modules []string) error {
	if l, ok := m.code.(siteinstaller.ModulesInstalledListener); ok {
		return l.ModulesInstalled(ctx, modules)
	}
	return nil
}

func (m *loadedModule) ModulesEnabled(ctx context.Context, modules []string) error {
	if l, ok := m.code.(siteinstaller.ModulesEnabledListener); ok {
		return l.ModulesEnabled(ctx, modules)
	}
	return nil
}
