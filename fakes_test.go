package siteinstaller

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var errBoom = errors.New("boom")

// fakeModule records the hooks run on it.
type fakeModule struct {
	name        string
	updates     []int
	lastRemoved int

	installs  int
	enables   int
	installed [][]string
	enabled   [][]string
	failOn    string
}

func (m *fakeModule) Name() string           { return m.name }
func (m *fakeModule) UpdateVersions() []int  { return m.updates }
func (m *fakeModule) LastRemovedUpdate() int { return m.lastRemoved }

func (m *fakeModule) Install(context.Context) error {
	m.installs++
	if m.failOn == "install" {
		return errBoom
	}
	return nil
}

func (m *fakeModule) Enable(context.Context) error {
	m.enables++
	if m.failOn == "enable" {
		return errBoom
	}
	return nil
}

func (m *fakeModule) ModulesInstalled(_ context.Context, modules []string) error {
	m.installed = append(m.installed, slices.Clone(modules))
	return nil
}

func (m *fakeModule) ModulesEnabled(_ context.Context, modules []string) error {
	m.enabled = append(m.enabled, slices.Clone(modules))
	return nil
}

// bareModule implements no optional hook at all.
type bareModule struct{ name string }

func (m bareModule) Name() string { return m.name }

// fakeHost is an in-memory Host. catalog is what the filesystem holds, rows
// is the bookkeeping table once it exists.
type fakeHost struct {
	calls []string

	phase     int
	failPhase int
	conf      map[string]any
	masked    []string
	server    map[string]string

	tables    map[string]bool
	catalog   map[string]ModuleRecord
	rows      map[string]*ModuleRecord
	code      map[string]ModuleCode
	variables map[string]any
	profiles  map[string]Profile
	enabled   []string

	failOn map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		conf:      make(map[string]any),
		server:    make(map[string]string),
		tables:    make(map[string]bool),
		catalog:   make(map[string]ModuleRecord),
		rows:      make(map[string]*ModuleRecord),
		code:      make(map[string]ModuleCode),
		variables: make(map[string]any),
		profiles:  make(map[string]Profile),
		failOn:    make(map[string]error),
	}
}

// addModule puts a module on the fake filesystem with Go code.
func (h *fakeHost) addModule(rec ModuleRecord) *fakeModule {
	if rec.Type == "" {
		rec.Type = TypeModule
	}
	rec.SchemaVersion = SchemaUninstalled
	h.catalog[rec.Name] = rec
	code := &fakeModule{name: rec.Name}
	h.code[rec.Name] = code
	return code
}

// addRow puts a bookkeeping row directly, as if a previous run left it.
func (h *fakeHost) addRow(rec ModuleRecord) {
	r := rec
	h.rows[rec.Name] = &r
}

func (h *fakeHost) record(call string) error {
	h.calls = append(h.calls, call)
	return h.failOn[call]
}

func (h *fakeHost) Bootstrap(_ context.Context, phase int) error {
	if err := h.record(fmt.Sprintf("Bootstrap(%d)", phase)); err != nil {
		return err
	}
	if h.failPhase != 0 && phase >= h.failPhase {
		return errBoom
	}
	h.phase = max(h.phase, phase)
	return nil
}

func (h *fakeHost) OverrideConf(name string, value any) { h.conf[name] = value }
func (h *fakeHost) MaskConf(prefix string)              { h.masked = append(h.masked, prefix) }

func (h *fakeHost) Server(key string) (string, bool) {
	v, ok := h.server[key]
	return v, ok
}

func (h *fakeHost) SetServer(key, value string) { h.server[key] = value }

func (h *fakeHost) TableExists(_ context.Context, table string) (bool, error) {
	if err := h.record("TableExists(" + table + ")"); err != nil {
		return false, err
	}
	return h.tables[table], nil
}

func (h *fakeHost) Module(_ context.Context, name string) (ModuleRecord, bool, error) {
	if err := h.failOn["Module("+name+")"]; err != nil {
		return ModuleRecord{}, false, err
	}
	rec, ok := h.rows[name]
	if !ok {
		return ModuleRecord{}, false, nil
	}
	return *rec, true, nil
}

func (h *fakeHost) SetModuleEnabled(_ context.Context, name string, enabled bool) error {
	if err := h.record("SetModuleEnabled(" + name + ")"); err != nil {
		return err
	}
	h.rows[name].Enabled = enabled
	return nil
}

func (h *fakeHost) SetSchemaVersion(_ context.Context, name string, version int) error {
	if err := h.record(fmt.Sprintf("SetSchemaVersion(%s,%d)", name, version)); err != nil {
		return err
	}
	h.rows[name].SchemaVersion = version
	return nil
}

func (h *fakeHost) SetVariable(_ context.Context, name string, value any) error {
	if err := h.record("SetVariable(" + name + ")"); err != nil {
		return err
	}
	h.variables[name] = value
	return nil
}

func (h *fakeHost) LoadModule(_ context.Context, name string) (ModuleCode, error) {
	if err := h.record("LoadModule(" + name + ")"); err != nil {
		return nil, err
	}
	code, ok := h.code[name]
	if !ok {
		return bareModule{name: name}, nil
	}
	return code, nil
}

func (h *fakeHost) ResetStatic() { h.calls = append(h.calls, "ResetStatic") }

func (h *fakeHost) ResetModuleList(context.Context) error {
	if err := h.record("ResetModuleList"); err != nil {
		return err
	}
	h.enabled = h.enabled[:0]
	for _, name := range slices.Sorted(maps.Keys(h.rows)) {
		if h.rows[name].Enabled {
			h.enabled = append(h.enabled, name)
		}
	}
	return nil
}

func (h *fakeHost) RebuildCodeRegistry(context.Context) error {
	return h.record("RebuildCodeRegistry")
}

func (h *fakeHost) RebuildSchema(context.Context) error {
	return h.record("RebuildSchema")
}

func (h *fakeHost) InstallSchema(_ context.Context, name string) error {
	return h.record("InstallSchema(" + name + ")")
}

func (h *fakeHost) InstallSystem(ctx context.Context) error {
	if err := h.record("InstallSystem"); err != nil {
		return err
	}
	h.tables[BookkeepingTable] = true
	if _, err := h.RebuildModuleData(ctx); err != nil {
		return err
	}
	sys, ok := h.rows[SystemModule]
	if !ok {
		return &MissingModuleError{Name: SystemModule}
	}
	sys.Enabled = true
	sys.SchemaVersion = SchemaInstalled
	return h.ResetModuleList(ctx)
}

func (h *fakeHost) RebuildModuleData(context.Context) (map[string]ModuleRecord, error) {
	if err := h.record("RebuildModuleData"); err != nil {
		return nil, err
	}
	out := make(map[string]ModuleRecord, len(h.catalog))
	for name, rec := range h.catalog {
		if h.tables[BookkeepingTable] {
			if _, ok := h.rows[name]; !ok {
				h.addRow(rec)
			}
			row := h.rows[name]
			rec.Enabled, rec.SchemaVersion = row.Enabled, row.SchemaVersion
		}
		out[name] = rec
	}
	return out, nil
}

func (h *fakeHost) InvokeAll(ctx context.Context, hook string, modules []string) error {
	if err := h.record("InvokeAll(" + hook + ")"); err != nil {
		return err
	}
	for _, name := range h.enabled {
		code := h.code[name]
		switch hook {
		case HookModulesInstalled:
			if l, ok := code.(ModulesInstalledListener); ok {
				if err := l.ModulesInstalled(ctx, modules); err != nil {
					return err
				}
			}
		case HookModulesEnabled:
			if l, ok := code.(ModulesEnabledListener); ok {
				if err := l.ModulesEnabled(ctx, modules); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (h *fakeHost) RebuildThemeRegistry(context.Context) error {
	return h.record("RebuildThemeRegistry")
}

func (h *fakeHost) LoadProfile(_ context.Context, name string) (Profile, error) {
	if err := h.record("LoadProfile(" + name + ")"); err != nil {
		return Profile{}, err
	}
	p, ok := h.profiles[name]
	if !ok {
		return Profile{}, &ProfileNotFoundError{Name: name}
	}
	return p, nil
}

func (h *fakeHost) called(call string) bool {
	return slices.Contains(h.calls, call)
}

func (h *fakeHost) callIndex(call string) int {
	return slices.Index(h.calls, call)
}

// eventRecorder collects every event sent to a subject.
type eventRecorder struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string { return "recorder" }

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

func (r *eventRecorder) ofType(eventType string) []cloudevents.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cloudevents.Event
	for _, e := range r.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// newSubject returns a registry wired to a fresh recorder.
func newSubject() (*ObserverRegistry, *eventRecorder) {
	subject := NewObserverRegistry(nil)
	rec := &eventRecorder{}
	_ = subject.RegisterObserver(rec)
	return subject, rec
}

// standardSite is a fake host holding the foundation modules, node, filter
// and a "minimal" profile requiring block. Sort weights put dependencies first.
func standardSite() *fakeHost {
	h := newFakeHost()
	h.addModule(ModuleRecord{Name: SystemModule, Sort: 10})
	h.addModule(ModuleRecord{Name: UserModule, Sort: 9, ProvidesCode: true})
	h.addModule(ModuleRecord{Name: "filter", Sort: 8})
	h.addModule(ModuleRecord{Name: "node", Sort: 7, Dependencies: []string{"filter"}, ProvidesCode: true})
	h.addModule(ModuleRecord{Name: "block", Sort: 6, Dependencies: []string{SystemModule}})
	h.addModule(ModuleRecord{Name: "minimal", Type: TypeProfile, Sort: 1, Dependencies: []string{"block"}})
	h.profiles["minimal"] = Profile{Name: "minimal", Path: "profiles/minimal/minimal.info.yaml", Dependencies: []string{"block"}}
	return h
}
