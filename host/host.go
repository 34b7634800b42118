// Package host is the platform the site installer drives: it loads site
// settings, connects to the database, tracks modules in the bookkeeping
// tables and runs module code.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/manifest"
	"github.com/GoCodeAlone/siteinstaller/store"
)

// Bootstrap phases. Each implies every lower one.
const (
	PhaseConfiguration = 1
	PhaseDatabase      = 2
	PhaseVariables     = 3
	PhaseSession       = 4
	PhaseLanguage      = 5
	PhaseFull          = 6
)

var phaseNames = map[int]string{
	PhaseConfiguration: "configuration",
	PhaseDatabase:      "database",
	PhaseVariables:     "variables",
	PhaseSession:       "session",
	PhaseLanguage:      "language",
	PhaseFull:          "full",
}

// Conf names read by the host.
const (
	ConfCacheSize   = "cache_size"
	ConfPathAliases = "path_aliases"
)

// Defaults relative to the platform root.
const (
	DefaultSettingsFile = "sites/default/settings.yaml"
	DefaultProfileDir   = "profiles"
)

// DefaultModuleDirs are scanned for modules, later ones overriding earlier.
var DefaultModuleDirs = []string{"modules", "sites/all/modules"}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(logger siteinstaller.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithSettingsFile sets the settings file, relative to the root.
func WithSettingsFile(path string) Option {
	return func(h *Host) { h.settingsFile = path }
}

// WithModuleDirs sets the module directories, relative to the root.
func WithModuleDirs(dirs ...string) Option {
	return func(h *Host) { h.moduleDirs = dirs }
}

// WithProfileDir sets the profile directory, relative to the root.
func WithProfileDir(dir string) Option {
	return func(h *Host) { h.profileDir = dir }
}

// WithCodeRegistry sets the Go code available to modules.
func WithCodeRegistry(registry *CodeRegistry) Option {
	return func(h *Host) { h.code = registry }
}

// Host implements siteinstaller.Host on top of a platform root.
//
// It is not safe for concurrent use: the installer drives it from a single
// goroutine.
type Host struct {
	root         string
	settingsFile string
	moduleDirs   []string
	profileDir   string
	code         *CodeRegistry
	logger       siteinstaller.Logger

	phase     int
	conf      *Conf
	serverMu  sync.RWMutex
	server    map[string]string
	settings  *Settings
	store     *store.Store
	variables map[string]json.RawMessage
	services  ServiceRegistry

	cache Cache
	lock  Lock
	path  PathRewriter

	profile *manifest.Entry
	entries map[string]*manifest.Entry
	enabled []string
	loaded  map[string]*loadedModule
	schema  map[string]*store.Table
	owners  map[string]string
	themes  map[string]string
}

var _ siteinstaller.Host = (*Host)(nil)

// New creates a host for the platform at root.
func New(root string, opts ...Option) *Host {
	h := &Host{
		root:         root,
		settingsFile: DefaultSettingsFile,
		moduleDirs:   DefaultModuleDirs,
		profileDir:   DefaultProfileDir,
		code:         DefaultCodeRegistry(),
		logger:       siteinstaller.NopLogger{},
		conf:         NewConf(),
		server:       make(map[string]string),
		variables:    make(map[string]json.RawMessage),
		services:     make(ServiceRegistry),
		cache:        NullCache{},
		lock:         NullLock{},
		path:         NullPathRewriter{},
		loaded:       make(map[string]*loadedModule),
		themes:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Root returns the platform root.
func (h *Host) Root() string { return h.root }

// Phase returns the highest bootstrap phase reached.
func (h *Host) Phase() int { return h.phase }

// Conf returns the layered configuration.
func (h *Host) Conf() *Conf { return h.conf }

// Services returns the service registry.
func (h *Host) Services() ServiceRegistry { return h.services }

// Settings returns the loaded settings, nil before the configuration phase.
func (h *Host) Settings() *Settings { return h.settings }

// Database returns the store, nil before the database phase.
func (h *Host) Database() *store.Store { return h.store }

// Close releases the database connection.
func (h *Host) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

// Bootstrap raises the host to phase, running every phase not reached yet.
func (h *Host) Bootstrap(ctx context.Context, phase int) error {
	if _, ok := phaseNames[phase]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, phase)
	}
	for p := h.phase + 1; p <= phase; p++ {
		if err := h.runPhase(ctx, p); err != nil {
			return fmt.Errorf("bootstrap phase %s failed: %w", phaseNames[p], err)
		}
		h.phase = p
		h.logger.Debug("Bootstrap phase reached", "phase", phaseNames[p])
	}
	return nil
}

func (h *Host) runPhase(ctx context.Context, phase int) error {
	switch phase {
	case PhaseConfiguration:
		settings, err := LoadSettings(h.root, filepath.Join(h.root, filepath.FromSlash(h.settingsFile)))
		if err != nil {
			return err
		}
		h.settings = settings
		h.conf.Load(settings.Conf)
	case PhaseDatabase:
		db := h.settings.Database
		s, err := store.Open(ctx, db.Driver, db.DSN, db.Prefix)
		if err != nil {
			return err
		}
		h.store = s
		RegisterService(h.services, ServiceDatabase, s)
	case PhaseVariables:
		return h.loadVariables(ctx)
	case PhaseSession:
		// Installs run without a session.
	case PhaseLanguage:
		return h.initSubsystems()
	case PhaseFull:
		return h.ResetModuleList(ctx)
	}
	return nil
}

func (h *Host) loadVariables(ctx context.Context) error {
	exists, err := h.store.TableExists(ctx, store.VariableTableName)
	if err != nil || !exists {
		return err
	}
	vars, err := h.store.Variables(ctx)
	if err != nil {
		return err
	}
	h.variables = vars
	return nil
}

func (h *Host) initSubsystems() error {
	size := defaultCacheSize
	if v, ok := h.conf.Get(ConfCacheSize); ok {
		if n, ok := v.(int); ok && n > 0 {
			size = n
		}
	}
	cache, err := newCache(h.conf.String(siteinstaller.ConfCacheDefaultClass, BackendMemory), size)
	if err != nil {
		return err
	}
	lock, err := newLock(h.conf.String(siteinstaller.ConfLockInc, BackendMemory))
	if err != nil {
		return err
	}
	aliases, _ := h.conf.Get(ConfPathAliases)
	path, err := newPathRewriter(h.conf.String(siteinstaller.ConfPathInc, BackendAlias), aliases)
	if err != nil {
		return err
	}
	h.cache, h.lock, h.path = cache, lock, path

	RegisterService(h.services, ServiceCache, cache)
	RegisterService(h.services, ServiceLock, lock)
	RegisterService(h.services, ServicePath, path)
	RegisterService(h.services, ServiceConf, h.conf)
	h.logger.Debug("Subsystems ready", "cache", fmt.Sprintf("%T", cache), "lock", fmt.Sprintf("%T", lock), "path", fmt.Sprintf("%T", path))
	return nil
}

// OverrideConf pins a conf value, winning over the settings file.
func (h *Host) OverrideConf(name string, value any) { h.conf.Override(name, value) }

// MaskConf hides settings file values starting with prefix.
func (h *Host) MaskConf(prefix string) { h.conf.Mask(prefix) }

// Server returns a request environment value.
func (h *Host) Server(key string) (string, bool) {
	h.serverMu.RLock()
	defer h.serverMu.RUnlock()
	v, ok := h.server[key]
	return v, ok
}

// SetServer sets a request environment value.
func (h *Host) SetServer(key, value string) {
	h.serverMu.Lock()
	defer h.serverMu.Unlock()
	h.server[key] = value
}

// Variable returns name from conf, falling back to the stored variables,
// decoded into out. It reports whether a value was found.
func (h *Host) Variable(name string, out any) (bool, error) {
	if v, ok := h.conf.Get(name); ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return false, fmt.Errorf("failed to encode conf %s: %w", name, err)
		}
		return true, json.Unmarshal(raw, out)
	}
	raw, ok := h.variables[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode variable %s: %w", name, err)
	}
	return true, nil
}

// Alias returns the public alias of an internal path.
func (h *Host) Alias(path string) string { return h.path.Alias(path) }

func (h *Host) db() (*store.Store, error) {
	if h.store == nil {
		return nil, fmt.Errorf("%w: no database connection", ErrNotBootstrapped)
	}
	return h.store, nil
}
