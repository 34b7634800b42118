package siteinstaller

import "context"

// Bootstrapper is the host's staged bootstrap primitive. Raising it to a phase
// implies every lower phase, and asking for a phase already reached is a no-op.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, phase int) error
}

// Environment receives the process-lifetime overrides applied before
// installation. Overrides win over whatever the settings file declares.
type Environment interface {
	// OverrideConf pins a conf variable to value.
	OverrideConf(name string, value any)

	// MaskConf hides every conf variable starting with prefix.
	MaskConf(prefix string)

	// Server returns a request environment value.
	Server(key string) (string, bool)

	// SetServer sets a request environment value.
	SetServer(key, value string)
}

// Store is the installer's view of the relational store.
type Store interface {
	// TableExists reports whether a table is present.
	TableExists(ctx context.Context, table string) (bool, error)

	// Module returns the bookkeeping record of a module. The boolean is false
	// when the row does not exist.
	Module(ctx context.Context, name string) (ModuleRecord, bool, error)

	// SetModuleEnabled flips the persisted enabled flag.
	SetModuleEnabled(ctx context.Context, name string, enabled bool) error

	// SetSchemaVersion persists a module's installed schema version.
	SetSchemaVersion(ctx context.Context, name string, version int) error

	// SetVariable persists a named variable.
	SetVariable(ctx context.Context, name string, value any) error
}

// Runtime is the running platform's module machinery.
type Runtime interface {
	// LoadModule loads a module's code and its install-time hooks.
	LoadModule(ctx context.Context, name string) (ModuleCode, error)

	// ResetStatic drops per-process static caches.
	ResetStatic()

	// ResetModuleList refreshes the list of enabled modules from the store.
	ResetModuleList(ctx context.Context) error

	// RebuildCodeRegistry rebuilds the class/file registry of enabled modules.
	RebuildCodeRegistry(ctx context.Context) error

	// RebuildSchema recomputes the schema definitions of enabled modules.
	RebuildSchema(ctx context.Context) error

	// InstallSchema creates the schema objects a module declares.
	InstallSchema(ctx context.Context, name string) error

	// InstallSystem installs the system module, creating the bookkeeping
	// table and populating it with every module found on the filesystem.
	InstallSystem(ctx context.Context) error

	// RebuildModuleData rescans the filesystem and returns every known module
	// keyed by name, with dependencies and sort weights computed.
	RebuildModuleData(ctx context.Context) (map[string]ModuleRecord, error)

	// InvokeAll calls an aggregate hook on every enabled module.
	InvokeAll(ctx context.Context, hook string, modules []string) error

	// RebuildThemeRegistry rebuilds the presentation registry.
	RebuildThemeRegistry(ctx context.Context) error
}

// ProfileLoader reads profile manifests.
type ProfileLoader interface {
	// LoadProfile returns the named profile. It fails with a
	// ProfileNotFoundError when the manifest or installer script is absent.
	LoadProfile(ctx context.Context, name string) (Profile, error)
}

// Host bundles every collaborator the SiteInstaller needs from the platform.
type Host interface {
	Bootstrapper
	Environment
	Store
	Runtime
	ProfileLoader
}

// Aggregate hook names.
const (
	HookModulesInstalled = "modules_installed"
	HookModulesEnabled   = "modules_enabled"
)

// Bookkeeping table name. Its presence means the site is already installed.
const BookkeepingTable = "system"
