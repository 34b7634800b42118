package siteinstaller

import (
	"context"
	"fmt"
)

// ModuleInstaller enables and, on first install, installs a single module.
//
// Each step is a separate side effect against the store or the running
// process. Nothing is wrapped in a transaction: an error part-way leaves the
// store partially installed, and the whole run is expected to abort.
type ModuleInstaller struct {
	store   Store
	runtime Runtime
	subject Subject
	logger  Logger
}

// NewModuleInstaller creates a module installer. subject may be nil.
func NewModuleInstaller(store Store, runtime Runtime, subject Subject, logger Logger) *ModuleInstaller {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ModuleInstaller{
		store:   store,
		runtime: runtime,
		subject: subject,
		logger:  logger,
	}
}

// Install brings name to enabled. It returns Skipped when the module already
// is, which makes repeated runs over the same plan idempotent.
func (m *ModuleInstaller) Install(ctx context.Context, name string) (InstallOutcome, error) {
	rec, found, err := m.store.Module(ctx, name)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read bookkeeping for %s: %w", name, err)
	}
	if !found {
		return Skipped, &InconsistentStateError{Name: name}
	}
	if rec.Enabled {
		m.logger.Debug("Module already enabled, skipping", "module", name)
		m.emit(ctx, EventTypeModuleSkipped, ModuleEventData{Module: name, SchemaVersion: rec.SchemaVersion})
		return Skipped, nil
	}

	code, err := m.runtime.LoadModule(ctx, name)
	if err != nil {
		return Skipped, fmt.Errorf("failed to load module %s: %w", name, err)
	}

	if err := m.store.SetModuleEnabled(ctx, name, true); err != nil {
		return Skipped, fmt.Errorf("failed to enable module %s: %w", name, err)
	}
	m.runtime.ResetStatic()
	if err := m.runtime.ResetModuleList(ctx); err != nil {
		return Skipped, fmt.Errorf("failed to refresh module list after enabling %s: %w", name, err)
	}

	// Only modules declaring files feed the code registry.
	if rec.ProvidesCode {
		if err := m.runtime.RebuildCodeRegistry(ctx); err != nil {
			return Skipped, fmt.Errorf("failed to rebuild code registry for %s: %w", name, err)
		}
	}

	// Always refresh: later modules may alter the schema of earlier ones.
	if err := m.runtime.RebuildSchema(ctx); err != nil {
		return Skipped, fmt.Errorf("failed to rebuild schema for %s: %w", name, err)
	}

	version := rec.SchemaVersion
	if rec.SchemaVersion == SchemaUninstalled {
		if err := m.runtime.InstallSchema(ctx, name); err != nil {
			return Skipped, fmt.Errorf("failed to install schema for %s: %w", name, err)
		}
		version = TargetSchemaVersion(code)
		if err := m.store.SetSchemaVersion(ctx, name, version); err != nil {
			return Skipped, fmt.Errorf("failed to persist schema version for %s: %w", name, err)
		}
		if hook, ok := code.(Installable); ok {
			if err := hook.Install(ctx); err != nil {
				return Skipped, fmt.Errorf("install hook of %s failed: %w", name, err)
			}
		}
	}

	if hook, ok := code.(Enableable); ok {
		if err := hook.Enable(ctx); err != nil {
			return Skipped, fmt.Errorf("enable hook of %s failed: %w", name, err)
		}
	}

	m.logger.Info("Module installed", "module", name, "schemaVersion", version)
	m.emit(ctx, EventTypeModuleInstalled, ModuleEventData{Module: name, SchemaVersion: version})
	return Installed, nil
}

func (m *ModuleInstaller) emit(ctx context.Context, eventType string, data ModuleEventData) {
	if m.subject == nil {
		return
	}
	if err := m.subject.NotifyObservers(ctx, NewCloudEvent(eventType, data, nil)); err != nil {
		m.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
