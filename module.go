// Package siteinstaller installs a modular platform onto a prepared but
// uninitialized relational store without going through the interactive
// install flow.
//
// The package holds the orchestration core: a stager that raises the host
// platform through its bootstrap levels, a resolver that turns a profile's
// declared dependencies into an install plan, a single-module installer and
// the SiteInstaller state machine composing them. The host platform itself
// (bookkeeping table, module code, schema creation) is reached through the
// interfaces in platform.go.
//
// Basic usage:
//
//	inst := siteinstaller.NewSiteInstaller(host, stager, logger)
//	report, err := inst.Install(ctx, "minimal")
package siteinstaller

import (
	"context"
	"slices"
)

// Schema version markers persisted in the bookkeeping table.
const (
	// SchemaUninstalled marks a module whose schema has never been installed.
	SchemaUninstalled = -1

	// SchemaInstalled is the baseline version for a module without update routines.
	SchemaInstalled = 0
)

// Module types stored in the bookkeeping table.
const (
	TypeModule  = "module"
	TypeProfile = "profile"
)

// Foundation modules are installed directly because the platform cannot
// resolve its own bootstrap.
const (
	SystemModule = "system"
	UserModule   = "user"
)

// implicitModules are always required regardless of what a profile declares.
// They are prepended in this order, so the last one ends up first.
var implicitModules = []string{"node", "filter"}

// ImplicitModules returns a copy of the modules forced into every install
// plan, in the order they are prepended.
func ImplicitModules() []string { return slices.Clone(implicitModules) }

// ModuleRecord is the persisted bookkeeping entry of one installable unit,
// merged with what its manifest declares.
type ModuleRecord struct {
	Name          string
	Type          string
	Filename      string
	Enabled       bool
	SchemaVersion int

	// Dependencies are the module names the manifest declares.
	Dependencies []string

	// ProvidesCode is true when the manifest declares loadable files, which
	// means the code registry has to be rebuilt once the module is enabled.
	ProvidesCode bool

	// Sort is the platform-supplied install priority. Higher sorts first.
	Sort int
}

// Profile is the named manifest describing what to install.
type Profile struct {
	Name         string
	Path         string
	Dependencies []string
}

// InstallPlan is the ordered list of modules to install. Every dependency of
// a module appears before it, cycles excepted.
type InstallPlan []string

// Contains reports whether name is part of the plan.
func (p InstallPlan) Contains(name string) bool {
	return slices.Contains(p, name)
}

// Index returns the position of name in the plan, or -1.
func (p InstallPlan) Index(name string) int {
	return slices.Index(p, name)
}

// InstallOutcome is the result of installing a single module.
type InstallOutcome int

const (
	// Skipped means the module was already enabled. It is not an error.
	Skipped InstallOutcome = iota
	// Installed means the module went through the full install pass.
	Installed
)

func (o InstallOutcome) String() string {
	if o == Installed {
		return "installed"
	}
	return "skipped"
}

// ModuleCode is a module's code once loaded into the running process.
// It only needs a name; every hook below is optional and discovered by
// type assertion.
type ModuleCode interface {
	Name() string
}

// UpdateProvider is implemented by modules that define numbered update routines.
type UpdateProvider interface {
	// UpdateVersions returns the numbers of every update routine the module defines.
	UpdateVersions() []int
}

// LastRemovedUpdateProvider is implemented by modules that dropped old update
// routines and still want the schema version to reflect them.
type LastRemovedUpdateProvider interface {
	// LastRemovedUpdate returns the number of the last removed update, 0 for none.
	LastRemovedUpdate() int
}

// Installable modules run their install hook once, right after their schema
// is first created.
type Installable interface {
	Install(ctx context.Context) error
}

// Enableable modules run their enable hook on every successful install pass.
type Enableable interface {
	Enable(ctx context.Context) error
}

// ModulesInstalledListener receives the aggregate notification sent once the
// whole plan is installed.
type ModulesInstalledListener interface {
	ModulesInstalled(ctx context.Context, modules []string) error
}

// ModulesEnabledListener receives the aggregate notification sent once the
// whole plan is enabled.
type ModulesEnabledListener interface {
	ModulesEnabled(ctx context.Context, modules []string) error
}

// TargetSchemaVersion computes the version persisted after a module's schema
// is created: the highest update number, or SchemaInstalled when there are
// none, raised to the last removed update when one is declared.
func TargetSchemaVersion(code ModuleCode) int {
	version := SchemaInstalled
	if up, ok := code.(UpdateProvider); ok {
		if updates := up.UpdateVersions(); len(updates) > 0 {
			version = slices.Max(updates)
		}
	}
	if lr, ok := code.(LastRemovedUpdateProvider); ok {
		if last := lr.LastRemovedUpdate(); last > 0 {
			version = max(version, last)
		}
	}
	return version
}
