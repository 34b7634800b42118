package siteinstaller

import (
	"errors"
	"fmt"
)

// Installer errors. Every one of them is fatal to an install run.
var (
	// Platform discovery and bootstrap errors
	ErrDiscovery     = errors.New("platform root discovery failed")
	ErrConfiguration = errors.New("unrecognized bootstrap level")
	ErrRootConflict  = errors.New("platform root already fixed to a different path")

	// Install precondition errors
	ErrAlreadyInstalled  = errors.New("site already installed")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrInconsistentState = errors.New("module bookkeeping is incomplete")
	ErrInstallerSpent    = errors.New("installer already ran")

	// Dependency resolution errors
	ErrMissingModule = errors.New("module is missing from filesystem")

	// Config errors
	ErrConfigNil                 = errors.New("config is nil")
	ErrConfigNotPointer          = errors.New("config must be a pointer")
	ErrConfigNotStruct           = errors.New("config must be a struct")
	ErrConfigRequiredField       = errors.New("required field is missing")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrInvalidLogLevel           = errors.New("invalid log level")

	// Observer errors
	ErrObserverNil = errors.New("observer is nil")
)

// Discovery checks reported by DiscoveryError.
const (
	CheckDirectory        = "directory"
	CheckEntryPoint       = "entry-point"
	CheckBootstrapInclude = "bootstrap-include"
	CheckVersion          = "version"
)

// DiscoveryError reports which root check failed.
type DiscoveryError struct {
	Root   string
	Check  string
	Detail string
}

func (e *DiscoveryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s check failed", e.Root, e.Check)
	}
	return fmt.Sprintf("%s: %s check failed: %s", e.Root, e.Check, e.Detail)
}

func (e *DiscoveryError) Unwrap() error { return ErrDiscovery }

// ConfigurationError is returned for a bootstrap level the stager does not know.
type ConfigurationError struct {
	Level BootstrapLevel
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid bootstrap level given: %d", int(e.Level))
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// MissingModuleError names a requested or required module without a manifest.
type MissingModuleError struct {
	Name string
}

func (e *MissingModuleError) Error() string {
	return fmt.Sprintf("%s: module is missing from filesystem", e.Name)
}

func (e *MissingModuleError) Unwrap() error { return ErrMissingModule }

// InconsistentStateError names a module whose bookkeeping row does not exist.
type InconsistentStateError struct {
	Name string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%s: system table is not complete during install", e.Name)
}

func (e *InconsistentStateError) Unwrap() error { return ErrInconsistentState }

// ProfileNotFoundError is returned when a profile manifest or installer script is absent.
type ProfileNotFoundError struct {
	Name string
	Path string
}

func (e *ProfileNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: profile not found", e.Name)
	}
	return fmt.Sprintf("%s: profile not found (%s)", e.Name, e.Path)
}

func (e *ProfileNotFoundError) Unwrap() error { return ErrProfileNotFound }
