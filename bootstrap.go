package siteinstaller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// BootstrapLevel is one stage of the host's initialization sequence. Levels
// are totally ordered; reaching one implies every lower one.
type BootstrapLevel int

// Recognized bootstrap levels. The gap at 4 is the host's session phase,
// which the installer never asks for directly.
const (
	LevelSettings  BootstrapLevel = 1
	LevelDatabase  BootstrapLevel = 2
	LevelVariables BootstrapLevel = 3
	LevelLanguage  BootstrapLevel = 5
	LevelFull      BootstrapLevel = 6
)

var levelNames = map[BootstrapLevel]string{
	LevelSettings:  "settings",
	LevelDatabase:  "database",
	LevelVariables: "variables",
	LevelLanguage:  "language",
	LevelFull:      "full",
}

// Valid reports whether the level is one of the recognized levels.
func (l BootstrapLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l BootstrapLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// RootLayout names the files that identify a platform root.
type RootLayout struct {
	EntryPoint       string
	BootstrapInclude string
}

// DefaultRootLayout is the layout of a stock platform checkout.
var DefaultRootLayout = RootLayout{
	EntryPoint:       "platform.toml",
	BootstrapInclude: filepath.Join("core", "bootstrap.toml"),
}

// processRoot is the platform root fixed for the lifetime of the process.
var processRoot struct {
	mu   sync.Mutex
	path string
}

// fixProcessRoot records path as the process root. Fixing a different root
// afterwards is a logic error.
func fixProcessRoot(path string) error {
	processRoot.mu.Lock()
	defer processRoot.mu.Unlock()

	if processRoot.path == "" {
		processRoot.path = path
		return nil
	}
	if processRoot.path != path {
		return fmt.Errorf("%w: %s is fixed, got %s", ErrRootConflict, processRoot.path, path)
	}
	return nil
}

func resetProcessRoot() {
	processRoot.mu.Lock()
	processRoot.path = ""
	processRoot.mu.Unlock()
}

type bootstrapInclude struct {
	Version string `toml:"version"`
}

// DiscoverRoot checks that root is a valid platform installation and returns
// its resolved path and core version.
func DiscoverRoot(root string, layout RootLayout) (string, string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", "", &DiscoveryError{Root: root, Check: CheckDirectory, Detail: "directory does not exist"}
	}

	if _, err := os.Stat(filepath.Join(root, layout.EntryPoint)); err != nil {
		return "", "", &DiscoveryError{Root: root, Check: CheckEntryPoint, Detail: "not a platform application directory"}
	}

	includePath := filepath.Join(root, layout.BootstrapInclude)
	if info, err := os.Stat(includePath); err != nil || !info.Mode().IsRegular() {
		return "", "", &DiscoveryError{Root: root, Check: CheckBootstrapInclude, Detail: "not a platform installation or version mismatch"}
	}

	var include bootstrapInclude
	if _, err := toml.DecodeFile(includePath, &include); err != nil {
		return "", "", &DiscoveryError{Root: root, Check: CheckVersion, Detail: err.Error()}
	}
	major, _, _ := strings.Cut(strings.TrimSpace(include.Version), ".")
	if n, err := strconv.Atoi(major); err != nil || n <= 0 {
		return "", "", &DiscoveryError{Root: root, Check: CheckVersion, Detail: "could not parse core version"}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", "", &DiscoveryError{Root: root, Check: CheckDirectory, Detail: err.Error()}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", &DiscoveryError{Root: root, Check: CheckDirectory, Detail: err.Error()}
	}
	return resolved, include.Version, nil
}

// StagerOption configures a BootstrapStager.
type StagerOption func(*BootstrapStager)

// WithRootLayout overrides the files used to recognize a platform root.
func WithRootLayout(layout RootLayout) StagerOption {
	return func(s *BootstrapStager) { s.layout = layout }
}

// WithStagerLogger sets the stager's logger.
func WithStagerLogger(logger Logger) StagerOption {
	return func(s *BootstrapStager) { s.logger = logger }
}

// BootstrapStager raises the host through bootstrap levels. It only sequences
// calls into the host; it holds no platform state of its own beyond the
// highest level reached.
type BootstrapStager struct {
	root    string
	layout  RootLayout
	host    Bootstrapper
	logger  Logger
	reached BootstrapLevel

	resolvedRoot string
	version      string
}

// NewBootstrapStager creates a stager for the platform at root.
func NewBootstrapStager(root string, host Bootstrapper, opts ...StagerOption) *BootstrapStager {
	s := &BootstrapStager{
		root:   root,
		layout: DefaultRootLayout,
		host:   host,
		logger: NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureLevel raises the host to at least target. Callers should ask for the
// lowest level their operation needs; higher levels are expensive.
func (s *BootstrapStager) EnsureLevel(ctx context.Context, target BootstrapLevel) error {
	if !target.Valid() {
		return &ConfigurationError{Level: target}
	}
	if err := s.discover(); err != nil {
		return err
	}
	if target <= s.reached {
		return nil
	}

	s.logger.Debug("Bootstrapping platform", "from", s.reached, "to", target)
	if err := s.host.Bootstrap(ctx, int(target)); err != nil {
		return fmt.Errorf("failed to bootstrap to %s: %w", target, err)
	}
	s.reached = target
	return nil
}

// Reached returns the highest level reached so far, 0 if none.
func (s *BootstrapStager) Reached() BootstrapLevel {
	return s.reached
}

// Root returns the resolved platform root. It is empty until discovery ran.
func (s *BootstrapStager) Root() string {
	return s.resolvedRoot
}

// Version returns the platform core version found during discovery.
func (s *BootstrapStager) Version() string {
	return s.version
}

func (s *BootstrapStager) discover() error {
	if s.resolvedRoot != "" {
		return nil
	}
	resolved, version, err := DiscoverRoot(s.root, s.layout)
	if err != nil {
		return err
	}
	if err := fixProcessRoot(resolved); err != nil {
		return err
	}
	s.resolvedRoot = resolved
	s.version = version
	s.logger.Debug("Discovered platform root", "root", resolved, "version", version)
	return nil
}
