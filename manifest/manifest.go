// Package manifest reads module and profile manifests from a platform root.
//
// A module lives in its own directory holding <name>.info.yaml and,
// optionally, <name>.install.yaml. A profile additionally carries
// <name>.profile.yaml, its installer script.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/siteinstaller/store"
)

// Manifest file suffixes.
const (
	InfoSuffix    = ".info.yaml"
	InstallSuffix = ".install.yaml"
	ProfileSuffix = ".profile.yaml"
)

// Static errors for err113 compliance
var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrNameMismatch    = errors.New("manifest name does not match its file")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Info is the metadata of a module or profile.
type Info struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Package      string   `yaml:"package,omitempty" json:"package,omitempty"`
	Version      string   `yaml:"version,omitempty" json:"version,omitempty"`
	Core         string   `yaml:"core,omitempty" json:"core,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Files        []string `yaml:"files,omitempty" json:"files,omitempty"`
	Theme        []string `yaml:"theme,omitempty" json:"theme,omitempty"`
	Required     bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Hidden       bool     `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// DependencyNames returns the dependencies without version constraints.
func (i *Info) DependencyNames() []string {
	names := make([]string, 0, len(i.Dependencies))
	for _, dep := range i.Dependencies {
		names = append(names, DependencyName(dep))
	}
	return names
}

// DependencyName strips a version constraint: "views (>=3.0)" is "views".
func DependencyName(dep string) string {
	dep = strings.TrimSpace(dep)
	if i := strings.IndexAny(dep, " ("); i >= 0 {
		dep = dep[:i]
	}
	return dep
}

// Install is the optional install manifest of a module.
type Install struct {
	Schema            []store.Table  `yaml:"schema,omitempty"`
	Updates           []int          `yaml:"updates,omitempty"`
	LastRemovedUpdate int            `yaml:"last_removed_update,omitempty"`
	Variables         map[string]any `yaml:"variables,omitempty"`
}

// ParseInfo reads an info manifest. When name is not empty, the manifest's
// name must match it; an empty manifest name takes it.
func ParseInfo(path, name string) (*Info, error) {
	info := &Info{}
	if err := decodeFile(path, info); err != nil {
		return nil, err
	}
	if info.Name == "" {
		info.Name = name
	}
	if name != "" && info.Name != name {
		return nil, fmt.Errorf("%w: %s declares %q", ErrNameMismatch, path, info.Name)
	}
	if !namePattern.MatchString(info.Name) {
		return nil, fmt.Errorf("%w: %s: bad name %q", ErrInvalidManifest, path, info.Name)
	}
	for _, dep := range info.DependencyNames() {
		if !namePattern.MatchString(dep) {
			return nil, fmt.Errorf("%w: %s: bad dependency %q", ErrInvalidManifest, path, dep)
		}
	}
	return info, nil
}

// ParseInstall reads an install manifest. A missing file yields an empty
// manifest.
func ParseInstall(path string) (*Install, error) {
	install := &Install{}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return install, nil
	}
	if err := decodeFile(path, install); err != nil {
		return nil, err
	}
	for _, v := range install.Updates {
		if v <= 0 {
			return nil, fmt.Errorf("%w: %s: update %d must be positive", ErrInvalidManifest, path, v)
		}
	}
	return install, nil
}

func decodeFile(path string, out any) error {
	f, err := os.Open(path) // #nosec G304 - manifests are read from the configured root
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	return nil
}
