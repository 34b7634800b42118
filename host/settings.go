package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatabaseSettings describes the site database connection.
type DatabaseSettings struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// Settings is the content of the site settings file.
type Settings struct {
	Database DatabaseSettings `yaml:"database"`
	Conf     map[string]any   `yaml:"conf"`
}

// LoadSettings reads the settings file at path. Environment references in
// the DSN are expanded, and a relative sqlite DSN is resolved against root.
func LoadSettings(root, path string) (*Settings, error) {
	data, err := os.ReadFile(path) // #nosec G304 - settings live under the configured root
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSettings, path, err)
	}
	if settings.Database.Driver == "" {
		return nil, fmt.Errorf("%w: %s: database driver is required", ErrInvalidSettings, path)
	}
	if settings.Conf == nil {
		settings.Conf = make(map[string]any)
	}

	dsn := os.ExpandEnv(settings.Database.DSN)
	if isSqlite(settings.Database.Driver) && dsn != "" && dsn != ":memory:" &&
		!strings.HasPrefix(dsn, "file:") && !filepath.IsAbs(dsn) {
		dsn = filepath.Join(root, dsn)
	}
	settings.Database.DSN = dsn
	return settings, nil
}

func isSqlite(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}
