package siteinstaller

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/golobby/cast"
	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
)

// Config is the installer configuration. Values come from an optional YAML
// file, then SITEINSTALL_* environment variables, then `default` tags.
type Config struct {
	// Root is the platform root directory.
	Root string `yaml:"root" env:"SITEINSTALL_ROOT" default:"." required:"true"`

	// EntryPoint and BootstrapInclude identify a platform root, relative to Root.
	EntryPoint       string `yaml:"entry_point" env:"SITEINSTALL_ENTRY_POINT" default:"platform.toml"`
	BootstrapInclude string `yaml:"bootstrap_include" env:"SITEINSTALL_BOOTSTRAP_INCLUDE" default:"core/bootstrap.toml"`

	// SettingsFile holds the database connection and conf variables, relative to Root.
	SettingsFile string `yaml:"settings_file" env:"SITEINSTALL_SETTINGS_FILE" default:"sites/default/settings.yaml"`

	// ModuleDirs are scanned for module manifests, relative to Root.
	ModuleDirs []string `yaml:"module_dirs" default:"modules,sites/all/modules"`

	// ProfileDir holds one directory per install profile, relative to Root.
	ProfileDir string `yaml:"profile_dir" env:"SITEINSTALL_PROFILE_DIR" default:"profiles"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"SITEINSTALL_LOG_LEVEL" default:"info"`
}

// LoadConfig builds a Config from path (may be empty) and the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	builder := config.New()
	if path != "" {
		builder.AddFeeder(feeder.Yaml{Path: path})
	}
	builder.AddFeeder(feeder.Env{})
	if err := builder.AddStruct(cfg).Feed(); err != nil {
		return nil, fmt.Errorf("config feed error: %w", err)
	}

	if err := ProcessConfigDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and the log level.
func (c *Config) Validate() error {
	if err := ValidateConfigRequired(c); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// RootLayout returns the files identifying the configured platform root.
func (c *Config) RootLayout() RootLayout {
	return RootLayout{
		EntryPoint:       filepath.FromSlash(c.EntryPoint),
		BootstrapInclude: filepath.FromSlash(c.BootstrapInclude),
	}
}

// ProcessConfigDefaults sets every zero field carrying a `default` tag.
// Slices take a comma separated list.
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		defaultVal, ok := fieldType.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			continue
		}
		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

func setDefaultValue(field reflect.Value, defaultVal string) error {
	if field.Kind() == reflect.Slice {
		parts := strings.Split(defaultVal, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			elem, err := cast.FromType(strings.TrimSpace(part), field.Type().Elem())
			if err != nil {
				return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, err)
			}
			slice = reflect.Append(slice, reflect.ValueOf(elem).Convert(field.Type().Elem()))
		}
		field.Set(slice)
		return nil
	}

	value, err := cast.FromType(defaultVal, field.Type())
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, err)
	}
	field.Set(reflect.ValueOf(value).Convert(field.Type()))
	return nil
}

// ValidateConfigRequired checks that every `required:"true"` field is set.
func ValidateConfigRequired(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}

	var missing []string
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if fieldType.Tag.Get(tagRequired) == "true" && v.Field(i).IsZero() {
			missing = append(missing, fieldType.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredField, strings.Join(missing, ", "))
	}
	return nil
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}
