package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry types.
const (
	TypeModule  = "module"
	TypeProfile = "profile"
)

// Entry is a manifest found on disk.
type Entry struct {
	Name string
	Type string
	// Filename is the info manifest path relative to the root, slash separated.
	Filename string
	// Dir is the absolute directory holding the manifest.
	Dir  string
	Info *Info
}

// InstallPath returns the path of the entry's install manifest.
func (e *Entry) InstallPath() string {
	return filepath.Join(e.Dir, e.Name+InstallSuffix)
}

// ScriptPath returns the path of the entry's profile installer script.
func (e *Entry) ScriptPath() string {
	return filepath.Join(e.Dir, e.Name+ProfileSuffix)
}

// Scan finds every module manifest under dirs, relative to root. A module
// found in a later directory overrides one of the same name found earlier.
// Missing directories are skipped.
func Scan(root string, dirs []string) (map[string]*Entry, error) {
	found := make(map[string]*Entry)
	for _, dir := range dirs {
		base := filepath.Join(root, filepath.FromSlash(dir))
		if st, err := os.Stat(base); err != nil || !st.IsDir() {
			continue
		}
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), InfoSuffix) {
				return nil
			}
			entry, err := loadEntry(root, path, TypeModule)
			if err != nil {
				return err
			}
			found[entry.Name] = entry
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}
	return found, nil
}

// LoadProfile reads the profile called name under profileDir. It returns
// fs.ErrNotExist when either the info manifest or the installer script is
// missing.
func LoadProfile(root, profileDir, name string) (*Entry, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: bad profile name %q", ErrInvalidManifest, name)
	}
	dir := filepath.Join(root, filepath.FromSlash(profileDir), name)
	infoPath := filepath.Join(dir, name+InfoSuffix)
	for _, path := range []string{infoPath, filepath.Join(dir, name+ProfileSuffix)} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return loadEntry(root, infoPath, TypeProfile)
}

func loadEntry(root, path, typ string) (*Entry, error) {
	name := strings.TrimSuffix(filepath.Base(path), InfoSuffix)
	info, err := ParseInfo(path, name)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return &Entry{
		Name:     name,
		Type:     typ,
		Filename: filepath.ToSlash(rel),
		Dir:      filepath.Dir(path),
		Info:     info,
	}, nil
}

// Names returns the sorted names of entries.
func Names(entries map[string]*Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
