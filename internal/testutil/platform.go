// Package testutil builds throwaway platform roots for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Platform is a platform root in a temporary directory.
type Platform struct {
	Root string
	t    *testing.T
}

// NewPlatform writes a complete platform root: entry point, bootstrap
// include, sqlite settings, the foundation modules, node, filter, block,
// dblog and a "minimal" profile requiring block and dblog.
func NewPlatform(t *testing.T) *Platform {
	t.Helper()
	p := &Platform{Root: t.TempDir(), t: t}

	p.WriteFile("platform.toml", "name = \"test platform\"\n")
	p.WriteFile("core/bootstrap.toml", "version = \"7.59\"\n")
	p.WriteFile("sites/default/settings.yaml", `database:
  driver: sqlite
  dsn: sites/default/files/site.db
conf:
  site_name: Test site
  cache_backends: [memcache]
  cache_default_class: memcache
`)
	p.Mkdir("sites/default/files")

	p.AddModule("system", "name: system\nrequired: true\n", "updates: [7001, 7078]\n")
	p.AddModule("user", "name: user\nrequired: true\nfiles: [user.go]\ntheme: [user_picture]\n", "updates: [7001, 7018]\n")
	p.AddModule("filter", "name: filter\nrequired: true\n", `schema:
  - name: filter_format
    columns:
      - {name: format, type: varchar, length: 255, not_null: true}
      - {name: name, type: varchar, length: 255, not_null: true}
    primary_key: [format]
updates: [7000, 7010]
`)
	p.AddModule("node", "name: node\nrequired: true\ndependencies: [filter]\nfiles: [node.go]\ntheme: [node, node_links]\n", `schema:
  - name: node
    columns:
      - {name: nid, type: serial}
      - {name: title, type: varchar, length: 255, not_null: true}
    primary_key: [nid]
updates: [7000, 7015]
last_removed_update: 7020
variables:
  node_admin_theme: true
`)
	p.AddModule("block", "name: block\ndependencies: [system]\ntheme: [block]\n", `schema:
  - name: block
    columns:
      - {name: bid, type: serial}
      - {name: module, type: varchar, length: 64, not_null: true}
    primary_key: [bid]
`)
	p.AddModule("dblog", "name: dblog\n", "")
	p.AddProfile("minimal", "name: minimal\ndependencies: [block, dblog]\n")
	return p
}

// Path returns the absolute path of rel inside the root.
func (p *Platform) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Mkdir creates rel and its parents.
func (p *Platform) Mkdir(rel string) {
	p.t.Helper()
	if err := os.MkdirAll(p.Path(rel), 0o755); err != nil {
		p.t.Fatalf("mkdir %s: %v", rel, err)
	}
}

// WriteFile writes content to rel, creating parent directories.
func (p *Platform) WriteFile(rel, content string) {
	p.t.Helper()
	path := p.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.t.Fatalf("mkdir %s: %v", filepath.Dir(rel), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		p.t.Fatalf("write %s: %v", rel, err)
	}
}

// Remove deletes rel.
func (p *Platform) Remove(rel string) {
	p.t.Helper()
	if err := os.RemoveAll(p.Path(rel)); err != nil {
		p.t.Fatalf("remove %s: %v", rel, err)
	}
}

// AddModule writes modules/<name>/ with its info manifest and, when install
// is not empty, its install manifest.
func (p *Platform) AddModule(name, info, install string) {
	p.t.Helper()
	p.WriteFile("modules/"+name+"/"+name+".info.yaml", info)
	if install != "" {
		p.WriteFile("modules/"+name+"/"+name+".install.yaml", install)
	}
}

// AddProfile writes profiles/<name>/ with its info manifest and installer
// script.
func (p *Platform) AddProfile(name, info string) {
	p.t.Helper()
	p.WriteFile("profiles/"+name+"/"+name+".info.yaml", info)
	p.WriteFile("profiles/"+name+"/"+name+".profile.yaml", "{}\n")
}
