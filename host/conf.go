package host

import (
	"maps"
	"strings"
	"sync"
)

// Conf layers configuration values. Lookups consult overrides first, then
// drop anything under a masked prefix, then fall back to the settings file.
type Conf struct {
	mu        sync.RWMutex
	base      map[string]any
	overrides map[string]any
	masked    []string
}

// NewConf creates an empty Conf.
func NewConf() *Conf {
	return &Conf{
		base:      make(map[string]any),
		overrides: make(map[string]any),
	}
}

// Load replaces the settings layer. Overrides and masks survive.
func (c *Conf) Load(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = maps.Clone(values)
	if c.base == nil {
		c.base = make(map[string]any)
	}
}

// Override pins name to value.
func (c *Conf) Override(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[name] = value
}

// Mask hides every settings value whose name starts with prefix.
func (c *Conf) Mask(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masked = append(c.masked, prefix)
}

// Get returns the effective value of name.
func (c *Conf) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.overrides[name]; ok {
		return v, true
	}
	if c.isMasked(name) {
		return nil, false
	}
	v, ok := c.base[name]
	return v, ok
}

// String returns name as a string, or def when unset or not a string.
func (c *Conf) String(name, def string) string {
	if v, ok := c.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// All returns every effective value.
func (c *Conf) All() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.base)+len(c.overrides))
	for name, v := range c.base {
		if !c.isMasked(name) {
			out[name] = v
		}
	}
	maps.Copy(out, c.overrides)
	return out
}

func (c *Conf) isMasked(name string) bool {
	for _, prefix := range c.masked {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
