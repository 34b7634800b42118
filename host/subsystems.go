package host

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/im7mortal/kmutex"

	"github.com/GoCodeAlone/siteinstaller"
)

// Subsystem backend names, selected through conf.
const (
	BackendMemory = "memory"
	BackendAlias  = "alias"
)

const defaultCacheSize = 512

// Cache stores derived data between rebuilds.
type Cache interface {
	Get(cid string) (any, bool)
	Set(cid string, data any)
	Clear(cid string)
	Flush()
}

// NullCache never stores anything.
type NullCache struct{}

func (NullCache) Get(string) (any, bool) { return nil, false }
func (NullCache) Set(string, any)        {}
func (NullCache) Clear(string)           {}
func (NullCache) Flush()                 {}

// MemoryCache is a bounded in-process LRU cache.
type MemoryCache struct {
	entries *lru.Cache
}

// NewMemoryCache creates a cache holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &MemoryCache{entries: entries}, nil
}

func (c *MemoryCache) Get(cid string) (any, bool) { return c.entries.Get(cid) }
func (c *MemoryCache) Set(cid string, data any)   { c.entries.Add(cid, data) }
func (c *MemoryCache) Clear(cid string)           { c.entries.Remove(cid) }
func (c *MemoryCache) Flush()                     { c.entries.Purge() }

// Lock serializes rebuilds of shared data by name.
type Lock interface {
	Acquire(name string)
	Release(name string)
}

// NullLock never blocks.
type NullLock struct{}

func (NullLock) Acquire(string) {}
func (NullLock) Release(string) {}

// MemoryLock is an in-process keyed mutex.
type MemoryLock struct {
	km *kmutex.Kmutex
}

// NewMemoryLock creates a keyed mutex.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{km: kmutex.New()}
}

func (l *MemoryLock) Acquire(name string) { l.km.Lock(name) }
func (l *MemoryLock) Release(name string) { l.km.Unlock(name) }

// PathRewriter maps internal paths to public aliases.
type PathRewriter interface {
	Alias(path string) string
}

// NullPathRewriter returns paths unchanged.
type NullPathRewriter struct{}

func (NullPathRewriter) Alias(path string) string { return path }

// AliasPathRewriter looks paths up in a fixed alias table.
type AliasPathRewriter struct {
	aliases map[string]string
}

// NewAliasPathRewriter builds a rewriter from a conf value mapping internal
// paths to aliases.
func NewAliasPathRewriter(raw any) *AliasPathRewriter {
	aliases := make(map[string]string)
	if m, ok := raw.(map[string]any); ok {
		for path, alias := range m {
			if s, ok := alias.(string); ok {
				aliases[strings.Trim(path, "/")] = s
			}
		}
	}
	return &AliasPathRewriter{aliases: aliases}
}

func (r *AliasPathRewriter) Alias(path string) string {
	if alias, ok := r.aliases[strings.Trim(path, "/")]; ok {
		return alias
	}
	return path
}

func newCache(backend string, size int) (Cache, error) {
	switch backend {
	case siteinstaller.NullBackend:
		return NullCache{}, nil
	case "", BackendMemory:
		return NewMemoryCache(size)
	default:
		return nil, fmt.Errorf("%w: cache %q", ErrUnknownBackend, backend)
	}
}

func newLock(backend string) (Lock, error) {
	switch backend {
	case siteinstaller.NullBackend:
		return NullLock{}, nil
	case "", BackendMemory:
		return NewMemoryLock(), nil
	default:
		return nil, fmt.Errorf("%w: lock %q", ErrUnknownBackend, backend)
	}
}

func newPathRewriter(backend string, aliases any) (PathRewriter, error) {
	switch backend {
	case siteinstaller.NullBackend:
		return NullPathRewriter{}, nil
	case "", BackendAlias:
		return NewAliasPathRewriter(aliases), nil
	default:
		return nil, fmt.Errorf("%w: path %q", ErrUnknownBackend, backend)
	}
}
