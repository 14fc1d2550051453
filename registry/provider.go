// Package registry implements the provider and model registries (C6): an
// in-memory provider-plugin map keyed by (id, version), a model catalog
// keyed by qualified "provider:modelId", and the routing algorithm tying a
// ChatRequest.Model to a registered plugin instance. Registries are
// populated during setup and treated as read-mostly during requests (§5):
// a request holds only read access; register*/unregister require the
// write lock.
package registry

import (
	"sync"
	"time"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
)

type providerKey struct {
	id      string
	version string
}

type providerEntry struct {
	plugin       provider.Plugin
	registeredAt time.Time
	order        int
}

// ProviderRegistry holds registered provider plugins keyed by (id, version).
type ProviderRegistry struct {
	mu      sync.RWMutex
	entries map[providerKey]*providerEntry
	nextOrd int
	log     func(msg string, keyvals ...any)
}

// NewProviderRegistry constructs an empty registry. onWarn, if non-nil, is
// called when a registration overwrites an existing (id, version) key.
func NewProviderRegistry(onWarn func(msg string, keyvals ...any)) *ProviderRegistry {
	return &ProviderRegistry{entries: make(map[providerKey]*providerEntry), log: onWarn}
}

// validate enforces the §4.5 contract surface at registration time; Plugin
// being a statically typed interface means the Go compiler already enforces
// method presence, but Register still rejects a nil plugin or blank
// identity.
func (r *ProviderRegistry) validate(p provider.Plugin) error {
	if p == nil {
		return chat.New(chat.KindValidation, "registry: plugin is required")
	}
	if p.ID() == "" || p.Version() == "" {
		return chat.New(chat.KindValidation, "registry: plugin must expose a non-empty id and version")
	}
	return nil
}

// Register validates and stores p, overwriting (with a warning) any
// existing entry under the same (id, version).
func (r *ProviderRegistry) Register(p provider.Plugin) error {
	if err := r.validate(p); err != nil {
		return err
	}
	key := providerKey{id: p.ID(), version: p.Version()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists && r.log != nil {
		r.log("registry: overwriting provider plugin", "id", key.id, "version", key.version)
	}
	r.nextOrd++
	r.entries[key] = &providerEntry{plugin: p, registeredAt: time.Now(), order: r.nextOrd}
	return nil
}

// Unregister removes one version, or every version of id when version is
// empty.
func (r *ProviderRegistry) Unregister(id, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version != "" {
		delete(r.entries, providerKey{id: id, version: version})
		return
	}
	for k := range r.entries {
		if k.id == id {
			delete(r.entries, k)
		}
	}
}

// Get returns the plugin registered under (id, version).
func (r *ProviderRegistry) Get(id, version string) (provider.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[providerKey{id: id, version: version}]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// GetLatest returns the plugin registered for id with the highest
// registration order (i.e. the most recently registered version).
func (r *ProviderRegistry) GetLatest(id string) (provider.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *providerEntry
	for k, e := range r.entries {
		if k.id != id {
			continue
		}
		if best == nil || e.order > best.order {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.plugin, true
}

// Has reports whether id (optionally qualified by version) is registered.
func (r *ProviderRegistry) Has(id, version string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version != "" {
		_, ok := r.entries[providerKey{id: id, version: version}]
		return ok
	}
	for k := range r.entries {
		if k.id == id {
			return true
		}
	}
	return false
}

// ProviderListing describes one registered plugin for List.
type ProviderListing struct {
	ID           string
	Version      string
	RegisteredAt time.Time
}

// List enumerates registered plugins, optionally filtered to one id.
func (r *ProviderRegistry) List(id string) []ProviderListing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderListing, 0, len(r.entries))
	for k, e := range r.entries {
		if id != "" && k.id != id {
			continue
		}
		out = append(out, ProviderListing{ID: k.id, Version: k.version, RegisteredAt: e.registeredAt})
	}
	return out
}
