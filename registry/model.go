package registry

import (
	"strings"
	"sync"

	"github.com/langadventurellc/burnside/chat"
)

// ModelRegistry holds ModelInfo keyed by qualified "provider:modelId".
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]chat.ModelInfo
}

// NewModelRegistry constructs an empty registry. Seed with Register or
// SeedBuiltin/SeedData per the client's modelSeed configuration.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[string]chat.ModelInfo)}
}

// Register stores info under "provider:id".
func (m *ModelRegistry) Register(info chat.ModelInfo) error {
	if info.Provider == "" || info.ID == "" {
		return chat.New(chat.KindValidation, "registry: model provider and id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[qualify(info.Provider, info.ID)] = info
	return nil
}

// Get looks up a qualified "provider:modelId" identifier.
func (m *ModelRegistry) Get(qualifiedID string) (chat.ModelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.models[qualifiedID]
	return info, ok
}

// List enumerates registered models, optionally filtered to one provider.
func (m *ModelRegistry) List(provider string) []chat.ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.ModelInfo, 0, len(m.models))
	for _, info := range m.models {
		if provider != "" && info.Provider != provider {
			continue
		}
		out = append(out, info)
	}
	return out
}

// SeedBuiltin loads the embedded model catalog (modelSeed="builtin").
func (m *ModelRegistry) SeedBuiltin() error {
	entries, err := loadBuiltinCatalog()
	if err != nil {
		return err
	}
	return m.seedEntries(entries)
}

// SeedData loads a caller-supplied catalog (modelSeed={data: ...}). A
// path-based seed is deliberately unsupported by the core; data must
// already be decoded.
func (m *ModelRegistry) SeedData(data []CatalogEntry) error {
	return m.seedEntries(data)
}

func (m *ModelRegistry) seedEntries(entries []CatalogEntry) error {
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
		if err := m.Register(e.toModelInfo()); err != nil {
			return err
		}
	}
	return nil
}

func qualify(provider, modelID string) string {
	return provider + ":" + modelID
}

// SplitQualified splits a qualified model id into its provider and model
// segments. ok is false when id does not contain ':'.
func SplitQualified(id string) (providerID, modelID string, ok bool) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}
