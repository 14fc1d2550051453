package registry

import (
	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/internal/catalog"
)

// CatalogEntry is the decoded shape of one model-catalog record, whether
// sourced from the embedded builtin catalog or a caller-supplied {data: …}
// seed.
type CatalogEntry struct {
	Provider     string
	ID           string
	Plugin       string
	Capabilities chat.Capabilities
}

func (e CatalogEntry) validate() error {
	if e.Provider == "" || e.ID == "" || e.Plugin == "" {
		return chat.New(chat.KindValidation, "registry: catalog entry requires provider, id, and plugin")
	}
	return nil
}

func (e CatalogEntry) toModelInfo() chat.ModelInfo {
	return chat.ModelInfo{
		ID:           e.ID,
		Provider:     e.Provider,
		Capabilities: e.Capabilities,
		Metadata:     chat.ModelMetadata{ProviderPlugin: e.Plugin},
	}
}

func loadBuiltinCatalog() ([]CatalogEntry, error) {
	raw, err := catalog.Load()
	if err != nil {
		return nil, chat.Wrap(chat.KindValidation, "registry: load builtin catalog", err)
	}
	out := make([]CatalogEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, CatalogEntry{
			Provider: e.Provider,
			ID:       e.ID,
			Plugin:   e.Plugin,
			Capabilities: chat.Capabilities{
				Temperature:      e.Capabilities.Temperature,
				Streaming:        e.Capabilities.Streaming,
				Tools:            e.Capabilities.Tools,
				MaxContextTokens: e.Capabilities.MaxContextTokens,
				SupportsImages:   e.Capabilities.SupportsImages,
			},
		})
	}
	return out, nil
}
