package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/transport"
)

type stubPlugin struct{ id, version string }

func (s *stubPlugin) ID() string      { return s.id }
func (s *stubPlugin) Version() string { return s.version }
func (s *stubPlugin) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (s *stubPlugin) SupportsModel(id string) bool                               { return true }
func (s *stubPlugin) TranslateRequest(req chat.ChatRequest, capabilities *chat.Capabilities) (transport.HTTPRequest, error) {
	return transport.HTTPRequest{}, nil
}
func (s *stubPlugin) ParseResponse(ctx context.Context, httpResp *transport.HTTPResponse, streaming bool) (provider.ParsedResponse, error) {
	return provider.ParsedResponse{}, nil
}
func (s *stubPlugin) NormalizeError(err error, httpResp *transport.HTTPResponse) *chat.Error {
	return chat.Wrap(chat.KindProvider, "x", err)
}
func (s *stubPlugin) DetectTermination(deltaOrFinal any) chat.UnifiedTerminationSignal {
	return chat.UnifiedTerminationSignal{}
}

func TestResolve_RejectsUnqualifiedModel(t *testing.T) {
	models := NewModelRegistry()
	providers := NewProviderRegistry(nil)
	_, _, err := Resolve(models, providers, nil, "gpt-4o", "")
	require.Error(t, err)
}

func TestResolve_FullHappyPath(t *testing.T) {
	models := NewModelRegistry()
	providers := NewProviderRegistry(nil)
	require.NoError(t, models.Register(chat.ModelInfo{
		ID: "gpt-4o", Provider: "openai",
		Metadata: chat.ModelMetadata{ProviderPlugin: "openai-responses-v1"},
	}))
	require.NoError(t, providers.Register(&stubPlugin{id: "openai", version: "responses-v1"}))

	configs := ProviderConfigs{"openai": {"default": {"apiKey": "k"}}}
	route, cfg, err := Resolve(models, providers, configs, "openai:gpt-4o", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", route.ProviderID)
	assert.Equal(t, "k", cfg["apiKey"])
}

func TestResolve_ModelNotRegistered(t *testing.T) {
	models := NewModelRegistry()
	providers := NewProviderRegistry(nil)
	_, _, err := Resolve(models, providers, nil, "openai:missing", "")
	require.Error(t, err)
	ce, ok := chat.As(err)
	require.True(t, ok)
	assert.Equal(t, chat.CodeModelNotRegistered, ce.Code)
}

func TestProviderRegistry_GetLatestByRegistrationOrder(t *testing.T) {
	r := NewProviderRegistry(nil)
	require.NoError(t, r.Register(&stubPlugin{id: "openai", version: "v1"}))
	require.NoError(t, r.Register(&stubPlugin{id: "openai", version: "v2"}))
	latest, ok := r.GetLatest("openai")
	require.True(t, ok)
	assert.Equal(t, "v2", latest.Version())
}
