package registry

import (
	"strings"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
)

// pluginKeyMap canonically maps a provider-plugin string (as carried in
// ModelMetadata.ProviderPlugin) to its (id, version) registry key, per
// §4.5's "Provider plugin strings map canonically to registry keys" table.
var pluginKeyMap = map[string]providerKey{
	"openai-responses-v1": {id: "openai", version: "responses-v1"},
	"anthropic-2023-06-01": {id: "anthropic", version: "2023-06-01"},
	"google-gemini-v1":     {id: "google", version: "gemini-v1"},
	"xai-v1":               {id: "xai", version: "v1"},
}

// Route is the resolved outcome of routing a ChatRequest.Model.
type Route struct {
	Model          chat.ModelInfo
	Plugin         provider.Plugin
	ProviderID     string
	ProviderVersion string
}

// ProviderConfigs maps a provider id to its named configuration objects
// (default key "default"), satisfying §4.6 step 5's "multi-named configs"
// requirement.
type ProviderConfigs map[string]map[string]map[string]any

// Resolve implements §4.6's six-step routing algorithm against qualifiedID
// (a "provider:modelId" string). It does not call Initialize; callers
// (the client façade) are responsible for the idempotent per-(id,version)
// initialization step against the resolved config.
func Resolve(models *ModelRegistry, providers *ProviderRegistry, configs ProviderConfigs, qualifiedID, providerConfig string) (Route, map[string]any, error) {
	providerID, _, ok := SplitQualified(qualifiedID)
	if !ok {
		return Route{}, nil, chat.New(chat.KindValidation, "registry: model id must be qualified as provider:modelId")
	}
	_ = providerID

	info, ok := models.Get(qualifiedID)
	if !ok {
		e := chat.New(chat.KindBridge, "registry: model not registered: "+qualifiedID)
		e.Code = chat.CodeModelNotRegistered
		return Route{}, nil, e
	}

	pluginString := info.Metadata.ProviderPlugin
	if pluginString == "" {
		e := chat.New(chat.KindBridge, "registry: model has no providerPlugin mapping")
		e.Code = chat.CodeProviderPluginUnmapped
		return Route{}, nil, e
	}
	key, ok := pluginKeyMap[pluginString]
	if !ok {
		e := chat.New(chat.KindBridge, "registry: unmapped provider plugin string: "+pluginString)
		e.Code = chat.CodeProviderPluginUnmapped
		return Route{}, nil, e
	}

	plugin, ok := providers.Get(key.id, key.version)
	if !ok {
		e := chat.New(chat.KindBridge, "registry: provider not registered: "+key.id+"/"+key.version)
		e.Code = chat.CodeProviderNotRegistered
		return Route{}, nil, e
	}

	configName := providerConfig
	if configName == "" {
		configName = "default"
	}
	named, ok := configs[key.id]
	if !ok {
		e := chat.New(chat.KindBridge, "registry: no provider config for "+key.id)
		e.Code = chat.CodeProviderConfigMissing
		return Route{}, nil, e
	}
	cfg, ok := named[configName]
	if !ok {
		e := chat.New(chat.KindBridge, "registry: no provider config named "+configName+" for "+key.id)
		e.Code = chat.CodeProviderConfigMissing
		return Route{}, nil, e
	}

	return Route{Model: info, Plugin: plugin, ProviderID: key.id, ProviderVersion: key.version}, cfg, nil
}

// RequireQualified is a standalone guard for callers that only need step 1.
func RequireQualified(id string) error {
	if !strings.Contains(id, ":") {
		return chat.New(chat.KindValidation, "registry: model id must be qualified as provider:modelId")
	}
	return nil
}
