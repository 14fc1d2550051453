// Package xai implements the xAI v1 provider plugin (C5). Per §4.5's
// per-vendor request shaping, xAI v1 is OpenAI-Responses-shaped, so this
// plugin is a thin identity/base-URL wrapper over provider/openai rather
// than a parallel wire implementation.
package xai

import "github.com/langadventurellc/burnside/provider/openai"

// Options configures the plugin's defaults.
type Options struct {
	DefaultModel string
}

// New constructs the xAI v1 plugin.
func New(opts Options) *openai.Plugin {
	return openai.NewCompatible(openai.Options{DefaultModel: opts.DefaultModel}, "xai", "v1", "https://api.x.ai/v1")
}
