// Package provider defines the provider plugin contract (C5) shared by every
// vendor adapter (openai, anthropic, gemini, xai); the registry that holds
// them lives in package registry. Plugins translate between the provider-agnostic chat package and one
// vendor's wire protocol; they hold no back-reference to the registry or
// client façade (see SPEC_FULL.md's design notes on cyclic references).
package provider

import (
	"context"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/transport"
)

// StreamIterator yields StreamDelta values lazily. Next returns (delta,
// false, err) for each element and (_, true, nil) once exhausted. It is not
// restartable.
type StreamIterator interface {
	Next(ctx context.Context) (delta chat.StreamDelta, done bool, err error)
}

// ParsedResponse is the result of ParseResponse: exactly one of Message or
// Stream is set, selected by the streaming argument passed in.
type ParsedResponse struct {
	Message *chat.Message
	Stream  StreamIterator
	Usage   *chat.Usage
}

// Plugin is the capability-bundle contract every vendor adapter implements.
// initialize is idempotent per instance; the client façade memoizes it per
// (id, version) so a plugin method never has to guard against re-init races
// beyond its own idempotence.
type Plugin interface {
	// ID and Version identify this plugin's registry key.
	ID() string
	Version() string

	// Initialize validates config against the plugin's schema. It must be
	// safe to call more than once with the same config.
	Initialize(ctx context.Context, config map[string]any) error

	// SupportsModel reports whether the unqualified model id is one this
	// plugin can serve.
	SupportsModel(id string) bool

	// TranslateRequest is deterministic: given the same req and
	// capabilities it always produces the same HTTPRequest. When
	// capabilities.Temperature is false, temperature is omitted from the
	// vendor body regardless of req.Temperature.
	TranslateRequest(req chat.ChatRequest, capabilities *chat.Capabilities) (transport.HTTPRequest, error)

	// ParseResponse interprets httpResp. When streaming is true, resp.Stream
	// is populated and resp.Message is nil; otherwise the reverse.
	ParseResponse(ctx context.Context, httpResp *transport.HTTPResponse, streaming bool) (ParsedResponse, error)

	// NormalizeError maps a transport/HTTP failure to the shared taxonomy.
	NormalizeError(err error, httpResp *transport.HTTPResponse) *chat.Error

	// DetectTermination inspects a final message or stream delta's metadata
	// and returns the unified signal.
	DetectTermination(deltaOrFinal any) chat.UnifiedTerminationSignal
}

// Info snapshots identity for registry listings.
type Info struct {
	ID      string
	Version string
}
