// Package chat defines the provider-agnostic chat data model shared by every
// component of the client: messages and content parts, requests and
// responses, streaming deltas, model/plugin metadata, and termination
// signals. Provider plugins translate to and from these shapes; callers never
// see vendor wire formats.
package chat

import (
	"context"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is implemented by every concrete message content block. It is a
// closed tagged union: callers type-switch on the concrete type rather than
// inspecting a free-form "type" string.
type ContentPart interface {
	isContentPart()
}

type (
	// TextPart is plain text content. Text must be non-empty and not entirely
	// whitespace.
	TextPart struct {
		Text string
	}

	// ImagePart carries base64-encoded image bytes.
	ImagePart struct {
		Data     string
		MimeType string
		Alt      string
	}

	// DocumentPart carries base64-encoded document bytes.
	DocumentPart struct {
		Data     string
		MimeType string
		Name     string
	}

	// CodePart is a fenced code block. Text must be non-empty.
	CodePart struct {
		Text     string
		Language string
		Filename string
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries the outcome of a tool invocation back to the
	// model.
	ToolResultPart struct {
		CallID  string
		Success bool
		Output  any
		Error   *ToolResultError
	}

	// ThinkingPart carries provider-issued reasoning content. Not every
	// provider emits it; callers that do not understand it may ignore it.
	ThinkingPart struct {
		Text      string
		Signature string
	}

	// ToolResultError describes a failed tool invocation.
	ToolResultError struct {
		Code    string
		Message string
	}
)

func (TextPart) isContentPart()       {}
func (ImagePart) isContentPart()      {}
func (DocumentPart) isContentPart()   {}
func (CodePart) isContentPart()       {}
func (ToolUsePart) isContentPart()    {}
func (ToolResultPart) isContentPart() {}
func (ThinkingPart) isContentPart()   {}

// Supported image MIME types.
const (
	MimeImageJPEG = "image/jpeg"
	MimeImagePNG  = "image/png"
	MimeImageGIF  = "image/gif"
	MimeImageWebP = "image/webp"
	MimeImageSVG  = "image/svg+xml"
)

// Message is a single chat message: an ordered sequence of content parts
// attributed to a Role, plus optional caller metadata.
//
// Invariant: every assistant Message with ToolUsePart content must be
// followed, in the conversation surfaced to the caller, by tool-result
// message(s) whose CallIDs cover every ToolUsePart.ID.
type Message struct {
	Role     Role
	Content  []ContentPart
	Metadata map[string]string
}

// ToolDefinition describes a tool exposed to the model.
type ToolDefinition struct {
	Name         string
	Description  string
	InputSchema  any
	OutputSchema any
	Hints        map[string]any
	Metadata     map[string]any
}

// ToolChoiceMode controls how a request steers tool use.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice configures optional tool-use behavior for a Request.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// MultiTurnOptions configures the agent loop driving a multi-turn
// conversation. Zero values are replaced by DefaultMultiTurnOptions.
type MultiTurnOptions struct {
	MaxIterations      int
	Timeout            time.Duration
	IterationTimeout   time.Duration
}

// DefaultMultiTurnOptions returns the default bounds: 10 iterations, a 10
// minute overall timeout, and a 60 second per-iteration timeout.
func DefaultMultiTurnOptions() MultiTurnOptions {
	return MultiTurnOptions{
		MaxIterations:    10,
		Timeout:          10 * time.Minute,
		IterationTimeout: 60 * time.Second,
	}
}

// ChatRequest captures one call into the client.
type ChatRequest struct {
	// Model is a qualified "provider:modelName" identifier.
	Model string
	// Messages is the ordered transcript.
	Messages []Message

	Temperature       *float64
	MaxTokens         *int
	TopP              *float64
	FrequencyPenalty  *float64
	PresencePenalty   *float64

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	Stream    bool
	MultiTurn *MultiTurnOptions

	// Signal is an optional caller-supplied cancellation source, independent
	// of the context.Context passed to Client.Chat/Client.Stream. Either one
	// firing cancels the call (see §5 of the design).
	Signal context.Context

	// ProviderConfig selects a named configuration under the resolved
	// provider (see registry routing). Empty means "default".
	ProviderConfig string

	Options map[string]any
}

// Usage reports token consumption for a call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      *int
}

// StreamDelta is one increment of a streamed response.
type StreamDelta struct {
	// ID is the stable response identifier for this stream.
	ID string
	// Delta carries only the incremental content parts produced by this
	// chunk; the terminal delta carries no content.
	Delta Message
	// Finished is true exactly once per stream, on the terminal delta.
	Finished bool
	Usage    *Usage
	// Metadata carries finishReason, eventType, and provider-raw termination
	// detail.
	Metadata map[string]any
}

// Capabilities describes what a model supports.
type Capabilities struct {
	Temperature      bool
	Streaming        bool
	Tools            bool
	MaxContextTokens int
	SupportsImages   bool
}

// ModelMetadata carries routing metadata for a ModelInfo.
type ModelMetadata struct {
	// ProviderPlugin is the canonical plugin string (e.g.
	// "openai-responses-v1") mapped to a (id, version) registry key.
	ProviderPlugin string
}

// ModelInfo describes one catalog entry.
type ModelInfo struct {
	ID           string
	Provider     string
	Capabilities Capabilities
	Metadata     ModelMetadata
}

// ProviderPluginInfo identifies one registered plugin version.
type ProviderPluginInfo struct {
	ID           string
	Version      string
	RegisteredAt time.Time
}

// TerminationReason is the unified vocabulary every plugin maps its
// vendor-specific finish reason into.
type TerminationReason string

const (
	ReasonNaturalCompletion TerminationReason = "natural_completion"
	ReasonTokenLimitReached TerminationReason = "token_limit_reached"
	ReasonContentFiltered   TerminationReason = "content_filtered"
	ReasonToolUseRequired   TerminationReason = "tool_use_required"
	ReasonCancelled         TerminationReason = "cancelled"
	ReasonMaxIterations     TerminationReason = "max_iterations"
	ReasonTimeout           TerminationReason = "timeout"
	ReasonUnknown           TerminationReason = "unknown"
)

// Confidence grades how sure detectTermination is about a mapping.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// UnifiedTerminationSignal is the normalized verdict returned by a plugin's
// DetectTermination.
type UnifiedTerminationSignal struct {
	ShouldTerminate bool
	Source          string
	RawValue        string
	Reason          TerminationReason
	Confidence      Confidence
	Message         string
	Metadata        map[string]any
}

// CancellationHandle is satisfied by context.Context; it exists as a named
// type so call sites documenting "a cancellation source" read clearly.
type CancellationHandle interface {
	Done() <-chan struct{}
	Err() error
}
