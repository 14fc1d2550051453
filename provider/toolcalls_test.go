package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/telemetry"
)

func TestExtractToolCalls_NativeToolUsePart(t *testing.T) {
	msg := chat.Message{
		Role: chat.RoleAssistant,
		Content: []chat.ContentPart{
			chat.ToolUsePart{ID: "call_1", Name: "lookup", Input: map[string]any{"q": "weather"}},
		},
	}
	calls := ExtractToolCalls(msg, "anthropic", telemetry.NewNoopLogger())
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.Equal(t, "weather", calls[0].Parameters["q"])
	assert.Equal(t, "anthropic", calls[0].Metadata["providerId"])
}

func TestExtractToolCalls_OpenAIStyleMetadata(t *testing.T) {
	msg := chat.Message{
		Role:     chat.RoleAssistant,
		Metadata: map[string]string{"tool_calls": `[{"id":"call_2","function":{"name":"search","arguments":"{\"query\":\"go\"}"}}]`},
	}
	calls := ExtractToolCalls(msg, "openai", telemetry.NewNoopLogger())
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, "go", calls[0].Parameters["query"])
}

func TestExtractToolCalls_MalformedArgumentsSkippedNotErrored(t *testing.T) {
	msg := chat.Message{
		Metadata: map[string]string{"tool_calls": `[{"id":"call_3","function":{"name":"search","arguments":"not-json"}}]`},
	}
	calls := ExtractToolCalls(msg, "openai", telemetry.NewNoopLogger())
	assert.Empty(t, calls)
}

func TestExtractToolCalls_NoToolCallsPresent(t *testing.T) {
	msg := chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "hi"}}}
	calls := ExtractToolCalls(msg, "openai", telemetry.NewNoopLogger())
	assert.Empty(t, calls)
}
