package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
)

func TestMessage_RequiresRole(t *testing.T) {
	err := Message(chat.Message{Content: []chat.ContentPart{chat.TextPart{Text: "hi"}}})
	assert.Error(t, err)
}

func TestContentPart_Variants(t *testing.T) {
	assert.NoError(t, ContentPart(chat.TextPart{Text: "hi"}))
	assert.Error(t, ContentPart(chat.TextPart{Text: "  "}))
	assert.Error(t, ContentPart(chat.ImagePart{}))
	assert.NoError(t, ContentPart(chat.ImagePart{Data: "abc", MimeType: "image/png"}))
	assert.Error(t, ContentPart(chat.ToolUsePart{}))
	assert.NoError(t, ContentPart(chat.ToolUsePart{ID: "1", Name: "lookup"}))
	assert.Error(t, ContentPart(chat.ToolResultPart{}))
}

func TestSchema_RejectsInvalidSchema(t *testing.T) {
	assert.Error(t, Schema(map[string]any{"type": "not-a-real-type"}))
	assert.NoError(t, Schema(map[string]any{"type": "object"}))
}

func TestTimeout_Range(t *testing.T) {
	assert.Error(t, Timeout(999))
	assert.NoError(t, Timeout(1000))
	assert.NoError(t, Timeout(300000))
	assert.Error(t, Timeout(300001))
}

// S6: MCP configuration validation.
func TestMCPServers_Validation(t *testing.T) {
	require.NoError(t, MCPServers([]MCPServerConfig{
		{Name: "fs", Command: "mcp-fs"},
		{Name: "web", URL: "https://example.com/mcp"},
	}))

	assert.Error(t, MCPServers([]MCPServerConfig{{Name: "dup", Command: "a"}, {Name: "dup", Command: "b"}}))
	assert.Error(t, MCPServers([]MCPServerConfig{{Name: "both", URL: "https://x", Command: "y"}}))
	assert.Error(t, MCPServers([]MCPServerConfig{{Name: "neither"}}))
	assert.Error(t, MCPServers([]MCPServerConfig{{Name: "bad-scheme", URL: "ftp://x"}}))
	assert.Error(t, MCPServers([]MCPServerConfig{{Name: ""}}))
}

func TestDefaultProvider_Membership(t *testing.T) {
	providers := map[string]any{"openai": true}
	assert.NoError(t, DefaultProvider("", providers))
	assert.NoError(t, DefaultProvider("openai", providers))
	assert.Error(t, DefaultProvider("anthropic", providers))
}
