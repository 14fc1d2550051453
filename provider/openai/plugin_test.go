package openai

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/transport"
)

func newInitializedPlugin(t *testing.T) *Plugin {
	t.Helper()
	p := New(Options{DefaultModel: "gpt-4o"})
	require.NoError(t, p.Initialize(context.Background(), map[string]any{"apiKey": "sk-test"}))
	return p
}

// S1: natural completion, non-streaming.
func TestOpenAI_ParseResponse_NaturalCompletion(t *testing.T) {
	p := newInitializedPlugin(t)
	body := `{"id":"resp_1","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hello there"}]}],"usage":{"input_tokens":10,"output_tokens":4,"total_tokens":14},"status":"completed"}`
	resp := &transport.HTTPResponse{Status: 200, Body: io.NopCloser(strings.NewReader(body))}

	parsed, err := p.ParseResponse(context.Background(), resp, false)
	require.NoError(t, err)
	require.NotNil(t, parsed.Message)
	require.Len(t, parsed.Message.Content, 1)
	text, ok := parsed.Message.Content[0].(chat.TextPart)
	require.True(t, ok)
	assert.Equal(t, "hello there", text.Text)
	require.NotNil(t, parsed.Usage.TotalTokens)
	assert.Equal(t, 14, *parsed.Usage.TotalTokens)

	signal := p.DetectTermination(*parsed.Message)
	assert.True(t, signal.ShouldTerminate)
	assert.Equal(t, chat.ReasonNaturalCompletion, signal.Reason)
}

func TestOpenAI_TranslateRequest_BuildsResponsesEndpoint(t *testing.T) {
	p := newInitializedPlugin(t)
	req := chat.ChatRequest{
		Model: "openai:gpt-4o",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: []chat.ContentPart{chat.TextPart{Text: "hi"}}},
		},
	}
	httpReq, err := p.TranslateRequest(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/responses", httpReq.URL)
	assert.Equal(t, "Bearer sk-test", httpReq.Headers["Authorization"])
	body := httpReq.Body.([]byte)
	assert.Contains(t, string(body), `"model":"gpt-4o"`)
}

func TestOpenAI_NormalizeError_MapsStatusToKind(t *testing.T) {
	p := newInitializedPlugin(t)
	resp := &transport.HTTPResponse{Status: 429, Body: io.NopCloser(strings.NewReader(`{"error":{"message":"rate limited","code":"rate_limit"}}`))}
	err := p.NormalizeError(nil, resp)
	assert.Equal(t, chat.KindRateLimit, err.Kind)
	assert.True(t, err.Retryable)
}

func TestOpenAI_DetectTermination_ToolCalls(t *testing.T) {
	p := newInitializedPlugin(t)
	delta := chat.StreamDelta{Finished: true, Metadata: map[string]any{"finishReason": "tool_calls"}}
	signal := p.DetectTermination(delta)
	assert.Equal(t, chat.ReasonToolUseRequired, signal.Reason)
	assert.Equal(t, chat.ConfidenceHigh, signal.Confidence)
}

func TestOpenAI_Initialize_RequiresAPIKey(t *testing.T) {
	p := New(Options{})
	err := p.Initialize(context.Background(), map[string]any{})
	assert.Error(t, err)
}
