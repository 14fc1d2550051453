package gemini

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
	p := New(Options{DefaultModel: "gemini-2.0-flash"})
	require.NoError(t, p.Initialize(context.Background(), map[string]any{"apiKey": "goog-test"}))
	return p
}

func TestGemini_TranslateRequest_MapsAssistantRoleToModel(t *testing.T) {
	p := newInitializedPlugin(t)
	req := chat.ChatRequest{
		Model: "google:gemini-2.0-flash",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: []chat.ContentPart{chat.TextPart{Text: "hi"}}},
			{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "hello"}}},
		},
	}
	httpReq, err := p.TranslateRequest(req, nil)
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL, ":generateContent")
	body := string(httpReq.Body.([]byte))
	assert.Contains(t, body, `"role":"model"`)
}

func TestGemini_TranslateRequest_StreamingEndpoint(t *testing.T) {
	p := newInitializedPlugin(t)
	req := chat.ChatRequest{Model: "google:gemini-2.0-flash", Stream: true}
	httpReq, err := p.TranslateRequest(req, nil)
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL, ":streamGenerateContent")
}

// Gemini STOP + functionCall part maps to tool_use_required per the
// provider's termination table.
func TestGemini_DetectTermination_StopWithFunctionCallIsToolUse(t *testing.T) {
	p := newInitializedPlugin(t)
	body := `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`
	resp := &transport.HTTPResponse{Status: 200, Body: io.NopCloser(strings.NewReader(body))}
	parsed, err := p.ParseResponse(context.Background(), resp, false)
	require.NoError(t, err)

	signal := p.DetectTermination(*parsed.Message)
	assert.Equal(t, chat.ReasonToolUseRequired, signal.Reason)
	assert.Equal(t, chat.ConfidenceHigh, signal.Confidence)
}

func TestGemini_DetectTermination_PlainStopIsNaturalCompletion(t *testing.T) {
	p := newInitializedPlugin(t)
	body := `{"candidates":[{"content":{"parts":[{"text":"done"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`
	resp := &transport.HTTPResponse{Status: 200, Body: io.NopCloser(strings.NewReader(body))}
	parsed, err := p.ParseResponse(context.Background(), resp, false)
	require.NoError(t, err)

	signal := p.DetectTermination(*parsed.Message)
	assert.Equal(t, chat.ReasonNaturalCompletion, signal.Reason)
}

func TestGemini_NormalizeError_ResourceExhausted(t *testing.T) {
	p := newInitializedPlugin(t)
	resp := &transport.HTTPResponse{Status: 429, Body: io.NopCloser(strings.NewReader(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota"}}`))}
	err := p.NormalizeError(nil, resp)
	assert.Equal(t, chat.KindRateLimit, err.Kind)
	assert.True(t, err.Retryable)
}
