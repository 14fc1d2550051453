package xai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
)

func TestXAI_IdentityAndBaseURL(t *testing.T) {
	p := New(Options{DefaultModel: "grok-2-1212"})
	assert.Equal(t, "xai", p.ID())
	assert.Equal(t, "v1", p.Version())

	require.NoError(t, p.Initialize(context.Background(), map[string]any{"apiKey": "xai-test"}))
	httpReq, err := p.TranslateRequest(chat.ChatRequest{Model: "xai:grok-2-1212"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.x.ai/v1/responses", httpReq.URL)
}
