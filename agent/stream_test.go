package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/tools"
)

type fakeStream struct {
	deltas []chat.StreamDelta
	i      int
}

func (s *fakeStream) Next(ctx context.Context) (chat.StreamDelta, bool, error) {
	if s.i >= len(s.deltas) {
		return chat.StreamDelta{}, true, nil
	}
	d := s.deltas[s.i]
	s.i++
	return d, false, nil
}

type toolUsePlugin struct{ fakePlugin }

func (p toolUsePlugin) DetectTermination(v any) chat.UnifiedTerminationSignal {
	return chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonToolUseRequired}
}

func TestInterruptibleStream_PassThroughWithoutRouter(t *testing.T) {
	inner := &fakeStream{deltas: []chat.StreamDelta{
		{Delta: chat.Message{Content: []chat.ContentPart{chat.TextPart{Text: "hi"}}}},
		{Finished: true},
	}}
	s := NewInterruptibleStream(StreamDeps{}, inner)

	d1, eof, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, "hi", d1.Delta.Content[0].(chat.TextPart).Text)

	d2, eof, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, eof)
	assert.True(t, d2.Finished)

	_, eof, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, eof)
}

func TestInterruptibleStream_SynthesizesToolDeltasOnToolUseRequired(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("lookup", chat.ToolDefinition{
		Name:        "lookup",
		InputSchema: map[string]any{"type": "object"},
	}, func(tools.ExecutionContext, map[string]any) (any, error) { return "ok", nil }))
	router := tools.NewRouter(reg, tools.DefaultRouterConfig())

	inner := &fakeStream{deltas: []chat.StreamDelta{
		{Delta: chat.Message{Content: []chat.ContentPart{chat.ToolUsePart{ID: "c1", Name: "lookup", Input: map[string]any{}}}}},
		{Finished: true},
	}}
	metrics := &spyMetrics{}
	s := NewInterruptibleStream(StreamDeps{Plugin: toolUsePlugin{fakePlugin{id: "fake"}}, Router: router, Metrics: metrics}, inner)

	_, eof, err := s.Next(context.Background())
	require.NoError(t, err)
	require.False(t, eof)

	toolDelta, eof, err := s.Next(context.Background())
	require.NoError(t, err)
	require.False(t, eof)
	require.Len(t, toolDelta.Delta.Content, 1)
	result, ok := toolDelta.Delta.Content[0].(chat.ToolResultPart)
	require.True(t, ok)
	assert.True(t, result.Success)

	final, eof, err := s.Next(context.Background())
	require.NoError(t, err)
	require.False(t, eof)
	assert.True(t, final.Finished)

	_, eof, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, eof)

	assert.Equal(t, []string{"burnside.agent.tool_dispatch"}, metrics.counters)
}
