package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/telemetry"
	"github.com/langadventurellc/burnside/tools"
	"github.com/langadventurellc/burnside/transport"
)

type spyTracer struct{ names []string }

func (s *spyTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	s.names = append(s.names, name)
	return ctx, spySpan{}
}
func (s *spyTracer) Span(ctx context.Context) telemetry.Span { return spySpan{} }

type spySpan struct{}

func (spySpan) End(...trace.SpanEndOption)            {}
func (spySpan) AddEvent(string, ...any)                {}
func (spySpan) SetStatus(codes.Code, string)           {}
func (spySpan) RecordError(error, ...trace.EventOption) {}

type spyMetrics struct{ counters []string }

func (m *spyMetrics) IncCounter(name string, _ float64, _ ...string) { m.counters = append(m.counters, name) }
func (m *spyMetrics) RecordTimer(string, time.Duration, ...string)   {}
func (m *spyMetrics) RecordGauge(string, float64, ...string)         {}

type fakePlugin struct{ id string }

func (p fakePlugin) ID() string      { return p.id }
func (p fakePlugin) Version() string { return "v1" }
func (p fakePlugin) Initialize(context.Context, map[string]any) error { return nil }
func (p fakePlugin) SupportsModel(string) bool                        { return true }
func (p fakePlugin) TranslateRequest(chat.ChatRequest, *chat.Capabilities) (transport.HTTPRequest, error) {
	return transport.HTTPRequest{}, nil
}
func (p fakePlugin) ParseResponse(context.Context, *transport.HTTPResponse, bool) (provider.ParsedResponse, error) {
	return provider.ParsedResponse{}, nil
}
func (p fakePlugin) NormalizeError(err error, _ *transport.HTTPResponse) *chat.Error {
	return chat.Wrap(chat.KindProvider, "x", err)
}
func (p fakePlugin) DetectTermination(any) chat.UnifiedTerminationSignal {
	return chat.UnifiedTerminationSignal{}
}

func TestRun_NaturalCompletionSingleIteration(t *testing.T) {
	send := func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		return chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "done"}}},
			chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonNaturalCompletion}, nil
	}
	final, reason, err := Run(context.Background(), Deps{Send: send}, nil, chat.MultiTurnOptions{MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, chat.ReasonNaturalCompletion, reason)
	assert.Equal(t, "done", final.Content[0].(chat.TextPart).Text)
}

func TestRun_ToolDispatchThenCompletion(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("lookup", chat.ToolDefinition{
		Name:        "lookup",
		InputSchema: map[string]any{"type": "object"},
	}, func(tools.ExecutionContext, map[string]any) (any, error) { return "result", nil }))
	router := tools.NewRouter(reg, tools.DefaultRouterConfig())

	calls := 0
	send := func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		calls++
		if calls == 1 {
			return chat.Message{
					Role:    chat.RoleAssistant,
					Content: []chat.ContentPart{chat.ToolUsePart{ID: "c1", Name: "lookup", Input: map[string]any{}}},
				}, chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonToolUseRequired}, nil
		}
		return chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "final"}}},
			chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonNaturalCompletion}, nil
	}

	final, reason, err := Run(context.Background(), Deps{Plugin: fakePlugin{id: "fake"}, Router: router, Send: send}, nil, chat.MultiTurnOptions{MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, chat.ReasonNaturalCompletion, reason)
	assert.Equal(t, "final", final.Content[0].(chat.TextPart).Text)
}

func TestRun_EmitsIterationSpansAndToolDispatchCounters(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("lookup", chat.ToolDefinition{
		Name:        "lookup",
		InputSchema: map[string]any{"type": "object"},
	}, func(tools.ExecutionContext, map[string]any) (any, error) { return "result", nil }))
	router := tools.NewRouter(reg, tools.DefaultRouterConfig())

	calls := 0
	send := func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		calls++
		if calls == 1 {
			return chat.Message{
					Role:    chat.RoleAssistant,
					Content: []chat.ContentPart{chat.ToolUsePart{ID: "c1", Name: "lookup", Input: map[string]any{}}},
				}, chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonToolUseRequired}, nil
		}
		return chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "final"}}},
			chat.UnifiedTerminationSignal{ShouldTerminate: true, Reason: chat.ReasonNaturalCompletion}, nil
	}

	tracer := &spyTracer{}
	metrics := &spyMetrics{}
	deps := Deps{Plugin: fakePlugin{id: "fake"}, Router: router, Send: send, Tracer: tracer, Metrics: metrics}
	_, reason, err := Run(context.Background(), deps, nil, chat.MultiTurnOptions{MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, chat.ReasonNaturalCompletion, reason)
	assert.Equal(t, []string{"agent.iteration", "agent.iteration"}, tracer.names)
	assert.Equal(t, []string{"burnside.agent.tool_dispatch"}, metrics.counters)
}

func TestRun_MaxIterationsReached(t *testing.T) {
	send := func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		return chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: "partial"}}},
			chat.UnifiedTerminationSignal{ShouldTerminate: false, Reason: chat.ReasonToolUseRequired}, nil
	}
	router := tools.NewRouter(tools.NewRegistry(), tools.DefaultRouterConfig())
	deps := Deps{Plugin: fakePlugin{id: "fake"}, Router: router, Send: send}
	_, reason, err := Run(context.Background(), deps, nil, chat.MultiTurnOptions{MaxIterations: 2})
	require.NoError(t, err)
	assert.Equal(t, chat.ReasonMaxIterations, reason)
}

func TestRun_OverallTimeout(t *testing.T) {
	send := func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		time.Sleep(20 * time.Millisecond)
		return chat.Message{Role: chat.RoleAssistant}, chat.UnifiedTerminationSignal{Reason: chat.ReasonToolUseRequired}, nil
	}
	_, reason, err := Run(context.Background(), Deps{Send: send}, nil, chat.MultiTurnOptions{MaxIterations: 100, Timeout: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, chat.ReasonTimeout, reason)
}
