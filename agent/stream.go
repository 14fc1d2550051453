package agent

import (
	"context"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/telemetry"
	"github.com/langadventurellc/burnside/tools"
)

// StreamDeps bundles the collaborators InterruptibleStream needs to
// synthesize follow-up deltas once tool_use_required is detected.
//
// Log and Metrics are optional; nil defaults to a no-op at the point of use.
type StreamDeps struct {
	Plugin  provider.Plugin
	Router  *tools.Router
	Cancel  chat.CancellationHandle
	Log     telemetry.Logger
	Metrics telemetry.Metrics
}

// InterruptibleStream wraps an underlying delta sequence, per §4.8's
// "streaming interruption": it detects tool_use_required without draining
// the remainder of the underlying stream, then synthesizes tool-result
// deltas. It is a pure transform over the underlying iterator.
type InterruptibleStream struct {
	deps     StreamDeps
	inner    provider.StreamIterator
	pending  []chat.StreamDelta
	assembly chat.Message
	done     bool
}

// NewInterruptibleStream constructs the wrapper. When deps.Router is nil,
// the wrapper degenerates to a pass-through over inner.
func NewInterruptibleStream(deps StreamDeps, inner provider.StreamIterator) *InterruptibleStream {
	if deps.Log == nil {
		deps.Log = telemetry.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewNoopMetrics()
	}
	return &InterruptibleStream{deps: deps, inner: inner}
}

// Next yields the next delta, transparently interleaving tool execution
// when the underlying stream's terminal delta signals tool_use_required.
func (s *InterruptibleStream) Next(ctx context.Context) (chat.StreamDelta, bool, error) {
	if len(s.pending) > 0 {
		d := s.pending[0]
		s.pending = s.pending[1:]
		return d, false, nil
	}
	if s.done {
		return chat.StreamDelta{}, true, nil
	}

	delta, eof, err := s.inner.Next(ctx)
	if err != nil || eof {
		s.done = true
		return delta, eof, err
	}

	s.assembly.Content = append(s.assembly.Content, delta.Delta.Content...)

	if !delta.Finished || s.deps.Router == nil {
		return delta, false, nil
	}

	signal := s.deps.Plugin.DetectTermination(delta)
	if signal.Reason != chat.ReasonToolUseRequired {
		s.done = true
		return delta, false, nil
	}

	s.assembly.Role = chat.RoleAssistant
	calls := provider.ExtractToolCalls(s.assembly, s.deps.Plugin.ID(), s.deps.Log)
	s.pending = synthesizeToolDeltas(ctx, s.deps, calls)
	s.done = true

	if len(s.pending) == 0 {
		return delta, false, nil
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, false, nil
}

func synthesizeToolDeltas(ctx context.Context, deps StreamDeps, calls []provider.ExtractedToolCall) []chat.StreamDelta {
	out := make([]chat.StreamDelta, 0, len(calls)+1)
	for _, c := range calls {
		res := deps.Router.Execute(ctx, tools.ToolCall{ID: c.ID, Name: c.Name, Parameters: c.Parameters},
			tools.ExecutionContext{Cancel: deps.Cancel, CallID: c.ID})
		deps.Metrics.IncCounter("burnside.agent.tool_dispatch", 1, "tool", c.Name)
		part := chat.ToolResultPart{CallID: res.CallID, Success: res.Success, Output: res.Output, Error: res.Error}
		out = append(out, chat.StreamDelta{
			Delta: chat.Message{Role: chat.RoleTool, Content: []chat.ContentPart{part}},
		})
	}
	out = append(out, chat.StreamDelta{Finished: true, Metadata: map[string]any{"finishReason": "tool_use_required"}})
	return out
}
