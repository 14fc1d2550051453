package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/telemetry"
	"github.com/langadventurellc/burnside/tools"
)

// Deps bundles the collaborators the loop drives per iteration. Send issues
// one request/response round trip (translate, transport fetch via the
// retry-wrapped pipeline, parse) and returns the assistant message plus the
// plugin's termination signal for it.
//
// Log, Metrics, and Tracer are optional; nil defaults to a no-op at the
// point of use.
type Deps struct {
	Plugin  provider.Plugin
	Router  *tools.Router
	Send    func(ctx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error)
	Cancel  chat.CancellationHandle

	Log     telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Run drives messages through the state machine in §4.8 until termination,
// returning the final assistant message and the reason it stopped.
func Run(ctx context.Context, deps Deps, messages []chat.Message, opts chat.MultiTurnOptions) (chat.Message, chat.TerminationReason, error) {
	if deps.Log == nil {
		deps.Log = telemetry.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewNoopMetrics()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewNoopTracer()
	}

	mgr := NewManager(opts)
	mgr.Start()

	var overallTimer *time.Timer
	if opts.Timeout > 0 {
		overallTimer = time.AfterFunc(opts.Timeout, mgr.MarkTimeout)
		defer overallTimer.Stop()
	}

	var last chat.Message
	iterNum := 0
	for {
		if deps.Cancel != nil && deps.Cancel.Err() != nil {
			mgr.MarkCancelled()
		}
		if !mgr.CanContinue() {
			reason := mgr.DetermineTerminationReason(chat.ReasonMaxIterations)
			mgr.Terminate(reason)
			return last, reason, nil
		}
		if err := mgr.StartIteration(); err != nil {
			return last, chat.ReasonUnknown, err
		}
		iterNum++

		iterCtx, span := deps.Tracer.Start(ctx, "agent.iteration",
			trace.WithAttributes(attribute.Int("burnside.agent.iteration", iterNum)))
		var iterCancel context.CancelFunc
		if opts.IterationTimeout > 0 {
			iterCtx, iterCancel = context.WithTimeout(iterCtx, opts.IterationTimeout)
		}
		iterStart := time.Now()
		msg, signal, err := deps.Send(iterCtx, messages)
		if iterCancel != nil {
			iterCancel()
		}
		_ = mgr.CompleteIteration(time.Since(iterStart))
		if err != nil {
			if iterCtx.Err() == context.DeadlineExceeded {
				mgr.MarkTimeout()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "iteration failed")
			span.End()
			deps.Log.Error(ctx, "agent: iteration failed", "iteration", iterNum, "err", err)
			return last, mgr.DetermineTerminationReason(chat.ReasonUnknown), err
		}
		span.SetStatus(codes.Ok, "ok")
		span.End()
		last = msg
		messages = append(messages, msg)

		if deps.Cancel != nil && deps.Cancel.Err() != nil {
			mgr.MarkCancelled()
			reason := mgr.DetermineTerminationReason(chat.ReasonCancelled)
			mgr.Terminate(reason)
			return last, reason, nil
		}

		if signal.Reason != chat.ReasonToolUseRequired || deps.Router == nil {
			reason := mgr.DetermineTerminationReason(signal.Reason)
			mgr.Terminate(reason)
			return last, reason, nil
		}

		mgr.EnterToolDispatch()
		calls := provider.ExtractToolCalls(msg, deps.Plugin.ID(), deps.Log)
		resultMessages := dispatchTools(ctx, deps, calls)
		messages = append(messages, resultMessages...)
	}
}

func dispatchTools(ctx context.Context, deps Deps, calls []provider.ExtractedToolCall) []chat.Message {
	results := make([]tools.Result, len(calls))
	done := make(chan struct{}, len(calls))
	for i, c := range calls {
		i, c := i, c
		go func() {
			defer func() { done <- struct{}{} }()
			results[i] = deps.Router.Execute(ctx, tools.ToolCall{ID: c.ID, Name: c.Name, Parameters: c.Parameters},
				tools.ExecutionContext{Cancel: deps.Cancel, CallID: c.ID})
			deps.Metrics.IncCounter("burnside.agent.tool_dispatch", 1, "tool", c.Name)
		}()
	}
	for range calls {
		<-done
	}

	// Results are appended in original tool-call order regardless of
	// completion order, per §5's ordering guarantee.
	out := make([]chat.Message, 0, len(results))
	for _, r := range results {
		part := chat.ToolResultPart{CallID: r.CallID, Success: r.Success, Output: r.Output, Error: r.Error}
		out = append(out, chat.Message{Role: chat.RoleTool, Content: []chat.ContentPart{part}})
	}
	return out
}
