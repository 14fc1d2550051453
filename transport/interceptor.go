package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/telemetry"
)

type (
	// InterceptorContext is threaded through the interceptor chain. Each
	// interceptor may mutate only its return value; the chain threads the
	// latest context forward.
	InterceptorContext struct {
		Request       *HTTPRequest
		AttemptNumber int
		CorrelationID string
		StartedAt     time.Time
		Custom        map[string]any
	}

	// RequestInterceptor runs before the HTTP call.
	RequestInterceptor func(ctx context.Context, ic InterceptorContext) (InterceptorContext, error)

	// ResponseInterceptor runs after the HTTP call, in registration order.
	ResponseInterceptor func(ctx context.Context, ic InterceptorContext, resp *HTTPResponse) (*HTTPResponse, error)

	// Chain is an ordered pair of interceptor sequences applied around one
	// Transport call.
	Chain struct {
		request  []RequestInterceptor
		response []ResponseInterceptor
	}

	// Pipeline composes a Transport with a Chain: it builds the
	// InterceptorContext, runs request interceptors, invokes the transport,
	// then runs response interceptors.
	Pipeline struct {
		Transport Transport
		Chain     *Chain

		// Tracer is optional; nil defaults to a no-op at the point of use.
		Tracer telemetry.Tracer
	}
)

// NewChain constructs an empty interceptor chain.
func NewChain() *Chain { return &Chain{} }

// Use appends a request interceptor, run in registration order.
func (c *Chain) Use(ri RequestInterceptor) *Chain {
	c.request = append(c.request, ri)
	return c
}

// UseResponse appends a response interceptor, run in registration order.
func (c *Chain) UseResponse(ri ResponseInterceptor) *Chain {
	c.response = append(c.response, ri)
	return c
}

// NewPipeline constructs a Pipeline. When chain is nil, an empty Chain is
// used (the pipeline becomes a pass-through over Transport).
func NewPipeline(t Transport, chain *Chain) *Pipeline {
	if chain == nil {
		chain = NewChain()
	}
	return &Pipeline{Transport: t, Chain: chain}
}

// Fetch threads req through the chain's request interceptors, invokes the
// transport, then threads the response through the chain's response
// interceptors.
//
// A failing interceptor raises an *chat.Error of KindInterceptor identifying
// {Direction, Index, Phase, cause}; later interceptors in the same direction
// are skipped. A request-side failure never reaches the HTTP call; a
// response-side failure is raised after the HTTP call has already completed.
func (p *Pipeline) Fetch(ctx context.Context, cancel chat.CancellationHandle, req HTTPRequest, attempt int) (*HTTPResponse, error) {
	tracer := p.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	ctx, span := tracer.Start(ctx, "transport.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("burnside.http.method", req.Method),
			attribute.Int("burnside.retry.attempt", attempt),
		))
	defer span.End()

	ic := InterceptorContext{
		Request:       &req,
		AttemptNumber: attempt,
		CorrelationID: uuid.NewString(),
		StartedAt:     time.Now(),
		Custom:        map[string]any{},
	}

	for i, ri := range p.Chain.request {
		next, err := ri(ctx, ic)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request interceptor failed")
			return nil, interceptorError(chat.DirectionRequest, i, err)
		}
		ic = next
	}

	resp, err := p.Transport.Fetch(ctx, cancel, *ic.Request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport fetch failed")
		return nil, err
	}

	for i, ri := range p.Chain.response {
		next, rerr := ri(ctx, ic, resp)
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "response interceptor failed")
			return nil, interceptorError(chat.DirectionResponse, i, rerr)
		}
		resp = next
	}
	span.SetStatus(codes.Ok, "ok")
	return resp, nil
}

func interceptorError(direction chat.InterceptorDirection, index int, cause error) *chat.Error {
	phase := chat.PhaseExecution
	if ce, ok := chat.As(cause); ok && ce.Kind == chat.KindValidation {
		phase = chat.PhaseValidation
	}
	e := chat.Wrap(chat.KindInterceptor, "transport: interceptor failed", cause)
	e.Direction = direction
	e.Index = index
	e.Phase = phase
	return e
}
