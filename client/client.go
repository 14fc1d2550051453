// Package client implements the client façade (C9): the single entry point
// wiring registries, the transport pipeline, retry policy, and the agent
// loop into chat/stream calls, with memoized per-(id,version) plugin
// initialization and the timeout policy described in §4.9.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/langadventurellc/burnside/agent"
	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/registry"
	"github.com/langadventurellc/burnside/retry"
	"github.com/langadventurellc/burnside/telemetry"
	"github.com/langadventurellc/burnside/tools"
	"github.com/langadventurellc/burnside/transport"
)

// Client is the façade described in §4.9. Construct via New.
type Client struct {
	cfg Config

	providers *registry.ProviderRegistry
	models    *registry.ModelRegistry
	toolReg   *tools.Registry
	toolRtr   *tools.Router

	pipeline *transport.Pipeline
	retry    retry.Policy

	log     telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	limiters   map[string]*rate.Limiter
	limiterMu  sync.Mutex

	mu                   sync.Mutex
	initializedProviders map[string]bool
}

// New constructs a Client from cfg, validating it and seeding the model
// registry per cfg.ModelSeed.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:                  cfg,
		providers:            registry.NewProviderRegistry(nil),
		models:               registry.NewModelRegistry(),
		toolReg:              tools.NewRegistry(),
		log:                  telemetry.NewNoopLogger(),
		metrics:              telemetry.NewNoopMetrics(),
		tracer:               telemetry.NewNoopTracer(),
		initializedProviders: make(map[string]bool),
	}
	c.retry = cfg.RetryPolicy
	if c.retry.IsZero() {
		c.retry = retry.DefaultPolicy()
	}

	for _, o := range opts {
		o(c)
	}

	c.providers = registry.NewProviderRegistry(func(msg string, kv ...any) {
		c.log.Warn(context.Background(), msg, kv...)
	})

	routerCfg := tools.DefaultRouterConfig()
	if cfg.Tools.Enabled {
		routerCfg = tools.RouterConfig{
			ExecutionTimeout:   time.Duration(cfg.Tools.ExecutionTimeoutMs) * time.Millisecond,
			MaxConcurrentTools: cfg.Tools.MaxConcurrentTools,
		}
	}
	c.toolRtr = tools.NewRouter(c.toolReg, routerCfg)

	if c.pipeline == nil {
		c.pipeline = transport.NewPipeline(transport.NewTransport(nil), transport.NewChain())
	}
	if c.pipeline.Tracer == nil {
		c.pipeline.Tracer = c.tracer
	}

	if cfg.RateLimitPolicy.Enabled {
		c.limiters = make(map[string]*rate.Limiter)
	}

	switch cfg.ModelSeed {
	case ModelSeedBuiltin:
		if err := c.models.SeedBuiltin(); err != nil {
			return nil, err
		}
	case ModelSeedData:
		if err := c.models.SeedData(cfg.ModelSeedData); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Option customizes a Client beyond its Config.
type Option func(*Client)

// WithLogger overrides the noop default logger.
func WithLogger(l telemetry.Logger) Option { return func(c *Client) { c.log = l } }

// WithMetrics overrides the noop default metrics sink.
func WithMetrics(m telemetry.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithTracer overrides the noop default tracer.
func WithTracer(t telemetry.Tracer) Option { return func(c *Client) { c.tracer = t } }

// WithPipeline overrides the default net/http-backed transport pipeline,
// e.g. to inject interceptors (redaction, auth) via transport.NewChain.
func WithPipeline(p *transport.Pipeline) Option { return func(c *Client) { c.pipeline = p } }

// RegisterProvider registers a provider plugin.
func (c *Client) RegisterProvider(p provider.Plugin) error {
	return c.providers.Register(p)
}

// RegisterTool registers a tool definition and handler.
func (c *Client) RegisterTool(name string, def chat.ToolDefinition, handler tools.Handler) error {
	if !c.cfg.Tools.Enabled {
		e := chat.New(chat.KindBridge, "client: tools are not enabled")
		e.Code = chat.CodeToolsNotEnabled
		return e
	}
	return c.toolReg.Register(name, def, handler)
}

// ListAvailableProviders enumerates registered provider plugins.
func (c *Client) ListAvailableProviders() []registry.ProviderListing {
	return c.providers.List("")
}

// ListAvailableModels enumerates the model catalog, optionally filtered to
// one provider.
func (c *Client) ListAvailableModels(provider string) []chat.ModelInfo {
	return c.models.List(provider)
}

// GetModelCapabilities looks up a qualified model id's capabilities.
func (c *Client) GetModelCapabilities(qualifiedID string) (chat.Capabilities, error) {
	info, ok := c.models.Get(qualifiedID)
	if !ok {
		e := chat.New(chat.KindBridge, "client: model not registered: "+qualifiedID)
		e.Code = chat.CodeModelNotRegistered
		return chat.Capabilities{}, e
	}
	return info.Capabilities, nil
}

// GetConfig returns a read-only snapshot of the client's configuration.
func (c *Client) GetConfig() Config { return c.cfg }

// ensureInitialized idempotently initializes the plugin for (id, version)
// with the resolved config, memoizing under initializedProviders per §5's
// "double-initialize is observable and forbidden" guarantee.
func (c *Client) ensureInitialized(ctx context.Context, route registry.Route, cfg map[string]any) error {
	key := route.ProviderID + "/" + route.ProviderVersion
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initializedProviders[key] {
		return nil
	}
	if err := route.Plugin.Initialize(ctx, cfg); err != nil {
		return err
	}
	c.initializedProviders[key] = true
	return nil
}

// resolve performs §4.6's routing algorithm and the per-call timeout/
// cancellation setup from §4.9, returning a context whose cancellation is
// the disjunction of the internal timer and req.Signal, plus a cleanup func
// the caller must always invoke.
func (c *Client) resolve(ctx context.Context, req chat.ChatRequest) (registry.Route, map[string]any, context.Context, func(), error) {
	if err := registry.RequireQualified(req.Model); err != nil {
		return registry.Route{}, nil, nil, func() {}, err
	}
	route, cfg, err := registry.Resolve(c.models, c.providers, registry.ProviderConfigs(c.cfg.Providers), req.Model, req.ProviderConfig)
	if err != nil {
		return registry.Route{}, nil, nil, func() {}, err
	}
	if err := c.ensureInitialized(ctx, route, cfg); err != nil {
		return registry.Route{}, nil, nil, func() {}, err
	}

	timeout := c.cfg.EffectiveTimeout()
	if v, ok := cfg["timeout"].(float64); ok && v > 0 {
		timeout = time.Duration(v) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	if req.Signal != nil {
		callCtx = combineSignal(callCtx, req.Signal)
	}
	return route, cfg, callCtx, cancel, nil
}

func combineSignal(ctx context.Context, signal context.Context) context.Context {
	out, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-signal.Done():
			cancel()
		case <-out.Done():
		}
	}()
	return out
}

// Chat implements §4.9's chat(request) -> Message.
func (c *Client) Chat(ctx context.Context, req chat.ChatRequest) (chat.Message, error) {
	ctx, span := c.tracer.Start(ctx, "client.chat",
		trace.WithAttributes(attribute.String("burnside.model", req.Model)))
	defer span.End()

	route, _, callCtx, cancel, err := c.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return chat.Message{}, err
	}
	defer cancel()

	send := func(sendCtx context.Context, messages []chat.Message) (chat.Message, chat.UnifiedTerminationSignal, error) {
		r2 := req
		r2.Messages = messages
		r2.Stream = false
		msg, err := c.roundTrip(sendCtx, route, r2)
		if err != nil {
			if sendCtx.Err() != nil {
				e := chat.Wrap(chat.KindCancelled, "client: chat cancelled", sendCtx.Err())
				e.Phase = chat.PhaseExecution
				return chat.Message{}, chat.UnifiedTerminationSignal{}, e
			}
			return chat.Message{}, chat.UnifiedTerminationSignal{}, err
		}
		signal := route.Plugin.DetectTermination(msg)
		return msg, signal, nil
	}

	if req.MultiTurn == nil {
		msg, _, err := send(callCtx, req.Messages)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
			return msg, err
		}
		span.SetStatus(codes.Ok, "ok")
		return msg, nil
	}

	deps := agent.Deps{
		Plugin: route.Plugin, Router: c.routerFor(req), Send: send, Cancel: callCtx,
		Log: c.log, Metrics: c.metrics, Tracer: c.tracer,
	}
	msg, _, err := agent.Run(callCtx, deps, req.Messages, *req.MultiTurn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return msg, err
	}
	span.SetStatus(codes.Ok, "ok")
	return msg, nil
}

func (c *Client) routerFor(req chat.ChatRequest) *tools.Router {
	if len(req.Tools) == 0 || !c.cfg.Tools.Enabled {
		return nil
	}
	return c.toolRtr
}

// limiterFor resolves the rate.Limiter for cfg.RateLimitPolicy.Scope,
// creating it lazily keyed to the scope's granularity: global shares one
// limiter tree-wide, provider partitions by route.ProviderID, provider:model
// additionally partitions by the qualified model id, and
// provider:model:key additionally partitions by the named provider config
// (the credential selector, the closest proxy to "key" available at this
// call site) from req.ProviderConfig.
func (c *Client) limiterFor(route registry.Route, req chat.ChatRequest) *rate.Limiter {
	if c.limiters == nil {
		return nil
	}
	key := "global"
	switch c.cfg.RateLimitPolicy.Scope {
	case RateLimitScopeProvider:
		key = route.ProviderID
	case RateLimitScopeProviderModel:
		key = route.ProviderID + "/" + req.Model
	case RateLimitScopeProviderModelKey:
		key = route.ProviderID + "/" + req.Model + "/" + req.ProviderConfig
	}

	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	if l, ok := c.limiters[key]; ok {
		return l
	}
	burst := c.cfg.RateLimitPolicy.Burst
	if burst <= 0 {
		burst = int(c.cfg.RateLimitPolicy.MaxRps * 2)
	}
	l := rate.NewLimiter(rate.Limit(c.cfg.RateLimitPolicy.MaxRps), burst)
	c.limiters[key] = l
	return l
}

func (c *Client) roundTrip(ctx context.Context, route registry.Route, req chat.ChatRequest) (msg chat.Message, err error) {
	ctx, span := c.tracer.Start(ctx, "client.round_trip",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("burnside.provider", route.ProviderID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "round trip failed")
		} else {
			span.SetStatus(codes.Ok, "ok")
		}
		span.End()
	}()

	if limiter := c.limiterFor(route, req); limiter != nil {
		if werr := limiter.Wait(ctx); werr != nil {
			return chat.Message{}, chat.Wrap(chat.KindRateLimit, "client: local rate limit wait failed", werr)
		}
	}

	httpReq, terr := route.Plugin.TranslateRequest(req, &route.Model.Capabilities)
	if terr != nil {
		return chat.Message{}, terr
	}

	attempt := 0
	for {
		httpResp, fetchErr := c.pipeline.Fetch(ctx, ctx, httpReq, attempt)
		if fetchErr == nil && httpResp.Status < 400 {
			parsed, parseErr := route.Plugin.ParseResponse(ctx, httpResp, false)
			if parseErr != nil {
				return chat.Message{}, parseErr
			}
			return *parsed.Message, nil
		}

		var lastResp *retry.LastResponse
		if httpResp != nil {
			lastResp = &retry.LastResponse{Status: httpResp.Status, Headers: httpResp.Headers}
		}
		decision := retry.ShouldRetry(c.retry, ctx.Err() != nil, attempt, lastResp)
		if !decision.Retry {
			if fetchErr != nil {
				return chat.Message{}, fetchErr
			}
			return chat.Message{}, route.Plugin.NormalizeError(fmt.Errorf("http status %d", httpResp.Status), httpResp)
		}

		c.metrics.IncCounter("burnside.client.retry", 1, "provider", route.ProviderID)
		span.AddEvent("client.retry", "attempt", attempt, "delay_ms", decision.DelayMs)

		select {
		case <-time.After(time.Duration(decision.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return chat.Message{}, chat.Wrap(chat.KindCancelled, "client: retry wait cancelled", ctx.Err())
		}
		attempt++
	}
}

// Stream implements §4.9's stream(request) -> iterator of StreamDelta.
func (c *Client) Stream(ctx context.Context, req chat.ChatRequest) (it provider.StreamIterator, err error) {
	ctx, span := c.tracer.Start(ctx, "client.stream",
		trace.WithAttributes(attribute.String("burnside.model", req.Model)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream failed")
		} else {
			span.SetStatus(codes.Ok, "ok")
		}
		span.End()
	}()

	route, _, callCtx, cancel, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	req.Stream = true
	httpReq, err := route.Plugin.TranslateRequest(req, &route.Model.Capabilities)
	if err != nil {
		cancel()
		return nil, err
	}
	httpResp, err := c.pipeline.Fetch(callCtx, callCtx, httpReq, 0)
	if err != nil {
		cancel()
		if callCtx.Err() != nil {
			e := chat.Wrap(chat.KindCancelled, "client: stream cancelled", callCtx.Err())
			e.Phase = chat.PhaseContextThreading
			return nil, e
		}
		return nil, err
	}
	if httpResp.Status >= 400 {
		defer cancel()
		return nil, route.Plugin.NormalizeError(fmt.Errorf("http status %d", httpResp.Status), httpResp)
	}

	parsed, err := route.Plugin.ParseResponse(callCtx, httpResp, true)
	if err != nil {
		cancel()
		return nil, err
	}

	base := parsed.Stream
	if len(req.Tools) > 0 && c.cfg.Tools.Enabled {
		base = agent.NewInterruptibleStream(agent.StreamDeps{
			Plugin: route.Plugin, Router: c.toolRtr, Cancel: callCtx,
			Log: c.log, Metrics: c.metrics,
		}, base)
	}
	return &cancelCleanupIterator{inner: base, cancel: cancel}, nil
}

// cancelCleanupIterator ensures the per-call timer/cancellation is always
// released on stream exhaustion or error, per §5's "both are always cleared
// on call completion."
type cancelCleanupIterator struct {
	inner  provider.StreamIterator
	cancel context.CancelFunc
	done   bool
}

func (it *cancelCleanupIterator) Next(ctx context.Context) (chat.StreamDelta, bool, error) {
	if it.done {
		return chat.StreamDelta{}, true, nil
	}
	delta, eof, err := it.inner.Next(ctx)
	if eof || err != nil || delta.Finished {
		it.done = true
		it.cancel()
	}
	return delta, eof, err
}
