package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/langadventurellc/burnside/chat"
)

// RouterConfig bounds execution per §6's configuration surface for tools.
type RouterConfig struct {
	ExecutionTimeout   time.Duration
	MaxConcurrentTools int
}

// DefaultRouterConfig: a 30s execution timeout and a concurrency of 5.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{ExecutionTimeout: 30 * time.Second, MaxConcurrentTools: 5}
}

// Validate enforces §6's executionTimeoutMs and maxConcurrentTools ranges.
func (c RouterConfig) Validate() error {
	ms := c.ExecutionTimeout.Milliseconds()
	if ms < 1000 || ms > 300000 {
		return chat.New(chat.KindValidation, "tools: executionTimeoutMs must be in [1000, 300000]")
	}
	if c.MaxConcurrentTools < 1 || c.MaxConcurrentTools > 10 {
		return chat.New(chat.KindValidation, "tools: maxConcurrentTools must be in [1, 10]")
	}
	return nil
}

// Result is the normalized outcome of one tool execution.
type Result struct {
	CallID  string
	Success bool
	Output  any
	Error   *chat.ToolResultError
}

// Router executes tool calls against a Registry, enforcing schema
// validation, an execution timeout, and bounded concurrency (excess calls
// queue FIFO via the semaphore channel below).
type Router struct {
	registry *Registry
	cfg      RouterConfig
	sem      chan struct{}
}

// NewRouter constructs a Router. cfg is validated; an invalid cfg falls
// back to DefaultRouterConfig.
func NewRouter(registry *Registry, cfg RouterConfig) *Router {
	if cfg.Validate() != nil {
		cfg = DefaultRouterConfig()
	}
	return &Router{registry: registry, cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrentTools)}
}

// ToolCall is a structured invocation requested by the model.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// Execute runs one tool call to completion: schema validation, then bounded
// concurrent dispatch to the registered handler under ExecutionTimeout,
// with handler panics recovered into an EXECUTION_FAILED result.
func (r *Router) Execute(ctx context.Context, call ToolCall, exec ExecutionContext) Result {
	def, handler, ok := r.registry.Get(call.Name)
	if !ok {
		return failure(call.ID, "TOOL_NOT_FOUND", "tools: no tool registered named "+call.Name)
	}

	if err := validateParameters(def, call.Parameters); err != nil {
		return failure(call.ID, "VALIDATION_ERROR", err.Error())
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return failure(call.ID, "CANCELLED", "tools: execution cancelled before dispatch")
	}
	defer func() { <-r.sem }()

	return r.invoke(ctx, call, exec, handler)
}

func (r *Router) invoke(ctx context.Context, call ToolCall, exec ExecutionContext, handler Handler) Result {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tools: handler panic: %v", rec)}
			}
		}()
		v, err := handler(exec, call.Parameters)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(r.cfg.ExecutionTimeout)
	defer timer.Stop()

	// A nil Cancel is valid input (callers with no external cancellation
	// source); a nil channel in a select never fires, so this arm simply
	// never wins instead of panicking on a nil-interface method call.
	var cancelDone <-chan struct{}
	if exec.Cancel != nil {
		cancelDone = exec.Cancel.Done()
	}

	select {
	case o := <-done:
		if o.err != nil {
			return failure(call.ID, "EXECUTION_FAILED", o.err.Error())
		}
		return Result{CallID: call.ID, Success: true, Output: o.value}
	case <-timer.C:
		return failure(call.ID, "TIMEOUT", "tools: execution exceeded timeout")
	case <-ctx.Done():
		return failure(call.ID, "CANCELLED", "tools: execution cancelled")
	case <-cancelDone:
		return failure(call.ID, "CANCELLED", "tools: execution cancelled")
	}
}

func failure(callID, code, message string) Result {
	return Result{CallID: callID, Success: false, Error: &chat.ToolResultError{Code: code, Message: message}}
}

func validateParameters(def chat.ToolDefinition, parameters map[string]any) error {
	if def.InputSchema == nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const resourceURL = "mem://tool-schema.json"
	if err := compiler.AddResource(resourceURL, def.InputSchema); err != nil {
		return fmt.Errorf("tools: invalid schema: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("tools: compile schema: %w", err)
	}
	var asAny any = parameters
	if err := schema.Validate(asAny); err != nil {
		return fmt.Errorf("tools: parameters failed validation: %w", err)
	}
	return nil
}
