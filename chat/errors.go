package chat

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure into the coarse-grained taxonomy shared by
// every component: transport, retry, provider plugins, and the agent loop
// all raise (or wrap) an *Error with one of these kinds so callers can branch
// on failure class without parsing messages.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindTransport   ErrorKind = "transport"
	KindStreaming   ErrorKind = "streaming"
	KindProvider    ErrorKind = "provider"
	KindInterceptor ErrorKind = "interceptor"
	KindCancelled   ErrorKind = "cancelled"
	KindBridge      ErrorKind = "bridge"
)

// Bridge error codes. These flow through Error.Code when Kind is KindBridge.
const (
	CodeModelNotRegistered     = "MODEL_NOT_REGISTERED"
	CodeProviderNotRegistered  = "PROVIDER_NOT_REGISTERED"
	CodeProviderConfigMissing  = "PROVIDER_CONFIG_MISSING"
	CodeProviderPluginUnmapped = "PROVIDER_PLUGIN_UNMAPPED"
	CodeToolsNotEnabled        = "TOOLS_NOT_ENABLED"
	CodeToolSystemNotInit      = "TOOL_SYSTEM_NOT_INITIALIZED"
	CodeInvalidConfig          = "INVALID_CONFIG"
	CodeRegistrationFailed     = "REGISTRATION_FAILED"
	CodeNotInitialized         = "NOT_INITIALIZED"
)

// InterceptorPhase identifies where in an interceptor's execution a failure
// occurred.
type InterceptorPhase string

const (
	PhaseValidation       InterceptorPhase = "validation"
	PhaseExecution        InterceptorPhase = "execution"
	PhaseContextThreading InterceptorPhase = "context-threading"
)

// InterceptorDirection identifies which half of the chain raised an error.
type InterceptorDirection string

const (
	DirectionRequest  InterceptorDirection = "request"
	DirectionResponse InterceptorDirection = "response"
)

// Error is the shared error type for the client. It preserves enough
// redacted context (provider, HTTP status, vendor code, timestamp) for
// callers and logs without leaking secrets. HeaderSet is carried as given:
// no code in this module fills it in or applies redaction to it
// (transport/redact.go redacts headers only inside the interceptor chain).
type Error struct {
	Kind      ErrorKind
	Provider  string
	Version   string
	Operation string
	HTTPStatus int
	Code      string
	Message   string
	RequestID string
	Retryable bool
	RetryAfter time.Duration
	HeaderSet map[string]string
	Timestamp time.Time

	// Interceptor-specific detail, populated only when Kind == KindInterceptor.
	Direction InterceptorDirection
	Phase     InterceptorPhase
	Index     int

	cause error
}

// New constructs an *Error. Message is required; every other field is
// optional.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: now()}
}

// Wrap constructs an *Error that preserves cause in its chain via Unwrap.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

func now() time.Time { return time.Now() }

func (e *Error) Error() string {
	op := e.Operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.HTTPStatus > 0 {
		status = fmt.Sprintf("%d ", e.HTTPStatus)
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	msg := e.Message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "chat error"
	}
	provider := e.Provider
	if provider == "" {
		provider = "client"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", provider, e.Kind, status, op, code+msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Retryable classes per §7: RateLimit, Transport, Timeout, and Provider (when
// HTTPStatus is in the retry policy's configured status set) are candidates
// for retry; everything else surfaces immediately.
func (e *Error) IsRetryCandidate() bool {
	switch e.Kind {
	case KindRateLimit, KindTransport, KindTimeout:
		return true
	case KindProvider:
		return e.Retryable
	default:
		return false
	}
}
