// Package transport implements the HTTP execution layer (C1), the
// interceptor chain and redaction (C2), sitting below the retry policy and
// provider plugins. Provider plugins never use net/http directly: they build
// an HTTPRequest and hand it to a Pipeline, which threads it through
// interceptors before handing it to a Transport.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/langadventurellc/burnside/chat"
)

type (
	// HTTPRequest is a provider-agnostic HTTP request. Body is bytes, a
	// string, or nil; Fetch accepts any of the three, and an io.Reader too.
	HTTPRequest struct {
		URL     string
		Method  string
		Headers map[string]string
		Body    any
	}

	// HTTPResponse is a provider-agnostic HTTP response. Body is a finite
	// byte stream the caller must drain or Close.
	HTTPResponse struct {
		Status     int
		StatusText string
		Headers    map[string]string
		Body       io.ReadCloser
	}

	// Transport executes exactly one HTTP request/response. It does not
	// interpret status codes (all non-2xx responses are returned to callers
	// for normalization) and it does not retry.
	Transport interface {
		// Fetch performs a request and returns a response whose Body must be
		// drained or closed by the caller.
		Fetch(ctx context.Context, cancel chat.CancellationHandle, req HTTPRequest) (*HTTPResponse, error)
	}

	httpTransport struct {
		client *http.Client
	}
)

// NewTransport constructs a Transport backed by net/http. When client is nil,
// http.DefaultClient is used.
func NewTransport(client *http.Client) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) Fetch(ctx context.Context, cancel chat.CancellationHandle, req HTTPRequest) (*HTTPResponse, error) {
	if req.URL == "" {
		return nil, chat.New(chat.KindValidation, "transport: url is required")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx = combineCancellation(ctx, cancel)

	body, err := bodyReader(req.Body)
	if err != nil {
		return nil, chat.New(chat.KindValidation, "transport: invalid request body: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, chat.New(chat.KindValidation, "transport: malformed request: "+err.Error())
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, chat.Wrap(chat.KindCancelled, "transport: request cancelled", ctx.Err())
		}
		return nil, chat.Wrap(chat.KindTransport, "transport: request failed", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &HTTPResponse{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Headers:    headers,
		Body:       resp.Body,
	}, nil
}

// combineCancellation derives a context that is done when either ctx or the
// caller-supplied cancellation handle fires, satisfying §5's "disjunction of
// an internal timer and a caller-supplied handle" requirement at the
// transport boundary.
func combineCancellation(ctx context.Context, cancel chat.CancellationHandle) context.Context {
	if cancel == nil {
		return ctx
	}
	if cancel.Err() != nil {
		cctx, cfn := context.WithCancel(ctx)
		cfn()
		return cctx
	}
	cctx, cfn := context.WithCancel(ctx)
	go func() {
		select {
		case <-cancel.Done():
			cfn()
		case <-cctx.Done():
		}
	}()
	return cctx
}

func bodyReader(body any) (io.Reader, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(v), nil
	case string:
		return strings.NewReader(v), nil
	case io.Reader:
		return v, nil
	default:
		return nil, chat.New(chat.KindValidation, "transport: body must be []byte, string, or io.Reader")
	}
}
