package transport

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RedactionConfig configures the built-in redaction interceptor.
type RedactionConfig struct {
	// Enabled gates the entire interceptor; disabled mode is a no-op
	// returning the identical input object.
	Enabled bool
	// FieldNames are JSON body field names whose values are replaced with
	// Placeholder, recursively through objects and arrays (e.g. "password",
	// "token", "api_key").
	FieldNames []string
	// Patterns are additionally applied as regex replacements over string
	// bodies.
	Patterns []*regexp.Regexp
	// Placeholder replaces redacted values. Defaults to "***".
	Placeholder string
}

const defaultPlaceholder = "***"

var sensitiveHeaderNames = []string{"authorization", "cookie", "set-cookie"}

// NewRedactionInterceptors builds the paired request/response interceptors
// implementing §4.2's redaction interceptor. Response redaction mirrors
// header rewriting but never buffers a streaming body: the stream reference
// is preserved verbatim.
func NewRedactionInterceptors(cfg RedactionConfig) (RequestInterceptor, ResponseInterceptor) {
	if cfg.Placeholder == "" {
		cfg.Placeholder = defaultPlaceholder
	}
	req := func(_ context.Context, ic InterceptorContext) (InterceptorContext, error) {
		if !cfg.Enabled || ic.Request == nil {
			return ic, nil
		}
		redacted := *ic.Request
		redacted.Headers = redactHeaders(ic.Request.Headers, cfg.Placeholder)
		if body, ok := ic.Request.Body.([]byte); ok {
			redacted.Body = redactBody(body, cfg)
		} else if s, ok := ic.Request.Body.(string); ok {
			redacted.Body = string(redactBody([]byte(s), cfg))
		}
		ic.Request = &redacted
		return ic, nil
	}
	resp := func(_ context.Context, _ InterceptorContext, r *HTTPResponse) (*HTTPResponse, error) {
		if !cfg.Enabled || r == nil {
			return r, nil
		}
		out := *r
		out.Headers = redactHeaders(r.Headers, cfg.Placeholder)
		// Body is a stream; it is never consumed or buffered here.
		return &out, nil
	}
	return req, resp
}

func redactHeaders(headers map[string]string, placeholder string) map[string]string {
	if len(headers) == 0 {
		return headers
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		switch {
		case lk == "authorization":
			out[k] = bearerPrefix(v) + placeholder
		case strings.Contains(lk, "api-key") || strings.Contains(lk, "api_key"):
			out[k] = placeholder
		case isSensitiveHeader(lk):
			out[k] = placeholder
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveHeader(lower string) bool {
	for _, h := range sensitiveHeaderNames {
		if lower == h {
			return true
		}
	}
	return false
}

func bearerPrefix(v string) string {
	if strings.HasPrefix(strings.ToLower(v), "bearer ") {
		return "Bearer "
	}
	return ""
}

// redactBody returns data unchanged if it is not valid UTF-8 (binary bodies
// pass through). A JSON body has configured field values replaced
// recursively and is re-marshaled; regex replacements are then applied over
// the resulting string form, or over the raw text of a non-JSON body.
func redactBody(data []byte, cfg RedactionConfig) []byte {
	if !utf8.Valid(data) {
		return data
	}
	s := string(data)
	var doc any
	if err := json.Unmarshal(data, &doc); err == nil {
		redacted := redactValue(doc, cfg.FieldNames, cfg.Placeholder)
		out, err := json.Marshal(redacted)
		if err != nil {
			return data
		}
		s = string(out)
	}
	for _, pattern := range cfg.Patterns {
		s = pattern.ReplaceAllString(s, cfg.Placeholder)
	}
	return []byte(s)
}

func redactValue(v any, fields []string, placeholder string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if matchesField(k, fields) {
				out[k] = placeholder
				continue
			}
			out[k] = redactValue(vv, fields, placeholder)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = redactValue(vv, fields, placeholder)
		}
		return out
	default:
		return val
	}
}

func matchesField(key string, fields []string) bool {
	for _, f := range fields {
		if strings.EqualFold(key, f) {
			return true
		}
	}
	return false
}

// DefaultSensitiveFieldNames lists field names redacted by default.
func DefaultSensitiveFieldNames() []string {
	return []string{"password", "token", "api_key", "apiKey", "secret", "authorization"}
}
