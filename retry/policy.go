// Package retry implements the retry decision function (C3): a pure
// shouldRetry step plus the backoff math it delegates to. It has no
// knowledge of HTTP beyond the status/header shape it is handed; the
// client façade's round trip calls it between attempts.
package retry

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/langadventurellc/burnside/chat"
)

// Strategy selects the backoff growth function.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear       Strategy = "linear"
)

// Policy configures the retry decision function per §4.3.
type Policy struct {
	Attempts           int
	BaseDelayMs        int64
	MaxDelayMs         int64
	Multiplier         float64
	Strategy           Strategy
	Jitter             bool
	RetryableStatus    []int
}

// DefaultPolicy: 3 attempts, exponential backoff with jitter, 100ms base
// capped at 30s, retrying the conventional transient status set.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		BaseDelayMs:     100,
		MaxDelayMs:      30_000,
		Multiplier:      2,
		Strategy:        StrategyExponential,
		Jitter:          true,
		RetryableStatus: []int{408, 409, 429, 500, 502, 503, 504},
	}
}

// IsZero reports whether p is the Go zero value, i.e. never explicitly
// configured. Callers use this to decide whether to fall back to
// DefaultPolicy instead of running Validate against an unset policy.
func (p Policy) IsZero() bool {
	return p.Attempts == 0 && p.BaseDelayMs == 0 && p.MaxDelayMs == 0 &&
		p.Multiplier == 0 && p.Strategy == "" && !p.Jitter && p.RetryableStatus == nil
}

// Validate enforces §4.3's construction/mutation invariants.
func (p Policy) Validate() error {
	if p.Attempts < 0 || p.Attempts > 10 {
		return chat.New(chat.KindValidation, "retry: attempts must be in [0, 10]")
	}
	if p.BaseDelayMs < 0 {
		return chat.New(chat.KindValidation, "retry: baseDelayMs must be >= 0")
	}
	if p.MaxDelayMs < p.BaseDelayMs {
		return chat.New(chat.KindValidation, "retry: maxDelayMs must be >= baseDelayMs")
	}
	if p.Multiplier <= 0 {
		return chat.New(chat.KindValidation, "retry: multiplier must be > 0")
	}
	for _, code := range p.RetryableStatus {
		if code < 100 || code > 599 {
			return chat.New(chat.KindValidation, "retry: status codes must be in [100, 599]")
		}
	}
	return nil
}

// Decision is the result of shouldRetry.
type Decision struct {
	Retry   bool
	DelayMs int64
	Reason  string
}

// LastResponse carries the subset of an HTTP response shouldRetry consults.
type LastResponse struct {
	Status  int
	Headers map[string]string
}

// ShouldRetry implements §4.3's five-step decision function. cancelled
// reports whether the call's cancellation source has already fired; attempt
// is the zero-based attempt number just completed.
func ShouldRetry(p Policy, cancelled bool, attempt int, last *LastResponse) Decision {
	if cancelled {
		return Decision{Retry: false, Reason: "cancelled"}
	}
	if attempt >= p.Attempts {
		return Decision{Retry: false, Reason: "attempts exhausted"}
	}
	if last != nil && !statusRetryable(p.RetryableStatus, last.Status) {
		return Decision{Retry: false, Reason: "non-retryable status"}
	}
	if last != nil {
		if delay, ok := retryAfterDelay(last.Headers, p.MaxDelayMs); ok {
			return Decision{Retry: true, DelayMs: delay, Reason: "retry-after header"}
		}
	}
	return Decision{Retry: true, DelayMs: Backoff(p, attempt), Reason: string(p.Strategy) + " backoff"}
}

func statusRetryable(codes []int, status int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}

// retryAfterDelay parses a "retry-after" header as either a nonnegative
// integer number of seconds or an HTTP-date; it reports ok=false when the
// header is absent, unparseable, or an HTTP-date not in the future.
func retryAfterDelay(headers map[string]string, maxDelayMs int64) (int64, bool) {
	raw, ok := headerLookup(headers, "retry-after")
	if !ok || raw == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return capDelay(secs*1000, maxDelayMs), true
	}
	if when, err := http.ParseTime(raw); err == nil {
		delta := time.Until(when)
		if delta <= 0 {
			return 0, false
		}
		return capDelay(delta.Milliseconds(), maxDelayMs), true
	}
	return 0, false
}

func headerLookup(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if equalFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// maxClampedAttempt is the ceiling preventing backoff overflow.
const maxClampedAttempt = 32

// Backoff computes the pre-jitter-then-jittered, capped delay for attempt per
// §4.3. attempt is zero-based and clamped to [0, 32) before exponentiation.
func Backoff(p Policy, attempt int) int64 {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= maxClampedAttempt {
		attempt = maxClampedAttempt - 1
	}

	var raw float64
	switch p.Strategy {
	case StrategyLinear:
		raw = float64(p.BaseDelayMs) * float64(attempt+1)
	default:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		raw = float64(p.BaseDelayMs) * math.Pow(mult, float64(attempt))
	}
	raw = capFloat(raw, float64(p.MaxDelayMs))

	if p.Jitter {
		raw *= jitterSample()
		raw = capFloat(raw, float64(p.MaxDelayMs))
	}
	if raw < 0 {
		raw = 0
	}
	return int64(raw)
}

func jitterSample() float64 {
	return 0.5 + rand.Float64()
}

func capFloat(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func capDelay(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
