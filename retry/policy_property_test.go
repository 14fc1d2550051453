package retry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBackoffProperty verifies §4.3's invariant that Backoff never exceeds
// MaxDelayMs and never goes negative, for any attempt count and jitter
// setting.
func TestBackoffProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exponential backoff is capped at MaxDelayMs", prop.ForAll(
		func(attempt int, base, max int64, jitter bool) bool {
			if base < 0 || max < base {
				return true
			}
			p := Policy{BaseDelayMs: base, MaxDelayMs: max, Multiplier: 2, Strategy: StrategyExponential, Jitter: jitter}
			d := Backoff(p, attempt)
			return d >= 0 && d <= max
		},
		gen.IntRange(0, 1000),
		gen.Int64Range(0, 5000),
		gen.Int64Range(0, 60000),
		gen.Bool(),
	))

	properties.Property("linear backoff is capped at MaxDelayMs", prop.ForAll(
		func(attempt int, base, max int64) bool {
			if base < 0 || max < base {
				return true
			}
			p := Policy{BaseDelayMs: base, MaxDelayMs: max, Strategy: StrategyLinear}
			d := Backoff(p, attempt)
			return d >= 0 && d <= max
		},
		gen.IntRange(0, 1000),
		gen.Int64Range(0, 5000),
		gen.Int64Range(0, 60000),
	))

	properties.Property("negative attempt is treated as attempt zero", prop.ForAll(
		func(base, max int64) bool {
			if base < 0 || max < base {
				return true
			}
			p := Policy{BaseDelayMs: base, MaxDelayMs: max, Multiplier: 2, Strategy: StrategyExponential}
			return Backoff(p, -1) == Backoff(p, 0)
		},
		gen.Int64Range(0, 5000),
		gen.Int64Range(0, 60000),
	))

	properties.TestingRun(t)
}
