// Package agent implements the multi-turn driver (C8): a state machine over
// Idle/IterationActive/Inspecting/ToolDispatch/Terminated, the iteration
// accounting contract (startIteration/completeIteration/canContinue/
// determineTerminationReason), and the streaming-interruption wrapper that
// detects tool_use_required without draining the underlying delta stream.
package agent

import (
	"sync"
	"time"

	"github.com/langadventurellc/burnside/chat"
)

// State is one node of the conversation-level state machine.
type State string

const (
	StateIdle            State = "idle"
	StateIterationActive State = "iteration_active"
	StateInspecting      State = "inspecting"
	StateToolDispatch    State = "tool_dispatch"
	StateTerminated       State = "terminated"
)

// IterationMetrics snapshots the accounting contract's exposed metrics.
type IterationMetrics struct {
	TotalTime        time.Duration
	IterationCount   int
	MinDuration      time.Duration
	MaxDuration      time.Duration
	MeanDuration     time.Duration
	CurrentIteration int
	Terminated       bool
	Reason           chat.TerminationReason
}

// Manager tracks one conversation's state machine and iteration accounting.
// Every method takes the mutex, so MarkTimeout (fired from a timer
// goroutine) and Metrics() snapshots may run alongside the loop; the
// iteration sequence itself is driven by a single goroutine (the agent loop
// is single-threaded per §5).
type Manager struct {
	mu sync.Mutex

	state   State
	opts    chat.MultiTurnOptions
	startAt time.Time

	iteration     int
	iterationOpen bool
	durations     []time.Duration

	cancelled bool
	timedOut  bool
	reason    chat.TerminationReason
}

// NewManager constructs a Manager in StateIdle. Zero-value opts fields are
// replaced by chat.DefaultMultiTurnOptions.
func NewManager(opts chat.MultiTurnOptions) *Manager {
	def := chat.DefaultMultiTurnOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.IterationTimeout <= 0 {
		opts.IterationTimeout = def.IterationTimeout
	}
	return &Manager{state: StateIdle, opts: opts}
}

// Start transitions Idle -> IterationActive and records the conversation's
// start time for the overall timeout.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIterationActive
	m.startAt = time.Now()
}

// StartIteration increments the iteration number. It is an error to start
// while another iteration is active, or after termination.
func (m *Manager) StartIteration() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateTerminated {
		return chat.New(chat.KindValidation, "agent: cannot start iteration after termination")
	}
	if m.iterationOpen {
		return chat.New(chat.KindValidation, "agent: an iteration is already active")
	}
	m.iteration++
	m.iterationOpen = true
	m.state = StateIterationActive
	return nil
}

// CompleteIteration records duration for the currently active iteration.
// Negative durations (clock skew) are accepted without error, per the open
// question in SPEC_FULL.md, but are clamped to zero before being recorded,
// so a skewed clock cannot report a negative min/max/mean.
func (m *Manager) CompleteIteration(duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.iterationOpen {
		return chat.New(chat.KindValidation, "agent: no active iteration to complete")
	}
	m.iterationOpen = false
	m.state = StateInspecting
	clamped := duration
	if clamped < 0 {
		clamped = 0
	}
	m.durations = append(m.durations, clamped)
	return nil
}

// MarkCancelled records cancellation; the next CanContinue/termination
// check reflects it.
func (m *Manager) MarkCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = true
}

// MarkTimeout records the overall or per-iteration timeout firing.
func (m *Manager) MarkTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timedOut = true
}

// CanContinue is true iff no timeout and iteration < max and not cancelled.
func (m *Manager) CanContinue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.cancelled && !m.timedOut && m.iteration < m.opts.MaxIterations
}

// DetermineTerminationReason applies the precedence cancelled > timeout >
// max_iterations > natural_completion. natural is the reason to report when
// none of the abnormal conditions hold (normally ReasonNaturalCompletion or
// whatever the plugin's DetectTermination produced).
func (m *Manager) DetermineTerminationReason(natural chat.TerminationReason) chat.TerminationReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.cancelled:
		return chat.ReasonCancelled
	case m.timedOut:
		return chat.ReasonTimeout
	case m.iteration >= m.opts.MaxIterations:
		return chat.ReasonMaxIterations
	default:
		return natural
	}
}

// Terminate transitions to StateTerminated with the given reason.
func (m *Manager) Terminate(reason chat.TerminationReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminated
	m.reason = reason
}

// EnterToolDispatch transitions Inspecting -> ToolDispatch.
func (m *Manager) EnterToolDispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateToolDispatch
}

// State returns the current node.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Metrics snapshots the iteration accounting contract's exposed fields.
func (m *Manager) Metrics() IterationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := IterationMetrics{
		IterationCount:   len(m.durations),
		CurrentIteration: m.iteration,
		Terminated:       m.state == StateTerminated,
		Reason:           m.reason,
	}
	if !m.startAt.IsZero() {
		metrics.TotalTime = time.Since(m.startAt)
	}
	if len(m.durations) == 0 {
		return metrics
	}
	var sum time.Duration
	metrics.MinDuration = m.durations[0]
	metrics.MaxDuration = m.durations[0]
	for _, d := range m.durations {
		sum += d
		if d < metrics.MinDuration {
			metrics.MinDuration = d
		}
		if d > metrics.MaxDuration {
			metrics.MaxDuration = d
		}
	}
	metrics.MeanDuration = sum / time.Duration(len(m.durations))
	return metrics
}
