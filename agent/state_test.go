package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
)

// S5: Iteration exhaustion.
func TestIterationExhaustion(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{MaxIterations: 2, Timeout: time.Hour, IterationTimeout: time.Hour})
	m.Start()

	require.NoError(t, m.StartIteration())
	require.NoError(t, m.CompleteIteration(time.Millisecond))
	assert.True(t, m.CanContinue())

	require.NoError(t, m.StartIteration())
	require.NoError(t, m.CompleteIteration(time.Millisecond))
	assert.False(t, m.CanContinue())
	assert.Equal(t, chat.ReasonMaxIterations, m.DetermineTerminationReason(chat.ReasonNaturalCompletion))

	// A third startIteration is permitted by StartIteration itself (it only
	// rejects starting while another iteration is open or after explicit
	// Terminate); the "already terminated" diagnostic comes from CanContinue
	// gating the loop before StartIteration is ever called again, which is
	// the agent.Run driver's responsibility, not the Manager's.
	m.Terminate(chat.ReasonMaxIterations)
	require.Error(t, m.StartIteration())
}

func TestStartIteration_RejectsDoubleStart(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{})
	m.Start()
	require.NoError(t, m.StartIteration())
	assert.Error(t, m.StartIteration())
}

func TestCompleteIteration_RequiresActiveIteration(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{})
	assert.Error(t, m.CompleteIteration(time.Millisecond))
}

func TestDetermineTerminationReason_Precedence(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{MaxIterations: 1})
	m.MarkCancelled()
	m.MarkTimeout()
	assert.Equal(t, chat.ReasonCancelled, m.DetermineTerminationReason(chat.ReasonNaturalCompletion))
}

func TestMetrics_MinMaxMean(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{MaxIterations: 10})
	m.Start()
	for _, d := range []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond} {
		require.NoError(t, m.StartIteration())
		require.NoError(t, m.CompleteIteration(d))
	}
	metrics := m.Metrics()
	assert.Equal(t, 3, metrics.IterationCount)
	assert.Equal(t, 10*time.Millisecond, metrics.MinDuration)
	assert.Equal(t, 30*time.Millisecond, metrics.MaxDuration)
	assert.Equal(t, 20*time.Millisecond, metrics.MeanDuration)
}

func TestCompleteIteration_NegativeDurationClampedInMetrics(t *testing.T) {
	m := NewManager(chat.MultiTurnOptions{MaxIterations: 10})
	m.Start()
	require.NoError(t, m.StartIteration())
	require.NoError(t, m.CompleteIteration(-5*time.Millisecond))
	assert.Equal(t, time.Duration(0), m.Metrics().MinDuration)
}
