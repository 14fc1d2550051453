package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langadventurellc/burnside/chat"
)

func TestModelRegistry_RegisterAndGet(t *testing.T) {
	m := NewModelRegistry()
	require.NoError(t, m.Register(chat.ModelInfo{Provider: "openai", ID: "gpt-4o"}))
	info, ok := m.Get("openai:gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", info.ID)

	_, ok = m.Get("openai:missing")
	assert.False(t, ok)
}

func TestModelRegistry_RequiresProviderAndID(t *testing.T) {
	m := NewModelRegistry()
	assert.Error(t, m.Register(chat.ModelInfo{ID: "gpt-4o"}))
	assert.Error(t, m.Register(chat.ModelInfo{Provider: "openai"}))
}

func TestModelRegistry_ListFiltersByProvider(t *testing.T) {
	m := NewModelRegistry()
	require.NoError(t, m.Register(chat.ModelInfo{Provider: "openai", ID: "gpt-4o"}))
	require.NoError(t, m.Register(chat.ModelInfo{Provider: "anthropic", ID: "claude-sonnet-4-5-20250929"}))

	assert.Len(t, m.List(""), 2)
	assert.Len(t, m.List("openai"), 1)
	assert.Len(t, m.List("google"), 0)
}

func TestModelRegistry_SeedBuiltin(t *testing.T) {
	m := NewModelRegistry()
	require.NoError(t, m.SeedBuiltin())
	models := m.List("")
	assert.NotEmpty(t, models)
	_, ok := m.Get("openai:gpt-4o-2024-08-06")
	assert.True(t, ok)
}

func TestSplitQualified(t *testing.T) {
	provider, modelID, ok := SplitQualified("openai:gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", modelID)

	_, _, ok = SplitQualified("gpt-4o")
	assert.False(t, ok)
}
