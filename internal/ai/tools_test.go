package ai_test

import (
	"github.com/myrjola/vera/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestToolbox_Resolve(t *testing.T) {
	tb := ai.NewToolbox(&echoTool{}) //nolint:exhaustruct // zero value is fine

	tools, err := tb.Resolve([]string{ai.CapabilityWebSearch, ai.CapabilityWikipedia}, ai.CapabilityWebSearch)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, ai.CapabilityWikipedia, tools[0].Name())

	_, err = tb.Resolve([]string{ai.CapabilityWebSearch})
	require.ErrorIs(t, err, ai.ErrUnknownCapability)

	tools, err = tb.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestArgs(t *testing.T) {
	args := map[string]any{"query": "cube", "sentences": float64(4), "wrong": "5"}
	assert.Equal(t, "cube", ai.StringArg(args, "query"))
	assert.Empty(t, ai.StringArg(args, "sentences"))
	assert.Equal(t, 4, ai.IntArg(args, "sentences", 3))
	assert.Equal(t, 3, ai.IntArg(args, "wrong", 3))
	assert.Equal(t, 3, ai.IntArg(args, "missing", 3))
}
