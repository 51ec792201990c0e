package ciscoiosxe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell/platform/ciscoiosxe"
)

func TestNewGraph_BuildsThreeLevels(t *testing.T) {
	g, err := ciscoiosxe.NewGraph()
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, ciscoiosxe.DefaultDesiredLevel, g.DefaultDesiredLevel())
}

func TestDetermineCurrentLevel_MatchesEachPrompt(t *testing.T) {
	g, err := ciscoiosxe.NewGraph()
	require.NoError(t, err)

	cases := map[string]string{
		"switch1>":         "exec",
		"switch1#":         "privilege_exec",
		"switch1(config)#": "configuration",
	}
	for prompt, want := range cases {
		lvl, err := g.DetermineCurrentLevel(prompt)
		require.NoError(t, err, prompt)
		assert.Equal(t, want, lvl.Name, prompt)
	}
}

func TestHooks_WiresDisablePaging(t *testing.T) {
	h := ciscoiosxe.Hooks()
	assert.NotNil(t, h.DisablePaging)
	assert.Nil(t, h.PreLogin)
	assert.Nil(t, h.OnClose)
}
