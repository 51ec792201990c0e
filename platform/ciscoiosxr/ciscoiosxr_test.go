package ciscoiosxr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell/platform/ciscoiosxr"
)

func TestNewGraph_BuildsThreeLevels(t *testing.T) {
	g, err := ciscoiosxr.NewGraph()
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, ciscoiosxr.DefaultDesiredLevel, g.DefaultDesiredLevel())
}

func TestDetermineCurrentLevel_TieBreaksSpecialConfiguration(t *testing.T) {
	g, err := ciscoiosxr.NewGraph()
	require.NoError(t, err)

	lvl, err := g.DetermineCurrentLevel("switch1(config-if)#")
	require.NoError(t, err)
	assert.Equal(t, "special_configuration", lvl.Name)

	lvl, err = g.DetermineCurrentLevel("switch1(config)#")
	require.NoError(t, err)
	assert.Equal(t, "configuration", lvl.Name)
}

func TestHooks_WiresAbort(t *testing.T) {
	h := ciscoiosxr.Hooks()
	assert.Equal(t, ciscoiosxr.ConfigSessionAbort, h.ConfigSessionAbort)
	assert.NotNil(t, h.DisablePaging)
}
