package junipernos_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell/platform/junipernos"
)

func TestNewGraph_BuildsTwoLevels(t *testing.T) {
	g, err := junipernos.NewGraph()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, junipernos.DefaultDesiredLevel, g.DefaultDesiredLevel())
}

func TestDetermineCurrentLevel_MatchesEachPrompt(t *testing.T) {
	g, err := junipernos.NewGraph()
	require.NoError(t, err)

	lvl, err := g.DetermineCurrentLevel("vrnetlab>")
	require.NoError(t, err)
	assert.Equal(t, "exec", lvl.Name)

	lvl, err = g.DetermineCurrentLevel("vrnetlab#")
	require.NoError(t, err)
	assert.Equal(t, "configuration", lvl.Name)
}
